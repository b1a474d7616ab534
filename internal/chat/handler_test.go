package chat_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftchat/drift/internal/broadcast"
	"github.com/driftchat/drift/internal/channelauth"
	"github.com/driftchat/drift/internal/chat"
	"github.com/driftchat/drift/internal/domain"
	"github.com/driftchat/drift/internal/middleware"
	"github.com/driftchat/drift/internal/pubsub"
	"github.com/driftchat/drift/internal/ratelimit"
	"github.com/driftchat/drift/internal/store"
)

type requestValidator struct {
	validate *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

type handlerFixture struct {
	e   *echo.Echo
	svc *chat.Service
}

// newHandlerFixture wires the handler onto a bare echo instance with a
// stub identity injected ahead of it.
func newHandlerFixture(t *testing.T, identity *domain.Identity) *handlerFixture {
	t.Helper()

	s, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	bridge := pubsub.NewWatermillBridge()
	t.Cleanup(func() { _ = bridge.Close() })

	channel := broadcast.New(bridge, bridge)
	limiter := ratelimit.NewStoreLimiter(s, 10, time.Minute)
	svc := chat.NewService(s, limiter, channel, time.Minute, 1000)
	authorizer := channelauth.NewAuthorizer("handler-test-secret", 2*time.Minute)
	h := chat.NewHandler(svc, authorizer)

	e := echo.New()
	e.Validator = &requestValidator{validate: validator.New()}
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if identity != nil {
				c.Set(middleware.IdentityContextKey, *identity)
			}
			return next(c)
		}
	})
	e.POST("/api/rooms/:roomId/messages", h.SubmitPost)
	e.GET("/api/rooms/:roomId/messages", h.HistoryGet)
	e.POST("/api/broadcast/auth", h.AuthPost)

	return &handlerFixture{e: e, svc: svc}
}

func (f *handlerFixture) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f *handlerFixture) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func TestSubmitPost(t *testing.T) {
	alice := &domain.Identity{UserID: "u1", DisplayName: "Alice"}

	t.Run("accepts a text message", func(t *testing.T) {
		f := newHandlerFixture(t, alice)
		rec := f.postJSON("/api/rooms/r1/messages", `{"text":"hello"}`)

		require.Equal(t, http.StatusCreated, rec.Code)
		var resp struct {
			MessageID string `json:"messageId"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.MessageID)
	})

	t.Run("accepts a receipt message", func(t *testing.T) {
		f := newHandlerFixture(t, alice)
		body := `{"kind":"receipt","receipt":{"merchant":"Cafe Luna","currency":"USD","totalCents":4250}}`
		rec := f.postJSON("/api/rooms/r1/messages", body)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("empty text is a 400", func(t *testing.T) {
		f := newHandlerFixture(t, alice)
		rec := f.postJSON("/api/rooms/r1/messages", `{"text":"   "}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown kind is a 400", func(t *testing.T) {
		f := newHandlerFixture(t, alice)
		rec := f.postJSON("/api/rooms/r1/messages", `{"kind":"sticker","text":"x"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("receipt kind without payload is a 400", func(t *testing.T) {
		f := newHandlerFixture(t, alice)
		rec := f.postJSON("/api/rooms/r1/messages", `{"kind":"receipt"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("over the ceiling is a 429", func(t *testing.T) {
		f := newHandlerFixture(t, alice)
		for i := 0; i < 10; i++ {
			rec := f.postJSON("/api/rooms/r1/messages", `{"text":"hello"}`)
			require.Equal(t, http.StatusCreated, rec.Code)
		}
		rec := f.postJSON("/api/rooms/r1/messages", `{"text":"hello"}`)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("anonymous is a 401", func(t *testing.T) {
		f := newHandlerFixture(t, nil)
		rec := f.postJSON("/api/rooms/r1/messages", `{"text":"hello"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHistoryGet(t *testing.T) {
	alice := &domain.Identity{UserID: "u1", DisplayName: "Alice"}

	t.Run("returns submitted messages", func(t *testing.T) {
		f := newHandlerFixture(t, alice)
		_, err := f.svc.Submit(context.Background(), "r1", "u1", "hello")
		require.NoError(t, err)

		rec := f.get("/api/rooms/r1/messages")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Messages []domain.Message `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Messages, 1)
		assert.Equal(t, "hello", resp.Messages[0].Content)
	})

	t.Run("empty room is an empty list", func(t *testing.T) {
		f := newHandlerFixture(t, alice)
		rec := f.get("/api/rooms/empty/messages")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"messages":[]}`, rec.Body.String())
	})
}

func TestAuthPost(t *testing.T) {
	alice := &domain.Identity{UserID: "u1", DisplayName: "Alice"}

	t.Run("issues a grant for a well-formed channel", func(t *testing.T) {
		f := newHandlerFixture(t, alice)
		rec := f.postForm("/api/broadcast/auth", url.Values{
			"socket_id":    {"123.456"},
			"channel_name": {"chat.room.r1"},
		})

		require.Equal(t, http.StatusOK, rec.Code)
		var grant channelauth.Grant
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grant))
		assert.NotEmpty(t, grant.Auth)
		assert.Contains(t, grant.ChannelData, `"user_id":"u1"`)
	})

	t.Run("missing fields are a 400", func(t *testing.T) {
		f := newHandlerFixture(t, alice)
		rec := f.postForm("/api/broadcast/auth", url.Values{"socket_id": {"123.456"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed channel is a 400", func(t *testing.T) {
		f := newHandlerFixture(t, alice)
		rec := f.postForm("/api/broadcast/auth", url.Values{
			"socket_id":    {"123.456"},
			"channel_name": {"presence-room;drop"},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("anonymous is a 401", func(t *testing.T) {
		f := newHandlerFixture(t, nil)
		rec := f.postForm("/api/broadcast/auth", url.Values{
			"socket_id":    {"123.456"},
			"channel_name": {"chat.room.r1"},
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

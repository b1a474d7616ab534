package chat

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/driftchat/drift/internal/channelauth"
	"github.com/driftchat/drift/internal/domain"
	"github.com/driftchat/drift/internal/middleware"
)

// submitRequest is the body of a message submission. Kind defaults to
// text; the payload field matching the kind must be set.
type submitRequest struct {
	Kind    string                 `json:"kind" validate:"omitempty,oneof=text receipt split"`
	Text    string                 `json:"text"`
	Receipt *domain.ReceiptPayload `json:"receipt"`
	Split   *domain.SplitPayload   `json:"split"`
}

type submitResponse struct {
	MessageID string `json:"messageId"`
}

type historyResponse struct {
	Messages []domain.Message `json:"messages"`
}

// Handler exposes the message pipeline over HTTP.
type Handler struct {
	service    *Service
	authorizer *channelauth.Authorizer
}

// NewHandler creates the HTTP handler for the chat module.
func NewHandler(service *Service, authorizer *channelauth.Authorizer) *Handler {
	return &Handler{service: service, authorizer: authorizer}
}

// SubmitPost handles POST /rooms/:roomId/messages.
func (h *Handler) SubmitPost(c echo.Context) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, domain.ErrUnauthorized.Error())
	}

	var req submitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}

	roomID := c.Param("roomId")
	ctx := c.Request().Context()

	var (
		id  string
		err error
	)
	switch domain.Kind(req.Kind) {
	case domain.KindReceipt:
		if req.Receipt == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "missing receipt payload")
		}
		id, err = h.service.SubmitReceipt(ctx, roomID, identity.UserID, *req.Receipt)
	case domain.KindSplit:
		if req.Split == nil {
			return echo.NewHTTPError(http.StatusBadRequest, "missing split payload")
		}
		id, err = h.service.SubmitSplit(ctx, roomID, identity.UserID, *req.Split)
	default:
		id, err = h.service.Submit(ctx, roomID, identity.UserID, req.Text)
	}
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, submitResponse{MessageID: id})
}

// HistoryGet handles GET /rooms/:roomId/messages.
func (h *Handler) HistoryGet(c echo.Context) error {
	messages, err := h.service.History(c.Request().Context(), c.Param("roomId"))
	if err != nil {
		return httpError(err)
	}
	// An empty room returns an empty list, not null.
	if messages == nil {
		messages = []domain.Message{}
	}
	return c.JSON(http.StatusOK, historyResponse{Messages: messages})
}

// AuthPost handles POST /broadcast/auth. It accepts the form encoding
// realtime clients send on their subscription handshake.
func (h *Handler) AuthPost(c echo.Context) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, domain.ErrUnauthorized.Error())
	}

	socketID := c.FormValue("socket_id")
	channel := c.FormValue("channel_name")
	if socketID == "" || channel == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "socket_id and channel_name are required")
	}

	grant, err := h.authorizer.Authorize(socketID, channel, identity)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, grant)
}

// httpError maps domain sentinels onto HTTP statuses. Anything not in
// the taxonomy is a 500 with the cause kept internal.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, domain.ErrRateLimited.Error()).SetInternal(err)
	case errors.Is(err, domain.ErrStoreUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, domain.ErrStoreUnavailable.Error()).SetInternal(err)
	case errors.Is(err, domain.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, domain.ErrUnauthorized.Error()).SetInternal(err)
	case errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUnknownKind),
		errors.Is(err, domain.ErrMalformedChannel):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error").SetInternal(err)
	}
}

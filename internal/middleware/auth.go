package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"

	"github.com/driftchat/drift/internal/domain"
)

// IdentityContextKey is the echo context key the resolved identity is
// stored under.
const IdentityContextKey = "identity"

// identityClaims is the token payload an identity provider issues for a
// signed-in user.
type identityClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Identity resolves the caller's identity from a Bearer token, falling
// back to the session cookie, and stores it on the context. Requests
// without a resolvable identity pass through unauthenticated; use
// RequireIdentity on routes that need one.
func Identity(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id, ok := fromBearer(c, key); ok {
				c.Set(IdentityContextKey, id)
				return next(c)
			}
			if id, ok := fromSession(c); ok {
				c.Set(IdentityContextKey, id)
			}
			return next(c)
		}
	}
}

// RequireIdentity rejects requests that carry no authenticated identity.
func RequireIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok := IdentityFrom(c); !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, domain.ErrUnauthorized.Error())
		}
		return next(c)
	}
}

// IdentityFrom reads the identity a preceding Identity middleware stored
// on the context.
func IdentityFrom(c echo.Context) (domain.Identity, bool) {
	id, ok := c.Get(IdentityContextKey).(domain.Identity)
	return id, ok && id.UserID != ""
}

func fromBearer(c echo.Context, key []byte) (domain.Identity, bool) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return domain.Identity{}, false
	}

	claims := &identityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return domain.Identity{}, false
	}

	return domain.Identity{UserID: claims.Subject, DisplayName: claims.Name}, true
}

func fromSession(c echo.Context) (domain.Identity, bool) {
	sess, err := session.Get("session", c)
	if err != nil {
		return domain.Identity{}, false
	}

	userID, _ := sess.Values["user_id"].(string)
	if userID == "" {
		return domain.Identity{}, false
	}
	name, _ := sess.Values["name"].(string)
	return domain.Identity{UserID: userID, DisplayName: name}, true
}

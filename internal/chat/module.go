package chat

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/driftchat/drift/internal/channelauth"
	"github.com/driftchat/drift/internal/middleware"
	"github.com/driftchat/drift/internal/module"
	"github.com/driftchat/drift/internal/registry"
)

// Registry keys for the services this module shares.
var (
	ServiceKey    = registry.Key[*Service]("chat.service")
	AuthorizerKey = registry.Key[*channelauth.Authorizer]("chat.authorizer")
)

// Dependencies are the services the chat module needs injected at
// construction time.
type Dependencies struct {
	Service    *Service
	Authorizer *channelauth.Authorizer
}

// Module mounts the message pipeline's HTTP surface and shares its
// service with other modules through the registry.
type Module struct {
	module.BaseModule
	service    *Service
	authorizer *channelauth.Authorizer
	handler    *Handler
}

// New creates the chat module.
func New(deps Dependencies) *Module {
	return &Module{
		service:    deps.Service,
		authorizer: deps.Authorizer,
	}
}

func (m *Module) Name() string {
	return "chat"
}

func (m *Module) Register(reg *registry.Registry) error {
	registry.Set(reg, ServiceKey, m.service)
	registry.Set(reg, AuthorizerKey, m.authorizer)
	return nil
}

func (m *Module) Boot(ctx context.Context, router *echo.Group, reg *registry.Registry) error {
	m.handler = NewHandler(m.service, m.authorizer)

	cfg := reg.Config()
	perIP := middleware.RateLimiter(cfg.RateLimitCeiling * 6)

	router.POST("/rooms/:roomId/messages", m.handler.SubmitPost, perIP)
	router.GET("/rooms/:roomId/messages", m.handler.HistoryGet)
	router.POST("/broadcast/auth", m.handler.AuthPost)
	return nil
}

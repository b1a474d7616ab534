package websocket

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/driftchat/drift/internal/broadcast"
	"github.com/driftchat/drift/internal/chat"
	"github.com/driftchat/drift/internal/module"
	"github.com/driftchat/drift/internal/registry"
)

// Module mounts the realtime delivery surface. It discovers the chat
// service through the registry, so it must boot after the chat module
// has registered.
type Module struct {
	module.BaseModule
	channel *broadcast.Channel
	bridge  *Bridge
}

// Dependencies are the services the websocket module needs injected.
type Dependencies struct {
	Channel *broadcast.Channel
}

// NewModule creates the websocket module.
func NewModule(deps Dependencies) *Module {
	return &Module{channel: deps.Channel}
}

func (m *Module) Name() string {
	return "websocket"
}

func (m *Module) Boot(ctx context.Context, router *echo.Group, reg *registry.Registry) error {
	service := registry.MustGet(reg, chat.ServiceKey)
	m.bridge = NewBridge(m.channel, service, reg.Config().SweepInterval)

	router.GET("/rooms/:roomId", m.bridge.Handler())
	return nil
}

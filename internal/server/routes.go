package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/driftchat/drift/internal/middleware"
)

// RegisterRoutes runs the module lifecycle: every module registers its
// services first, then boots onto its route group. The chat module owns
// the REST surface under /api; the websocket module owns /ws.
func (s *Server) RegisterRoutes(ctx context.Context) error {
	for _, m := range s.modules {
		if err := m.Register(s.registry); err != nil {
			return fmt.Errorf("registering module %s: %w", m.Name(), err)
		}
	}

	groups := map[string]*echo.Group{
		"chat":      s.E.Group("/api", middleware.RequireIdentity),
		"websocket": s.E.Group("/ws", middleware.RequireIdentity),
	}
	for _, m := range s.modules {
		group, ok := groups[m.Name()]
		if !ok {
			return fmt.Errorf("no route group for module %s", m.Name())
		}
		if err := m.Boot(ctx, group, s.registry); err != nil {
			return fmt.Errorf("booting module %s: %w", m.Name(), err)
		}
	}

	s.E.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})
	return nil
}

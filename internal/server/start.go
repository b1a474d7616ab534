package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Start runs the HTTP server and blocks until an interrupt or terminate
// signal arrives, then shuts everything down gracefully.
func (s *Server) Start() {
	go func() {
		if err := s.E.Start(s.Cfg.Addr); err != nil && err != http.ErrServerClosed {
			slog.Error("Server stopped", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Shutdown(ctx)
}

// Shutdown stops the HTTP listener, the modules, and the backing
// services in dependency order.
func (s *Server) Shutdown(ctx context.Context) {
	if err := s.E.Shutdown(ctx); err != nil {
		slog.Error("HTTP shutdown", "error", err)
	}

	for _, m := range s.modules {
		if err := m.Shutdown(ctx); err != nil {
			slog.Error("Module shutdown", "module", m.Name(), "error", err)
		}
	}

	if err := s.Bridge.Close(); err != nil {
		slog.Error("Pub/sub shutdown", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("Store shutdown", "error", err)
	}
	slog.Info("Shutdown complete")
}

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/driftchat/drift/internal/server"
)

func main() {
	s, err := server.New()
	if err != nil {
		slog.Error("Failed to wire server", "error", err)
		os.Exit(1)
	}

	if err := s.RegisterRoutes(context.Background()); err != nil {
		slog.Error("Failed to register routes", "error", err)
		os.Exit(1)
	}

	s.Start()
}

package server

import (
	"fmt"
	"log/slog"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/driftchat/drift/internal/broadcast"
	"github.com/driftchat/drift/internal/channelauth"
	"github.com/driftchat/drift/internal/chat"
	"github.com/driftchat/drift/internal/config"
	"github.com/driftchat/drift/internal/logging"
	"github.com/driftchat/drift/internal/middleware"
	"github.com/driftchat/drift/internal/module"
	"github.com/driftchat/drift/internal/pubsub"
	"github.com/driftchat/drift/internal/ratelimit"
	"github.com/driftchat/drift/internal/registry"
	"github.com/driftchat/drift/internal/store"
	"github.com/driftchat/drift/internal/websocket"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	E       *echo.Echo
	Cfg     *config.Config
	Store   store.Store
	Bridge  *pubsub.WatermillBridge
	Channel *broadcast.Channel
	Service *chat.Service

	registry *registry.Registry
	modules  []module.Module
}

// New creates a new Server instance with every service wired.
func New() (*Server, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	logging.New(cfg.LogFormat, cfg.LogLevel)

	st, err := store.Open(cfg.BadgerPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	bridge := pubsub.NewWatermillBridge()
	channel := broadcast.New(bridge, bridge)

	limiter, err := ratelimit.New(cfg, st)
	if err != nil {
		return nil, fmt.Errorf("building rate limiter: %w", err)
	}

	service := chat.NewService(st, limiter, channel, cfg.MessageTTL, cfg.MaxContentLength)
	authorizer := channelauth.NewAuthorizer(cfg.AuthSecret, cfg.GrantTTL)

	e := echo.New()
	e.HideBanner = true
	e.Validator = NewValidator()
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger)
	e.Use(echomw.Recover())

	cookieStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	cookieStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
	}
	e.Use(session.Middleware(cookieStore))
	e.Use(middleware.Identity(cfg.AuthSecret))

	s := &Server{
		E:       e,
		Cfg:     cfg,
		Store:   st,
		Bridge:  bridge,
		Channel: channel,
		Service: service,

		registry: registry.New(cfg),
		modules: []module.Module{
			chat.New(chat.Dependencies{Service: service, Authorizer: authorizer}),
			websocket.NewModule(websocket.Dependencies{Channel: channel}),
		},
	}

	slog.Info("Server wired",
		"addr", cfg.Addr,
		"message_ttl", cfg.MessageTTL,
		"rate_limiter", cfg.RateLimiterMode)
	return s, nil
}

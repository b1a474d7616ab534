package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Rate limiter selection. The store-backed limiter is correct under
// horizontal scaling; the memory limiter under-counts across instances and
// is only suitable for single-instance deployments.
const (
	RateLimiterStore  = "store"
	RateLimiterMemory = "memory"
)

// Config holds all configuration for the application, loaded from the
// environment (with an optional .env file for development).
type Config struct {
	Addr string `envconfig:"ADDR" default:":8080"`

	// BadgerPath is the directory for the expiring store. Empty means
	// in-memory, which is what tests and local development use.
	BadgerPath string `envconfig:"BADGER_PATH"`

	// MessageTTL is how long a message lives in the store and in every
	// subscriber's view.
	MessageTTL       time.Duration `envconfig:"MESSAGE_TTL" default:"60s"`
	MaxContentLength int           `envconfig:"MAX_CONTENT_LENGTH" default:"1000"`

	RateLimitWindow  time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s"`
	RateLimitCeiling int           `envconfig:"RATE_LIMIT_CEILING" default:"10"`
	RateLimiterMode  string        `envconfig:"RATE_LIMITER_MODE" default:"store"`

	// SweepInterval is how often a room view prunes messages whose age
	// exceeds the TTL, independent of expiry events.
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"5s"`

	AuthSecret    string        `envconfig:"AUTH_SECRET" required:"true"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	GrantTTL      time.Duration `envconfig:"GRANT_TTL" default:"2m"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"debug"`
}

// New loads configuration from environment variables.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	switch cfg.RateLimiterMode {
	case RateLimiterStore, RateLimiterMemory:
	default:
		return nil, fmt.Errorf("RATE_LIMITER_MODE must be %q or %q, got %q",
			RateLimiterStore, RateLimiterMemory, cfg.RateLimiterMode)
	}

	if cfg.MessageTTL <= 0 || cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("MESSAGE_TTL and RATE_LIMIT_WINDOW must be positive")
	}

	return &cfg, nil
}

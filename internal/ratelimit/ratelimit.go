// Package ratelimit bounds how many messages a sender may post to a room
// per window. Two implementations exist: a store-backed limiter that is
// correct across process instances, and a local in-memory limiter for
// single-instance deployments. They are selected by configuration and
// never mixed.
package ratelimit

import (
	"context"
	"fmt"

	"github.com/driftchat/drift/internal/config"
	"github.com/driftchat/drift/internal/store"
)

// Limiter decides whether a (sender, room) pair may post another message.
//
// The increment happens before the cap check, so the count reflects
// attempts rather than successes: a burst of rejected attempts keeps the
// counter saturated until the window elapses.
type Limiter interface {
	// Allow records an attempt and reports whether it is within the
	// ceiling. A non-nil error means the decision could not be made
	// (backing store unreachable) and must be treated as a service-level
	// failure, never as an allow or a deny.
	Allow(ctx context.Context, senderID, roomID string) (bool, error)
}

// New builds the limiter selected by configuration.
func New(cfg *config.Config, s store.Store) (Limiter, error) {
	switch cfg.RateLimiterMode {
	case config.RateLimiterStore:
		return NewStoreLimiter(s, cfg.RateLimitCeiling, cfg.RateLimitWindow), nil
	case config.RateLimiterMemory:
		return NewMemoryLimiter(cfg.RateLimitCeiling, cfg.RateLimitWindow), nil
	default:
		return nil, fmt.Errorf("unknown rate limiter mode %q", cfg.RateLimiterMode)
	}
}

// counterKey scopes counters per (sender, room) so rooms do not interfere
// with each other.
func counterKey(senderID, roomID string) string {
	return "rate:" + roomID + ":" + senderID
}

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/driftchat/drift/internal/domain"
	"github.com/driftchat/drift/internal/store"
)

// StoreLimiter keeps its counters in the shared expiring store, so the
// ceiling holds across any number of process instances.
type StoreLimiter struct {
	store   store.Store
	ceiling int64
	window  time.Duration
}

// NewStoreLimiter creates a limiter allowing ceiling attempts per window
// for each (sender, room) pair.
func NewStoreLimiter(s store.Store, ceiling int, window time.Duration) *StoreLimiter {
	return &StoreLimiter{store: s, ceiling: int64(ceiling), window: window}
}

// Allow atomically increments the pair's counter. The first increment of a
// window arms the counter's expiry; the window therefore starts at the
// first attempt and is not extended by later ones.
func (l *StoreLimiter) Allow(ctx context.Context, senderID, roomID string) (bool, error) {
	key := counterKey(senderID, roomID)

	count, err := l.store.Increment(ctx, key)
	if err != nil {
		return false, fmt.Errorf("incrementing rate counter: %w", domain.ErrStoreUnavailable)
	}

	if count == 1 {
		if err := l.store.Expire(ctx, key, l.window); err != nil {
			return false, fmt.Errorf("arming rate window: %w", domain.ErrStoreUnavailable)
		}
	}

	return count <= l.ceiling, nil
}

package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter keeps per-key counts and window starts in process memory.
//
// It is NOT correct under multiple concurrent process instances: each
// instance counts only its own traffic, so the global ceiling is
// under-enforced. Deploy it on a single instance only; the store-backed
// limiter is the horizontally safe choice.
type MemoryLimiter struct {
	mu      sync.Mutex
	ceiling int
	window  time.Duration
	entries map[string]*memoryWindow

	// now is swappable for tests.
	now func() time.Time
}

type memoryWindow struct {
	count       int
	windowStart time.Time
}

// NewMemoryLimiter creates a local sliding-window limiter.
func NewMemoryLimiter(ceiling int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		ceiling: ceiling,
		window:  window,
		entries: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

// Allow resets the pair's window when it has elapsed, then counts the
// attempt and compares against the ceiling.
func (l *MemoryLimiter) Allow(ctx context.Context, senderID, roomID string) (bool, error) {
	key := counterKey(senderID, roomID)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || now.Sub(entry.windowStart) > l.window {
		entry = &memoryWindow{windowStart: now}
		l.entries[key] = entry
	}

	entry.count++
	return entry.count <= l.ceiling, nil
}

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has already expired.
var ErrNotFound = errors.New("key not found")

// Store is a shared key-value store with per-key and per-field time-to-live.
// It holds room message collections (as hashes, one field per message) and
// per-(sender, room) rate-limit counters.
//
// Increment must be atomic: the rate limiter depends on concurrent
// submissions observing distinct counts.
type Store interface {
	// Set writes a value under key. A positive ttl bounds its lifetime.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// HashSet writes a field of the hash stored at key. The ttl applies to
	// the field individually, so each message expires exactly TTL after its
	// own write rather than when the newest message refreshes the hash.
	HashSet(ctx context.Context, key, field string, value []byte, ttl time.Duration) error

	// HashGetAll returns all live fields of the hash stored at key. A hash
	// with no live fields yields an empty map, not an error.
	HashGetAll(ctx context.Context, key string) (map[string][]byte, error)

	// Expire sets or replaces the ttl of an existing plain key.
	// Returns ErrNotFound if the key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Increment atomically adds one to the integer stored at key, creating
	// it at 1 if absent or expired, and returns the new count. The key's
	// remaining ttl, if any, is preserved.
	Increment(ctx context.Context, key string) (int64, error)

	Close() error
}

package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	plainPrefix = "k\x00"
	hashPrefix  = "h\x00"
	sep         = "\x00"
)

// Badger implements Store on an embedded Badger database.
//
// Badger's native entry TTL has one-second granularity, which is too coarse
// for the expiry semantics tests and sweeps depend on. Each value therefore
// carries its own expiry timestamp in an 8-byte prefix: reads treat a
// past-expiry entry as absent with nanosecond precision, and the Badger TTL
// (rounded up by a second) only garbage-collects the bytes afterwards.
type Badger struct {
	db *badger.DB
}

// Open opens a Badger-backed store at the given directory.
// An empty path opens an in-memory database.
func Open(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %q: %w", path, err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// encode prepends the logical expiry (unix nanoseconds, 0 for none) to the
// value.
func encode(value []byte, expiresAt time.Time) []byte {
	buf := make([]byte, 8+len(value))
	if !expiresAt.IsZero() {
		binary.BigEndian.PutUint64(buf, uint64(expiresAt.UnixNano()))
	}
	copy(buf[8:], value)
	return buf
}

func decode(raw []byte) (value []byte, expiresAt time.Time, err error) {
	if len(raw) < 8 {
		return nil, time.Time{}, fmt.Errorf("corrupt store entry: %d bytes", len(raw))
	}
	if nanos := binary.BigEndian.Uint64(raw); nanos != 0 {
		expiresAt = time.Unix(0, int64(nanos))
	}
	return raw[8:], expiresAt, nil
}

func live(expiresAt time.Time, now time.Time) bool {
	return expiresAt.IsZero() || now.Before(expiresAt)
}

// physical converts a logical ttl to the Badger entry TTL. Rounding up a
// second keeps the entry readable for the whole logical lifetime.
func physical(ttl time.Duration) time.Duration {
	return ttl + time.Second
}

func (b *Badger) set(key []byte, value []byte, ttl time.Duration) error {
	return b.db.Update(func(txn *badger.Txn) error {
		var expiresAt time.Time
		if ttl > 0 {
			expiresAt = time.Now().Add(ttl)
		}
		entry := badger.NewEntry(key, encode(value, expiresAt))
		if ttl > 0 {
			entry = entry.WithTTL(physical(ttl))
		}
		return txn.SetEntry(entry)
	})
}

// get returns the live value at key within txn, or ErrNotFound.
func get(txn *badger.Txn, key []byte) ([]byte, time.Time, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, time.Time{}, err
	}
	value, expiresAt, err := decode(raw)
	if err != nil {
		return nil, time.Time{}, err
	}
	if !live(expiresAt, time.Now()) {
		return nil, time.Time{}, ErrNotFound
	}
	return value, expiresAt, nil
}

func (b *Badger) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.set([]byte(plainPrefix+key), value, ttl)
}

func (b *Badger) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		v, _, err := get(txn, []byte(plainPrefix+key))
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	return value, err
}

func (b *Badger) HashSet(ctx context.Context, key, field string, value []byte, ttl time.Duration) error {
	return b.set([]byte(hashPrefix+key+sep+field), value, ttl)
}

func (b *Badger) HashGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	prefix := []byte(hashPrefix + key + sep)
	fields := make(map[string][]byte)
	now := time.Now()

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			field := string(item.Key()[len(prefix):])
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			value, expiresAt, err := decode(raw)
			if err != nil {
				return err
			}
			if !live(expiresAt, now) {
				continue
			}
			fields[field] = value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fields, nil
}

func (b *Badger) Expire(ctx context.Context, key string, ttl time.Duration) error {
	k := []byte(plainPrefix + key)
	return b.retryUpdate(func(txn *badger.Txn) error {
		value, _, err := get(txn, k)
		if err != nil {
			return err
		}
		entry := badger.NewEntry(k, encode(value, time.Now().Add(ttl))).WithTTL(physical(ttl))
		return txn.SetEntry(entry)
	})
}

func (b *Badger) Increment(ctx context.Context, key string) (int64, error) {
	k := []byte(plainPrefix + key)
	var count int64

	err := b.retryUpdate(func(txn *badger.Txn) error {
		count = 1
		var expiresAt time.Time

		value, exp, err := get(txn, k)
		switch {
		case errors.Is(err, ErrNotFound):
			// First increment in a window, or the previous window expired.
		case err != nil:
			return err
		default:
			n, err := strconv.ParseInt(string(value), 10, 64)
			if err != nil {
				return fmt.Errorf("counter %q holds non-integer value: %w", key, err)
			}
			count = n + 1
			expiresAt = exp
		}

		entry := badger.NewEntry(k, encode([]byte(strconv.FormatInt(count, 10)), expiresAt))
		if !expiresAt.IsZero() {
			if remaining := time.Until(expiresAt); remaining > 0 {
				entry = entry.WithTTL(physical(remaining))
			}
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// retryUpdate runs fn in a read-write transaction, retrying on commit
// conflicts so concurrent increments serialize instead of failing.
func (b *Badger) retryUpdate(fn func(txn *badger.Txn) error) error {
	for {
		err := b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
}

// Package cache provides the keyed cache used for login attempt counters and
// memoized ticket listings. Entries are advisory: the database stays the
// source of truth and every caller tolerates a miss.
package cache

import (
	"context"
	"time"

	"collegefeedback/internal/config"
)

// Store is a small string key/value cache with expiry
type Store interface {
	// Get returns the value and whether it was present
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores a value; a zero ttl keeps it until deleted
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores a value only if the key is absent and reports whether it did
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Incr increments a counter, starting the ttl when the counter is created
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// TTL returns the remaining lifetime of a key, or zero if it has none or is missing
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Delete removes keys; missing keys are ignored
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// New returns a RedisStore when Redis is configured and a MemoryStore otherwise
func New(ctx context.Context, cfg config.RedisConfig) (Store, error) {
	if !cfg.Enabled() {
		return NewMemoryStore(), nil
	}
	return NewRedisStore(ctx, cfg)
}

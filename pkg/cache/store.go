package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates the key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates a stored entry could not be decoded.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is one cache backend. Implementations must be safe for concurrent
// use and must treat expired entries as ErrCacheMiss.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	// Set stores value; ttl 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Flush removes every entry in the store's namespace.
	Flush(ctx context.Context) error
	Available(ctx context.Context) bool
	Name() string
}

// nowFunc is swapped in tests.
type nowFunc func() time.Time

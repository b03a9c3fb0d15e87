package providers

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by Get when the key is not present.
var ErrCacheMiss = errors.New("cache miss")

// CacheProvider defines the interface for caching operations
type CacheProvider interface {
	// Get retrieves a value from cache. Returns ErrCacheMiss if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache. expirationSeconds <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, expirationSeconds int) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in cache
	Exists(ctx context.Context, key string) (bool, error)

	// DeletePattern removes every key matching a glob pattern and returns the count.
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

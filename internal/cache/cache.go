// Package cache holds keyed, expiring stores for derived data such as
// shuffled question sets.
package cache

import (
	"context"
	"time"
)

// Cache is a keyed store with per-entry expiry.
type Cache[V any] interface {
	// Get returns the value for key and whether it was present and fresh.
	Get(ctx context.Context, key string) (V, bool, error)
	Set(ctx context.Context, key string, value V) error
	Delete(ctx context.Context, key string) error
}

// Options configures a cache.
type Options struct {
	// TTL is how long an entry stays fresh after Set.
	TTL time.Duration
	// Capacity bounds the number of entries in a MemoryCache. Zero means
	// unbounded.
	Capacity int
}

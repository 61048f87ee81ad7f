// Package cache stores upstream responses for a bounded time.
//
// Two implementations: Memory (per process, the default) and Redis (shared
// between instances, used when REDIS_ADDR is set).
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry expiry.
// A miss is (nil, false, nil); err is reserved for backend failures.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Package cache provides short-TTL response caching for upstream search calls.
//
// Two backends are available: a process-local cache with a capacity bound and
// least-recently-used eviction, and a Redis-backed cache for deployments where
// several instances should share deduplication.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache defines the interface for response cache operations. Values are opaque
// JSON documents; failures are never cached by callers.
type Cache interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool)
	Set(ctx context.Context, key string, value json.RawMessage) error
}

// Options holds cache tuning knobs shared by both backends.
type Options struct {
	// TTL is how long an entry stays visible after being stored
	TTL time.Duration
	// MaxEntries bounds the local cache size; ignored by the Redis backend
	MaxEntries int
}

// DefaultOptions returns the defaults used for upstream search responses.
func DefaultOptions() Options {
	return Options{
		TTL:        60 * time.Second,
		MaxEntries: 512,
	}
}

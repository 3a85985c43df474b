package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache is a Redis-backed response cache. Expiry is enforced by Redis
// through per-key TTLs; the capacity bound is delegated to the server's
// eviction policy.
type RedisCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisCache creates a Redis cache instance with the given key prefix.
func NewRedisCache(client *redis.Client, keyPrefix string, opts Options) *RedisCache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultOptions().TTL
	}

	return &RedisCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       opts.TTL,
	}
}

// Get retrieves a value from Redis. Connection errors are treated as misses;
// the caller falls through to the upstream.
func (r *RedisCache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	val, err := r.client.Get(ctx, r.keyPrefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return json.RawMessage(val), true
}

// Set stores a value in Redis with the configured TTL.
func (r *RedisCache) Set(ctx context.Context, key string, value json.RawMessage) error {
	return r.client.Set(ctx, r.keyPrefix+key, []byte(value), r.ttl).Err()
}

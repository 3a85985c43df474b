package cache

import (
	"strconv"

	"github.com/go-redis/redis/v8"

	"farearound/internal/config"
)

const redisKeyPrefix = "farearound:cache:"

// NewFromConfig builds the response cache selected by CACHE_BACKEND.
func NewFromConfig(cfg *config.Config) (Cache, error) {
	opts := Options{
		TTL:        cfg.CacheTTL,
		MaxEntries: cfg.CacheMaxEntries,
	}

	switch cfg.CacheBackend {
	case "redis":
		db, err := strconv.Atoi(cfg.RedisDB)
		if err != nil {
			db = 0
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       db,
		})
		return NewRedisCache(client, redisKeyPrefix, opts), nil
	default:
		return NewLocalCache(opts), nil
	}
}

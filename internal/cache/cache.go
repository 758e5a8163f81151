// FilePath: internal/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itsatony/devicehub/internal/config"
	"github.com/redis/go-redis/v9"
	nuts "github.com/vaudience/go-nuts"
)

// Cache is a small JSON-over-redis result cache. Entries expire after the
// configured TTL; stale reads are impossible beyond that horizon, which is
// acceptable for an append-only dataset queried in windows anchored at "now".
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to redis and verifies the connection.
func New(cfg config.RedisConfig, ttl time.Duration) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}

	nuts.L.Infof("[Cache] Connected to redis at %s:%d (ttl %v)", cfg.Host, cfg.Port, ttl)
	return &Cache{rdb: rdb, ttl: ttl}, nil
}

// Get unmarshals the cached value for key into dest. The first return value
// reports whether the key existed.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set marshals value and stores it under key with the cache TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, c.ttl).Err()
}

// Close releases the redis connection.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

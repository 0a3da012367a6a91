package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares entries across processes. Values are stored as JSON and
// expire through the Redis key TTL.
type RedisCache[V any] struct {
	rdb    *redis.Client
	prefix string
	opts   Options
}

// NewRedisCache creates a RedisCache. Every key is stored under prefix.
func NewRedisCache[V any](rdb *redis.Client, prefix string, opts Options) *RedisCache[V] {
	return &RedisCache[V]{rdb: rdb, prefix: prefix, opts: opts}
}

func (c *RedisCache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var value V
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return value, false, nil
	}
	if err != nil {
		return value, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		// A corrupt entry is treated as a miss and overwritten on the next Set.
		return value, false, nil
	}
	return value, true, nil
}

func (c *RedisCache[V]) Set(ctx context.Context, key string, value V) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, c.prefix+key, raw, c.opts.TTL).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache[V]) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

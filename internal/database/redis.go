package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-portal/internal/config"
)

// NewRedisClient creates and validates the Redis client used for the shared
// question cache, shared rate-limit counters and the OTP dispatch queue.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opt.DialTimeout = cfg.DBConnectTimeout
	opt.MaxRetries = cfg.DBConnectRetries

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Str("cache_backend", string(cfg.CacheBackend)).
		Str("rate_limit_backend", string(cfg.RateLimitBackend)).
		Msg("Redis connected")

	return rdb, nil
}

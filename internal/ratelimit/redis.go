package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript counts one hit and arms the window expiry on the first hit.
// It returns the count and the remaining TTL in milliseconds.
var allowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

// RedisLimiter shares fixed-window counters across processes. The first hit
// in a window creates the counter and sets its expiry.
type RedisLimiter struct {
	rdb    *redis.Client
	prefix string
	cfg    Config
}

// NewRedisLimiter creates a RedisLimiter storing counters under prefix.
func NewRedisLimiter(rdb *redis.Client, prefix string, cfg Config) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, prefix: prefix, cfg: cfg}
}

// Allow counts one attempt for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Info, error) {
	res, err := allowScript.Run(ctx, l.rdb, []string{l.prefix + key}, l.cfg.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Info{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(res) != 2 {
		return Info{}, fmt.Errorf("rate limit %s: unexpected reply %v", key, res)
	}

	remainingTTL := time.Duration(res[1]) * time.Millisecond
	if remainingTTL < 0 {
		remainingTTL = l.cfg.Window
	}
	reset := time.Now().Add(remainingTTL)

	count := int(res[0])
	if count > l.cfg.MaxAttempts {
		return Info{Allowed: false, ResetTime: reset, RetryAfter: remainingTTL}, nil
	}
	return Info{
		Allowed:   true,
		Remaining: l.cfg.MaxAttempts - count,
		ResetTime: reset,
	}, nil
}

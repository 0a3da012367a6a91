package worker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue is a FIFO of opaque payloads shared between producers and a worker.
type Queue interface {
	Push(ctx context.Context, payload []byte) error
	// Pop blocks up to timeout. ok is false when nothing arrived.
	Pop(ctx context.Context, timeout time.Duration) (payload []byte, ok bool, err error)
}

// RedisQueue is a Queue backed by a Redis list (RPUSH / BLPOP).
type RedisQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisQueue creates a queue on the list at key.
func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: key}
}

func (q *RedisQueue) Push(ctx context.Context, payload []byte) error {
	return q.rdb.RPush(ctx, q.key, payload).Err()
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, bool, error) {
	item, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if len(item) < 2 {
		return nil, false, nil
	}
	return []byte(item[1]), true, nil
}

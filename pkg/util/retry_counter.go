package util

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RetryCounter 在 Redis 中记录消息的投递次数，requeue 和 worker 重启后仍然有效
type RetryCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRetryCounter(rdb *redis.Client, ttl time.Duration) *RetryCounter {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RetryCounter{rdb: rdb, ttl: ttl}
}

func attemptsKey(key string) string {
	return "mq:attempts:" + key
}

// IncrementAndGet 计数加一并刷新过期时间，返回新的次数
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, attemptsKey(key))
		pipe.Expire(ctx, attemptsKey(key), r.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Get 返回当前次数；没有记录时为 0
func (r *RetryCounter) Get(ctx context.Context, key string) (int64, error) {
	n, err := r.rdb.Get(ctx, attemptsKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, attemptsKey(key)).Err()
}

package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper 用 SET NX 认领 (handler, event id)，跳过重复投递的事件
// 它只是快速路径：Redis 不可用时放行，由数据库唯一约束兜底
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Deduper{rdb: rdb, ttl: ttl, logger: logger}
}

func dedupKey(handler, id string) string {
	return "mq:dedup:" + handler + ":" + id
}

// AcquireOnce 第一次认领返回 true，重复事件返回 false
func (d *Deduper) AcquireOnce(ctx context.Context, handler string, id string) bool {
	key := dedupKey(handler, id)
	claimed, err := d.rdb.SetNX(ctx, key, time.Now().Unix(), d.ttl).Result()
	if err != nil {
		d.logger.Warn("Dedup check failed, processing anyway",
			zap.String("dedup_key", key),
			zap.Error(err),
		)
		return true
	}
	if !claimed {
		d.logger.Info("Duplicate event skipped", zap.String("dedup_key", key))
	}
	return claimed
}

// Release 删除认领，处理失败的事件可以在重投时再次处理
func (d *Deduper) Release(ctx context.Context, handler string, id string) {
	key := dedupKey(handler, id)
	if err := d.rdb.Del(ctx, key).Err(); err != nil {
		d.logger.Warn("Failed to release dedup key", zap.String("dedup_key", key), zap.Error(err))
	}
}

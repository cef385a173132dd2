package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mochimo/pkg/metrics"
)

const maxLoggedSQL = 200

type queryStartKey struct{}

type queryStart struct {
	at  time.Time
	sql string
}

// SlowQueryTracer 实现 pgx.QueryTracer，记录超过阈值的查询
type SlowQueryTracer struct {
	logger        *zap.Logger
	slowThreshold time.Duration
	now           func() time.Time
}

// NewSlowQueryTracer 创建慢查询 Tracer，阈值为 0 时默认 100ms
func NewSlowQueryTracer(logger *zap.Logger, slowThreshold time.Duration) *SlowQueryTracer {
	if slowThreshold <= 0 {
		slowThreshold = 100 * time.Millisecond
	}
	return &SlowQueryTracer{
		logger:        logger,
		slowThreshold: slowThreshold,
		now:           time.Now,
	}
}

func (t *SlowQueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: t.now(), sql: data.SQL})
}

func (t *SlowQueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}

	took := t.now().Sub(start.at)
	if took <= t.slowThreshold {
		return
	}

	sql := truncateSQL(start.sql)
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.Duration("took", took),
		zap.String("command_tag", data.CommandTag.String()),
	}
	if data.Err != nil {
		fields = append(fields, zap.Error(data.Err))
	}
	t.logger.Warn("slow-query", fields...)
	metrics.IncrementSlowQuery(sql, took)
}

func truncateSQL(sql string) string {
	if sql == "" {
		return "unknown"
	}
	if len(sql) > maxLoggedSQL {
		return sql[:maxLoggedSQL] + "..."
	}
	return sql
}

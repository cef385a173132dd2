package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mochimo/pkg/trace"
)

var Log *zap.Logger

// NewLogger 创建全局 logger：local 用彩色 console 输出，其他环境输出 JSON
func NewLogger(env string, level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if env == "local" || env == "test" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	l, err := cfg.Build(zap.Fields(zap.String("env", env)))
	if err != nil {
		panic(err)
	}
	Log = l
	return l
}

// WithTrace 附加 context 中的 trace_id；没有时原样返回
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	traceID := trace.FromContext(ctx)
	if traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}

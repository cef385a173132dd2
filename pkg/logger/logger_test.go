package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"mochimo/pkg/trace"
)

func TestWithTrace(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithTrace(trace.WithContext(context.Background(), "trace-1"), base).Info("with")
	WithTrace(context.Background(), base).Info("without")

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, "trace-1", entries[0].ContextMap()["trace_id"])
	assert.NotContains(t, entries[1].ContextMap(), "trace_id")
}

func TestNewLoggerLevel(t *testing.T) {
	l := NewLogger("production", "warn")
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
	assert.Same(t, l, Log)

	l = NewLogger("local", "not-a-level")
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
}

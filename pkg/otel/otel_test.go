package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func TestInitDisabledReturnsNoopShutdown(t *testing.T) {
	shutdown, err := Init(Config{ServiceName: "mochimo-test"}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(0).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(1).Description())
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased")
}

func TestTxSpanRecordsFailure(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tracer = tp.Tracer("test")
	t.Cleanup(func() { tracer = nil })

	_, span := TxSpan(context.Background(), "project.create")
	EndSpan(span, errors.New("boom"))
	_, span = TxSpan(context.Background(), "task.complete")
	EndSpan(span, nil)

	ended := rec.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "tx project.create", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, codes.Unset, ended[1].Status().Code)
}

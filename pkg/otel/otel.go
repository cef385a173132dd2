package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const defaultEndpoint = "otel-collector:4317"

var tracer trace.Tracer

// Config OpenTelemetry 配置
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string // OTLP gRPC 地址
	Enabled        bool
	SampleRatio    float64
}

// ShutdownFunc 刷新并关闭 tracer provider
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init 安装全局 propagator，启用时再安装 OTLP tracer provider
func Init(cfg Config, logger *zap.Logger) (ShutdownFunc, error) {
	// 未启用导出时 trace context 仍需在 HTTP 与 MQ 之间传递
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		logger.Info("Tracing export disabled", zap.String("service", cfg.ServiceName))
		return noopShutdown, nil
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithHost(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(cfg.ServiceName)

	logger.Info("Tracing enabled",
		zap.String("service", cfg.ServiceName),
		zap.String("endpoint", cfg.Endpoint),
		zap.Float64("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

// samplerFor 比例在 (0,1) 之间时按比例采样并尊重上游决定，否则全采
func samplerFor(ratio float64) sdktrace.Sampler {
	if ratio > 0 && ratio < 1 {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
	return sdktrace.AlwaysSample()
}

// Tracer 未初始化时退回全局 provider（默认 noop）
func Tracer() trace.Tracer {
	if tracer == nil {
		return otel.Tracer("mochimo")
	}
	return tracer
}

func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

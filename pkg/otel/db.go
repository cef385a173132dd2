package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TxSpan 包住一次 repository 事务，name 是调用方给事务起的名字（如 "project.create"）
func TxSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return StartSpan(ctx, "tx "+name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", "transaction"),
			attribute.String("mochimo.tx", name),
		),
	)
}

// EndSpan 失败时记录错误，成功时不设置状态
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

package repository

import (
	"context"

	"mochimo/pkg/outbox"
)

// OutboxWriter 在当前事务中写入 outbox_events
type OutboxWriter struct {
	db DBTX
}

func (w *OutboxWriter) Append(ctx context.Context, aggregateType string, aggregateID int64, routingKey string, payload any) error {
	_, err := outbox.Append(ctx, w.db, aggregateType, &aggregateID, routingKey, payload)
	return err
}

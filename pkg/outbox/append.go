package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidEvent = errors.New("invalid outbox event")

// NewEvent 构造一个 pending 事件；routing key 形如 "project.created"
func NewEvent(aggregateType string, aggregateID *int64, routingKey string, payload any) (*Event, error) {
	if strings.TrimSpace(aggregateType) == "" {
		return nil, fmt.Errorf("%w: aggregate type is empty", ErrInvalidEvent)
	}
	if !strings.Contains(routingKey, ".") || strings.ContainsAny(routingKey, "*# ") {
		return nil, fmt.Errorf("%w: routing key %q", ErrInvalidEvent, routingKey)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", routingKey, err)
	}
	return &Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		RoutingKey:    routingKey,
		Payload:       body,
		Status:        StatusPending,
	}, nil
}

// Append 在 q 所属的事务中写入事件，随业务数据一起提交或回滚
func Append(ctx context.Context, q Querier, aggregateType string, aggregateID *int64, routingKey string, payload any) (*Event, error) {
	event, err := NewEvent(aggregateType, aggregateID, routingKey, payload)
	if err != nil {
		return nil, err
	}
	if err := InsertEvent(ctx, q, event); err != nil {
		return nil, err
	}
	return event, nil
}

package outbox

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"mochimo/pkg/metrics"
	"mochimo/pkg/trace"
)

// Publisher 由 mq.Publisher 实现
type Publisher interface {
	PublishEvent(ctx context.Context, routingKey string, body []byte) error
}

// Dispatcher 周期性地把 outbox 中的待发送事件发布到 MQ
type Dispatcher struct {
	store      Store
	publisher  Publisher
	logger     *zap.Logger
	maxRetries int
	interval   time.Duration
	batchSize  int
}

func NewDispatcher(store Store, publisher Publisher, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:      store,
		publisher:  publisher,
		logger:     logger,
		maxRetries: 5,
		interval:   time.Second,
		batchSize:  100,
	}
}

func (d *Dispatcher) WithMaxRetries(maxRetries int) *Dispatcher {
	if maxRetries > 0 {
		d.maxRetries = maxRetries
	}
	return d
}

func (d *Dispatcher) WithInterval(interval time.Duration) *Dispatcher {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Dispatcher) WithBatchSize(batchSize int) *Dispatcher {
	if batchSize > 0 {
		d.batchSize = batchSize
	}
	return d
}

// Start 阻塞运行直到 ctx 结束，调用方负责启动 goroutine
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting Outbox Dispatcher",
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("interval", d.interval),
		zap.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox Dispatcher stopped")
			return
		case <-ticker.C:
			d.RunOnce(ctx)
		}
	}
}

// RunOnce 处理一批到期事件，返回成功与失败的数量
func (d *Dispatcher) RunOnce(ctx context.Context) (sent int, failed int) {
	events, err := d.store.GetPendingEvents(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("Failed to get pending events", zap.Error(err))
		return 0, 0
	}
	if len(events) == 0 {
		return 0, 0
	}

	d.logger.Debug("Processing pending events", zap.Int("count", len(events)))

	for _, event := range events {
		if ctx.Err() != nil {
			return sent, failed
		}
		if err := d.publish(ctx, event); err != nil {
			failed++
			d.logger.Error("Failed to publish event",
				zap.Int64("event_id", event.ID),
				zap.String("routing_key", event.RoutingKey),
				zap.Error(err),
			)
			d.markFailed(ctx, event, err)
			continue
		}

		sent++
		metrics.IncrementOutbox("sent")
		if err := d.store.MarkAsSent(ctx, event.ID); err != nil {
			// 事件可能被再次投递，消费端按 event_id 去重
			d.logger.Error("Failed to mark event as sent",
				zap.Int64("event_id", event.ID),
				zap.Error(err),
			)
		}
	}
	return sent, failed
}

func (d *Dispatcher) markFailed(ctx context.Context, event *Event, cause error) {
	if event.RetryCount+1 >= d.maxRetries {
		metrics.IncrementOutbox("failed")
	} else {
		metrics.IncrementOutbox("retry")
	}
	if err := d.store.MarkAsFailed(ctx, event.ID, d.maxRetries, cause.Error()); err != nil {
		d.logger.Error("Failed to mark event as failed",
			zap.Int64("event_id", event.ID),
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) publish(ctx context.Context, event *Event) error {
	ctx = contextWithPayloadTrace(ctx, event.Payload)
	return d.publisher.PublishEvent(ctx, event.RoutingKey, event.Payload)
}

// contextWithPayloadTrace 沿用写入事件时记录的 trace_id
func contextWithPayloadTrace(ctx context.Context, payload json.RawMessage) context.Context {
	var envelope struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return ctx
	}
	if envelope.TraceID != "" {
		ctx = trace.WithContext(ctx, envelope.TraceID)
	}
	return ctx
}

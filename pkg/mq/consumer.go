package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"mochimo/pkg/metrics"
	"mochimo/pkg/otel"
	"mochimo/pkg/trace"
	"mochimo/pkg/util"
)

type MessageHandler func(ctx context.Context, data json.RawMessage) error

// RetryTracker counts delivery attempts per message across redeliveries.
type RetryTracker interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// DeadLetterFunc receives messages that exhausted their retries or can never succeed.
type DeadLetterFunc func(ctx context.Context, routingKey string, body []byte, reason string) error

type Consumer struct {
	channel     *amqp091.Channel
	queue       amqp091.Queue
	routingKeys []string
	handler     MessageHandler
	conn        *amqp091.Connection
	logger      *zap.Logger

	retries    RetryTracker
	maxRetries int64
	deadLetter DeadLetterFunc
	stop       chan struct{}
}

// NewConsumer declares queueName, binds it to every routing key (topic
// patterns allowed) and returns a consumer ready for SetHandler.
func NewConsumer(url, queueName string, routingKeys []string, logger *zap.Logger) (*Consumer, error) {
	conn, ch, err := openChannel(url)
	if err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range routingKeys {
		if err := ch.QueueBind(q.Name, key, ExchangeName, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to bind queue to %s: %w", key, err)
		}
	}

	if err := declareDLQQueue(ch, queueName); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.Qos(16, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.Strings("routing_keys", routingKeys),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:        conn,
		channel:     ch,
		queue:       q,
		routingKeys: routingKeys,
		logger:      logger,
		maxRetries:  3,
		stop:        make(chan struct{}),
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// WithRetries enables bounded redelivery: a retryable failure is requeued
// until maxRetries attempts, then dead-lettered.
func (c *Consumer) WithRetries(tracker RetryTracker, maxRetries int64, deadLetter DeadLetterFunc) *Consumer {
	c.retries = tracker
	c.maxRetries = maxRetries
	c.deadLetter = deadLetter
	return c
}

// IsConnected reports whether the underlying AMQP connection is open.
func (c *Consumer) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// Stop cancels the AMQP consumer so StartConsuming returns.
func (c *Consumer) Stop() {
	select {
	case <-c.stop:
		return
	default:
		close(c.stop)
	}
	if c.channel != nil {
		_ = c.channel.Cancel(c.queue.Name, false)
	}
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming blocks until the delivery channel closes or Stop is called.
func (c *Consumer) StartConsuming() error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		c.queue.Name, // consumer tag
		false,        // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.Strings("routing_keys", c.routingKeys),
		zap.String("queue", c.queue.Name),
	)

	for {
		select {
		case <-c.stop:
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.process(msg)
		}
	}
}

// process 保证每条消息都会被 ack 或 nack
func (c *Consumer) process(msg amqp091.Delivery) {
	start := time.Now()
	ctx := contextFromHeaders(msg.Headers)
	ctx, span := otel.MQConsumeSpan(ctx, msg.RoutingKey, c.queue.Name)
	defer span.End()

	log := c.logger.With(
		zap.String("routing_key", msg.RoutingKey),
		zap.String("queue", c.queue.Name),
		zap.String("message_id", msg.MessageId),
	)
	if traceID := trace.FromContext(ctx); traceID != "" {
		log = log.With(zap.String("trace_id", traceID))
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Handler panic recovered", zap.Any("panic", r))
			c.fail(ctx, log, msg, fmt.Errorf("handler panic: %v", r), false)
		}
		metrics.RecordMQConsumeLatency(msg.RoutingKey, c.queue.Name, time.Since(start))
	}()

	if err := c.handler(ctx, msg.Body); err != nil {
		retryable, errType := util.IsRetryableError(err)
		log.Error("Handler error",
			zap.Error(err),
			zap.Bool("retryable", retryable),
			zap.String("error_type", errType),
		)
		c.fail(ctx, log, msg, err, retryable)
		return
	}

	if c.retries != nil {
		_ = c.retries.Reset(ctx, c.retryKey(msg))
	}
	if err := msg.Ack(false); err != nil {
		log.Error("Failed to ack message", zap.Error(err))
		return
	}
	log.Debug("Message processed successfully")
}

func (c *Consumer) fail(ctx context.Context, log *zap.Logger, msg amqp091.Delivery, cause error, retryable bool) {
	// 没有配置重试上限时沿用重新入队
	if c.retries == nil || c.deadLetter == nil {
		if err := msg.Nack(false, true); err != nil {
			log.Error("Failed to nack message", zap.Error(err))
		}
		return
	}

	if retryable {
		attempts, err := c.retries.IncrementAndGet(ctx, c.retryKey(msg))
		if err != nil || util.ShouldRetry(attempts, c.maxRetries, retryable) {
			if err := msg.Nack(false, true); err != nil {
				log.Error("Failed to nack message", zap.Error(err))
			}
			return
		}
	}

	if err := c.deadLetter(ctx, msg.RoutingKey, msg.Body, cause.Error()); err != nil {
		log.Error("Failed to dead-letter message, requeueing", zap.Error(err))
		_ = msg.Nack(false, true)
		return
	}
	_ = c.retries.Reset(ctx, c.retryKey(msg))
	if err := msg.Ack(false); err != nil {
		log.Error("Failed to ack dead-lettered message", zap.Error(err))
		return
	}
	log.Warn("Message dead-lettered", zap.String("reason", cause.Error()))
}

func (c *Consumer) retryKey(msg amqp091.Delivery) string {
	id := msg.MessageId
	if id == "" {
		id = fmt.Sprintf("%x", util.Fingerprint(msg.Body))
	}
	return fmt.Sprintf("retry:%s:%s", c.queue.Name, id)
}

func contextFromHeaders(headers amqp091.Table) context.Context {
	ctx := otel.ExtractMQHeaders(context.Background(), headers)
	if traceID, ok := headers["trace_id"].(string); ok && traceID != "" {
		ctx = trace.WithContext(ctx, traceID)
	}
	return ctx
}

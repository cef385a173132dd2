package mq

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"mochimo/pkg/otel"
	"mochimo/pkg/trace"
)

// Publisher 把 outbox 事件写入 topic exchange；amqp091 channel 不是并发安全的，发布时持锁
type Publisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	mu      sync.Mutex
}

func NewPublisher(url string) (*Publisher, error) {
	conn, ch, err := openChannel(url)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		conn:    conn,
		channel: ch,
	}, nil
}

func (p *Publisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// ErrPublisherClosed 连接已断开时由 Ping 返回
var ErrPublisherClosed = errors.New("rabbitmq publisher connection closed")

// Ping 用于 /readyz：连接或 channel 关闭即视为不可用
func (p *Publisher) Ping(context.Context) error {
	if p.conn == nil || p.channel == nil || p.conn.IsClosed() || p.channel.IsClosed() {
		return ErrPublisherClosed
	}
	return nil
}

// PublishRaw 附带 trace_id 与 OTel 上下文 header 后发布
func (p *Publisher) PublishRaw(ctx context.Context, exchange, routingKey string, body []byte, headers amqp091.Table) error {
	ctx, span := otel.MQPublishSpan(ctx, routingKey, exchange)
	defer span.End()

	if headers == nil {
		headers = amqp091.Table{}
	}
	if traceID := trace.FromContext(ctx); traceID != "" {
		headers["trace_id"] = traceID
	}
	otel.InjectMQHeaders(ctx, headers)

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.PublishWithContext(
		ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
			Headers:      headers,
			Timestamp:    time.Now(),
		},
	)
}

// PublishEvent 供 outbox Dispatcher 调用
func (p *Publisher) PublishEvent(ctx context.Context, routingKey string, body []byte) error {
	return p.PublishRaw(ctx, ExchangeName, routingKey, body, nil)
}

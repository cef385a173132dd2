package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const DLQExchangeName = "mochimo.events.dlq"

// DeadLetter 是一条放弃处理的消息
type DeadLetter struct {
	Queue      string
	RoutingKey string
	Body       []byte
	Reason     string
	FailedAt   time.Time
}

// dlqRoutingKey 以原队列名为前缀，每个死信队列只收自己队列的消息
func dlqRoutingKey(queue, routingKey string) string {
	return queue + "." + routingKey
}

func dlqQueueName(queue string) string {
	return queue + ".dlq"
}

// declareDLQQueue 声明 queue 对应的死信队列并绑定 "<queue>.#"
func declareDLQQueue(ch *amqp091.Channel, queue string) error {
	q, err := ch.QueueDeclare(dlqQueueName(queue), true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare dlq %s: %w", dlqQueueName(queue), err)
	}
	if err := ch.QueueBind(q.Name, queue+".#", DLQExchangeName, false, nil); err != nil {
		return fmt.Errorf("bind dlq %s: %w", q.Name, err)
	}
	return nil
}

// PublishToDLQ 把消息连同失败原因写入死信 exchange
func (p *Publisher) PublishToDLQ(ctx context.Context, dl DeadLetter) error {
	if dl.FailedAt.IsZero() {
		dl.FailedAt = time.Now()
	}
	headers := amqp091.Table{
		"x-original-routing-key": dl.RoutingKey,
		"x-original-queue":       dl.Queue,
		"x-failure-reason":       dl.Reason,
		"x-failed-at":            dl.FailedAt.UTC().Format(time.RFC3339),
	}
	return p.PublishRaw(ctx, DLQExchangeName, dlqRoutingKey(dl.Queue, dl.RoutingKey), dl.Body, headers)
}

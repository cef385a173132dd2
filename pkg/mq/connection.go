package mq

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// ExchangeName 所有项目生命周期事件走这个 topic exchange
const ExchangeName = "mochimo.events"

const (
	dialAttempts = 5
	dialBackoff  = 500 * time.Millisecond
)

// NewConnection 连接 RabbitMQ；broker 启动慢于服务时按指数退避重试
func NewConnection(url string) (*amqp091.Connection, error) {
	cfg := amqp091.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Properties: amqp091.Table{
			"connection_name": "mochimo",
		},
	}

	var lastErr error
	backoff := dialBackoff
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, err := amqp091.DialConfig(url, cfg)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt < dialAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("connect rabbitmq after %d attempts: %w", dialAttempts, lastErr)
}

// declareTopology 声明事件 exchange 与死信 exchange，publisher 和 consumer 共用
func declareTopology(ch *amqp091.Channel) error {
	for _, name := range []string{ExchangeName, DLQExchangeName} {
		if err := ch.ExchangeDeclare(name, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	return nil
}

// openChannel 建连并声明拓扑；失败时关闭已打开的资源
func openChannel(url string) (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

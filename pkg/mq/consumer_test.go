package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"mochimo/pkg/trace"
)

type fakeAcker struct {
	acks, nacks, requeues int
}

func (a *fakeAcker) Ack(uint64, bool) error { a.acks++; return nil }
func (a *fakeAcker) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	if requeue {
		a.requeues++
	}
	return nil
}
func (a *fakeAcker) Reject(uint64, bool) error { return nil }

type memRetries struct{ counts map[string]int64 }

func (m *memRetries) IncrementAndGet(_ context.Context, key string) (int64, error) {
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memRetries) Reset(_ context.Context, key string) error {
	delete(m.counts, key)
	return nil
}

type deadLetters struct{ reasons []string }

func (d *deadLetters) publish(_ context.Context, _ string, _ []byte, reason string) error {
	d.reasons = append(d.reasons, reason)
	return nil
}

func newTestConsumer(h MessageHandler) (*Consumer, *memRetries, *deadLetters) {
	retries := &memRetries{counts: map[string]int64{}}
	dl := &deadLetters{}
	c := &Consumer{
		queue:  amqp091.Queue{Name: "notifications.q"},
		logger: zap.NewNop(),
		stop:   make(chan struct{}),
	}
	c.SetHandler(h)
	c.WithRetries(retries, 2, dl.publish)
	return c, retries, dl
}

func delivery(acker *fakeAcker, headers amqp091.Table) amqp091.Delivery {
	return amqp091.Delivery{
		Acknowledger: acker,
		RoutingKey:   "project.status_changed",
		MessageId:    "evt-1",
		Headers:      headers,
		Body:         []byte(`{"event_id":"evt-1"}`),
	}
}

func TestConsumerProcess_AcksOnSuccessAndPropagatesTrace(t *testing.T) {
	var seenTrace string
	c, _, _ := newTestConsumer(func(ctx context.Context, data json.RawMessage) error {
		seenTrace = trace.FromContext(ctx)
		return nil
	})
	acker := &fakeAcker{}

	c.process(delivery(acker, amqp091.Table{"trace_id": "t-1"}))

	assert.Equal(t, 1, acker.acks)
	assert.Equal(t, 0, acker.nacks)
	assert.Equal(t, "t-1", seenTrace)
}

func TestConsumerProcess_RetryableErrorRequeuesThenDeadLetters(t *testing.T) {
	c, retries, dl := newTestConsumer(func(context.Context, json.RawMessage) error {
		return fmt.Errorf("insert notification: %w", context.DeadlineExceeded)
	})
	acker := &fakeAcker{}

	c.process(delivery(acker, nil))
	c.process(delivery(acker, nil))
	assert.Equal(t, 2, acker.requeues)
	assert.Empty(t, dl.reasons)

	c.process(delivery(acker, nil))
	assert.Equal(t, 1, acker.acks)
	assert.Len(t, dl.reasons, 1)
	assert.Empty(t, retries.counts)
}

func TestConsumerProcess_PermanentErrorDeadLettersImmediately(t *testing.T) {
	c, _, dl := newTestConsumer(func(context.Context, json.RawMessage) error {
		return errors.New("boom")
	})
	acker := &fakeAcker{}

	c.process(delivery(acker, nil))

	assert.Equal(t, 0, acker.requeues)
	assert.Equal(t, 1, acker.acks)
	assert.Equal(t, []string{"boom"}, dl.reasons)
}

func TestConsumerProcess_PanicIsRecovered(t *testing.T) {
	c, _, dl := newTestConsumer(func(context.Context, json.RawMessage) error {
		panic("nil map")
	})
	acker := &fakeAcker{}

	assert.NotPanics(t, func() { c.process(delivery(acker, nil)) })
	assert.Len(t, dl.reasons, 1)
	assert.Equal(t, 1, acker.acks)
}

func TestConsumerProcess_WithoutRetryPolicyRequeues(t *testing.T) {
	c := &Consumer{queue: amqp091.Queue{Name: "q"}, logger: zap.NewNop()}
	c.SetHandler(func(context.Context, json.RawMessage) error { return errors.New("boom") })
	acker := &fakeAcker{}

	c.process(delivery(acker, nil))

	assert.Equal(t, 1, acker.requeues)
}

func TestStartConsumingRequiresHandler(t *testing.T) {
	c := &Consumer{logger: zap.NewNop()}
	assert.Error(t, c.StartConsuming())
}

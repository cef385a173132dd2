package outbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mochimo/pkg/logger"
	"mochimo/pkg/metrics"
)

// ReplayService 供管理员把事件重新送回 exchange（HTTP 与 mochimoctl 共用）
type ReplayService struct {
	store     Store
	publisher Publisher
	logger    *zap.Logger
}

func NewReplayService(store Store, publisher Publisher, logger *zap.Logger) *ReplayService {
	return &ReplayService{store: store, publisher: publisher, logger: logger}
}

// ReplayEvent 先把事件重置为 pending 再发布；发布失败时事件留在 pending，由 Dispatcher 接手
func (s *ReplayService) ReplayEvent(ctx context.Context, eventID int64) error {
	ev, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return err
	}
	if err := s.store.ResetForReplay(ctx, eventID); err != nil {
		return fmt.Errorf("reset event %d: %w", eventID, err)
	}

	ctx = contextWithPayloadTrace(ctx, ev.Payload)
	log := logger.WithTrace(ctx, s.logger).With(
		zap.Int64("event_id", ev.ID),
		zap.String("routing_key", ev.RoutingKey),
		zap.String("previous_status", ev.Status),
	)

	if err := s.publisher.PublishEvent(ctx, ev.RoutingKey, ev.Payload); err != nil {
		metrics.IncrementOutbox("replay_error")
		log.Warn("Replay publish failed, left for dispatcher", zap.Error(err))
		return fmt.Errorf("publish event %d: %w", eventID, err)
	}
	if err := s.store.MarkAsSent(ctx, eventID); err != nil {
		return fmt.Errorf("mark event %d sent: %w", eventID, err)
	}

	metrics.IncrementOutbox("replayed")
	log.Info("Outbox event replayed")
	return nil
}

// ReplayFailedEvents 依次重放最多 limit 个 failed 事件，单个失败不影响其余，返回成功数
func (s *ReplayService) ReplayFailedEvents(ctx context.Context, limit int) (int, error) {
	failed, err := s.store.ListByStatus(ctx, StatusFailed, limit)
	if err != nil {
		return 0, fmt.Errorf("list failed events: %w", err)
	}

	replayed := 0
	for _, ev := range failed {
		if ctx.Err() != nil {
			return replayed, ctx.Err()
		}
		if err := s.ReplayEvent(ctx, ev.ID); err != nil {
			continue
		}
		replayed++
	}
	return replayed, nil
}

package mqhandler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	mqcontracts "mochimo/contracts/mq"
	"mochimo/pkg/trace"
)

const notificationHandlerName = "notification"

var errMissingEventID = errors.New("project event has no event_id")

// Recorder 由 service.NotificationService 实现
type Recorder interface {
	Record(ctx context.Context, ev mqcontracts.ProjectEvent) (int, error)
}

// Deduper 由 util.Deduper 实现
type Deduper interface {
	AcquireOnce(ctx context.Context, handler string, id string) bool
	Release(ctx context.Context, handler string, id string)
}

type NotificationHandler struct {
	recorder Recorder
	dedup    Deduper
	logger   *zap.Logger
}

func NewNotificationHandler(recorder Recorder, dedup Deduper, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		recorder: recorder,
		dedup:    dedup,
		logger:   logger,
	}
}

// HandleProjectEvent 把生命周期事件写成站内通知
// Redis 去重只是快速路径，notifications 表上的 (user_id, event_id) 唯一约束保证幂等
func (h *NotificationHandler) HandleProjectEvent(ctx context.Context, raw json.RawMessage) error {
	var ev mqcontracts.ProjectEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		h.logger.Error("Failed to unmarshal project event", zap.Error(err))
		return err
	}
	if ev.EventID == "" {
		return errMissingEventID
	}
	if ev.TraceID != "" && trace.FromContext(ctx) == "" {
		ctx = trace.WithContext(ctx, ev.TraceID)
	}

	log := h.logger.With(
		zap.String("event_id", ev.EventID),
		zap.String("type", ev.Type),
		zap.Int64("project_id", ev.ProjectID),
	)

	if len(ev.Recipients) == 0 {
		log.Debug("Event has no recipients, skipping")
		return nil
	}

	if h.dedup != nil && !h.dedup.AcquireOnce(ctx, notificationHandlerName, ev.EventID) {
		return nil
	}

	created, err := h.recorder.Record(ctx, ev)
	if err != nil {
		// 释放去重键，让重投的消息可以再处理
		if h.dedup != nil {
			h.dedup.Release(ctx, notificationHandlerName, ev.EventID)
		}
		log.Error("Failed to record notifications", zap.Error(err))
		return err
	}

	log.Info("Notifications created",
		zap.Int("created", created),
		zap.Int("recipients", len(ev.Recipients)),
	)
	return nil
}

package service

import (
	"context"

	"go.uber.org/zap"

	mqcontracts "mochimo/contracts/mq"
	"mochimo/internal/model"
	"mochimo/internal/repository"
)

const defaultNotificationLimit = 50

type NotificationService struct {
	repo   repository.NotificationRepo
	logger *zap.Logger
}

func NewNotificationService(repo repository.NotificationRepo, logger *zap.Logger) *NotificationService {
	return &NotificationService{repo: repo, logger: logger}
}

func (s *NotificationService) List(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*model.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultNotificationLimit
	}
	return s.repo.ListByUser(ctx, userID, unreadOnly, limit)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id int64) error {
	return s.repo.MarkRead(ctx, userID, id)
}

// Record 为事件的每个接收者写一条站内通知；按 (user_id, event_id) 幂等，返回新写入的条数
func (s *NotificationService) Record(ctx context.Context, ev mqcontracts.ProjectEvent) (int, error) {
	created := 0
	for _, userID := range ev.Recipients {
		n := &model.Notification{
			UserID:    userID,
			ProjectID: ev.ProjectID,
			EventID:   ev.EventID,
			Kind:      ev.Type,
			Message:   ev.Message,
		}
		ok, err := s.repo.Create(ctx, n)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	s.logger.Debug("Notifications recorded",
		zap.String("event_id", ev.EventID),
		zap.String("type", ev.Type),
		zap.Int("created", created),
	)
	return created, nil
}

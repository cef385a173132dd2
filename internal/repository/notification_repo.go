package repository

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"mochimo/internal/model"
)

type NotificationRepository struct {
	db     DBTX
	logger *zap.Logger
}

func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) (bool, error) {
	err := r.db.QueryRow(ctx, `
        INSERT INTO notifications (user_id, project_id, event_id, kind, message)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id, event_id) DO NOTHING
        RETURNING id, created_at
    `, n.UserID, n.ProjectID, n.EventID, n.Kind, n.Message).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		err = mapErr(err)
		if errors.Is(err, ErrNotFound) {
			r.logger.Debug("Notification already recorded",
				zap.Int64("user_id", n.UserID),
				zap.String("event_id", n.EventID),
			)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*model.Notification, error) {
	rows, err := r.db.Query(ctx, `
        SELECT id, user_id, project_id, event_id, kind, message, read, created_at
        FROM notifications
        WHERE user_id = $1 AND (NOT $2 OR read = FALSE)
        ORDER BY id DESC
        LIMIT $3
    `, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.ProjectID, &n.EventID, &n.Kind, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

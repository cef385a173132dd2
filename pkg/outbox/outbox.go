package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

var ErrEventNotFound = errors.New("outbox event not found")

// Event 表示一个待发布的领域事件
type Event struct {
	ID            int64
	AggregateType string
	AggregateID   *int64
	RoutingKey    string
	Payload       json.RawMessage
	Status        string
	RetryCount    int
	LastError     string
	NextRetryAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Querier 是 pgx.Tx 与 pgxpool.Pool 的公共子集
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DBTX 提供 Repository 需要的全部查询能力
type DBTX interface {
	Querier
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store 是 Dispatcher 和 ReplayService 依赖的存储接口
type Store interface {
	GetPendingEvents(ctx context.Context, limit int) ([]*Event, error)
	GetEventByID(ctx context.Context, eventID int64) (*Event, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]*Event, error)
	MarkAsSent(ctx context.Context, eventID int64) error
	MarkAsFailed(ctx context.Context, eventID int64, maxRetries int, cause string) error
	ResetForReplay(ctx context.Context, eventID int64) error
}

// Repository 基于 PostgreSQL 的 outbox_events 表
type Repository struct {
	db  DBTX
	now func() time.Time
}

func NewRepository(db DBTX) *Repository {
	return &Repository{db: db, now: time.Now}
}

const eventColumns = `id, aggregate_type, aggregate_id, routing_key, payload, status,
	retry_count, last_error, next_retry_at, created_at, updated_at`

// InsertEvent 在调用方的事务中写入事件，保证与业务数据同时提交
func InsertEvent(ctx context.Context, q Querier, event *Event) error {
	if event.Status == "" {
		event.Status = StatusPending
	}
	err := q.QueryRow(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, routing_key, payload, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`,
		event.AggregateType,
		event.AggregateID,
		event.RoutingKey,
		[]byte(event.Payload),
		event.Status,
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// GetPendingEvents 获取到期的待发送事件（用于 Dispatcher）
func (r *Repository) GetPendingEvents(ctx context.Context, limit int) ([]*Event, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+eventColumns+`
		FROM outbox_events
		WHERE status = 'pending'
		AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	return collectEvents(rows)
}

// ListByStatus 按状态列出事件，最新的在前（用于管理命令）
func (r *Repository) ListByStatus(ctx context.Context, status string, limit int) ([]*Event, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+eventColumns+`
		FROM outbox_events
		WHERE status = $1
		ORDER BY id DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s events: %w", status, err)
	}
	return collectEvents(rows)
}

func (r *Repository) GetEventByID(ctx context.Context, eventID int64) (*Event, error) {
	row := r.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM outbox_events WHERE id = $1`, eventID)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrEventNotFound, eventID)
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

func (r *Repository) MarkAsSent(ctx context.Context, eventID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'sent', last_error = '', next_retry_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event as sent: %w", err)
	}
	return nil
}

// MarkAsFailed 增加重试次数；超过 maxRetries 后置为 failed，否则按线性退避重新排队
func (r *Repository) MarkAsFailed(ctx context.Context, eventID int64, maxRetries int, cause string) error {
	var retryCount int
	if err := r.db.QueryRow(ctx, `SELECT retry_count FROM outbox_events WHERE id = $1`, eventID).Scan(&retryCount); err != nil {
		return fmt.Errorf("failed to get retry count: %w", err)
	}

	retryCount++
	status, nextRetryAt := NextAttempt(retryCount, maxRetries, r.now())

	_, err := r.db.Exec(ctx, `
		UPDATE outbox_events
		SET status = $1, retry_count = $2, next_retry_at = $3, last_error = $4, updated_at = NOW()
		WHERE id = $5
	`, status, retryCount, nextRetryAt, cause, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event as failed: %w", err)
	}
	return nil
}

// ResetForReplay 将事件恢复为 pending 并清零重试次数
func (r *Repository) ResetForReplay(ctx context.Context, eventID int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE outbox_events
		SET status = 'pending', retry_count = 0, next_retry_at = NULL, last_error = '', updated_at = NOW()
		WHERE id = $1
	`, eventID)
	if err != nil {
		return fmt.Errorf("failed to replay event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrEventNotFound, eventID)
	}
	return nil
}

// NextAttempt 计算失败后的状态：5s, 10s, 15s... 直到 maxRetries
func NextAttempt(retryCount, maxRetries int, now time.Time) (string, *time.Time) {
	if retryCount >= maxRetries {
		return StatusFailed, nil
	}
	next := now.Add(time.Duration(retryCount) * 5 * time.Second)
	return StatusPending, &next
}

func collectEvents(rows pgx.Rows) ([]*Event, error) {
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(row pgx.Row) (*Event, error) {
	var (
		e       Event
		payload []byte
	)
	err := row.Scan(
		&e.ID,
		&e.AggregateType,
		&e.AggregateID,
		&e.RoutingKey,
		&payload,
		&e.Status,
		&e.RetryCount,
		&e.LastError,
		&e.NextRetryAt,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Payload = json.RawMessage(payload)
	return &e, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"mochimo/internal/model"
	"mochimo/pkg/otel"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// DBTX 是 pgxpool.Pool 与 pgx.Tx 的公共子集
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type UserRepo interface {
	Create(ctx context.Context, u *model.User) error
	FindByID(ctx context.Context, id int64) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

type ProjectRepo interface {
	Create(ctx context.Context, p *model.Project) error
	FindByID(ctx context.Context, id int64) (*model.Project, error)
	// FindByIDForUpdate 锁定项目行直到事务结束
	FindByIDForUpdate(ctx context.Context, id int64) (*model.Project, error)
	FindByInviteCodeForUpdate(ctx context.Context, code string) (*model.Project, error)
	ListByMember(ctx context.Context, userID int64) ([]*model.Project, error)
	Update(ctx context.Context, p *model.Project) error
	Delete(ctx context.Context, id int64) error
}

type RequirementRepo interface {
	Create(ctx context.Context, r *model.Requirement) error
	FindByID(ctx context.Context, id int64) (*model.Requirement, error)
	ListByProject(ctx context.Context, projectID int64) ([]*model.Requirement, error)
	Update(ctx context.Context, r *model.Requirement) error
	Delete(ctx context.Context, id int64) error
}

type ContractRepo interface {
	Create(ctx context.Context, c *model.Contract) error
	// FindByProject 项目没有合同时返回 ErrNotFound
	FindByProject(ctx context.Context, projectID int64) (*model.Contract, error)
	Update(ctx context.Context, c *model.Contract) error
}

type TaskRepo interface {
	CreateBatch(ctx context.Context, tasks []*model.Task) error
	FindByID(ctx context.Context, id int64) (*model.Task, error)
	ListByProject(ctx context.Context, projectID int64) ([]*model.Task, error)
	Update(ctx context.Context, t *model.Task) error
}

type PaymentProofRepo interface {
	Create(ctx context.Context, p *model.PaymentProof) error
	FindByID(ctx context.Context, id int64) (*model.PaymentProof, error)
	// FindPending 没有待审核凭证时返回 nil, nil
	FindPending(ctx context.Context, projectID int64) (*model.PaymentProof, error)
	ListByProject(ctx context.Context, projectID int64) ([]*model.PaymentProof, error)
	Update(ctx context.Context, p *model.PaymentProof) error
}

type NotificationRepo interface {
	// Create 按 (user_id, event_id) 去重，重复时返回 false
	Create(ctx context.Context, n *model.Notification) (bool, error)
	ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*model.Notification, error)
	MarkRead(ctx context.Context, userID, id int64) error
}

// EventWriter 把领域事件写入 outbox（与业务数据同一事务）
type EventWriter interface {
	Append(ctx context.Context, aggregateType string, aggregateID int64, routingKey string, payload any) error
}

type Repos interface {
	Users() UserRepo
	Projects() ProjectRepo
	Requirements() RequirementRepo
	Contracts() ContractRepo
	Tasks() TaskRepo
	Payments() PaymentProofRepo
	Notifications() NotificationRepo
	Events() EventWriter
}

// Store 在 Repos 之上提供事务
type Store interface {
	Repos
	WithTx(ctx context.Context, name string, fn func(Repos) error) error
	Ping(ctx context.Context) error
}

type pgRepos struct {
	db     DBTX
	logger *zap.Logger
}

func (r pgRepos) Users() UserRepo                 { return &UserRepository{db: r.db, logger: r.logger} }
func (r pgRepos) Projects() ProjectRepo           { return &ProjectRepository{db: r.db, logger: r.logger} }
func (r pgRepos) Requirements() RequirementRepo   { return &RequirementRepository{db: r.db, logger: r.logger} }
func (r pgRepos) Contracts() ContractRepo         { return &ContractRepository{db: r.db, logger: r.logger} }
func (r pgRepos) Tasks() TaskRepo                 { return &TaskRepository{db: r.db, logger: r.logger} }
func (r pgRepos) Payments() PaymentProofRepo      { return &PaymentProofRepository{db: r.db, logger: r.logger} }
func (r pgRepos) Notifications() NotificationRepo { return &NotificationRepository{db: r.db, logger: r.logger} }
func (r pgRepos) Events() EventWriter             { return &OutboxWriter{db: r.db} }

// PgStore 基于 pgxpool 的 Store
type PgStore struct {
	pgRepos
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool, logger *zap.Logger) *PgStore {
	return &PgStore{pgRepos: pgRepos{db: pool, logger: logger}, pool: pool}
}

func (s *PgStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithTx 在事务中执行 fn；fn 返回错误或 panic 时回滚
func (s *PgStore) WithTx(ctx context.Context, name string, fn func(Repos) error) (err error) {
	ctx, span := otel.TxSpan(ctx, name)
	defer func() { otel.EndSpan(span, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s: %w", name, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(pgRepos{db: tx, logger: s.logger}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", name, mapErr(err))
	}
	return nil
}

// mapErr 把驱动错误转换为 ErrNotFound / ErrConflict
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation, pgerrcode.ExclusionViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		case pgerrcode.ForeignKeyViolation:
			return fmt.Errorf("%w: referenced by %s", ErrConflict, pgErr.ConstraintName)
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
			return fmt.Errorf("%w: concurrent update, retry", ErrConflict)
		}
	}
	return err
}

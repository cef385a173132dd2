package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mochimo/internal/model"
)

type TaskRepository struct {
	db     DBTX
	logger *zap.Logger
}

const taskColumns = `id, project_id, requirement_id, title, description, status, proof_url,
	created_at, updated_at, completed_at`

// CreateBatch 逐条插入；requirement_id 唯一约束保证不会重复生成
func (r *TaskRepository) CreateBatch(ctx context.Context, tasks []*model.Task) error {
	for _, t := range tasks {
		err := r.db.QueryRow(ctx, `
            INSERT INTO tasks (project_id, requirement_id, title, description, status)
            VALUES ($1, $2, $3, $4, $5)
            RETURNING id, created_at, updated_at
        `, t.ProjectID, t.RequirementID, t.Title, t.Description, string(t.Status)).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert task for requirement %d: %w", t.RequirementID, mapErr(err))
		}
	}
	if len(tasks) > 0 {
		r.logger.Info("Tasks generated",
			zap.Int64("project_id", tasks[0].ProjectID),
			zap.Int("count", len(tasks)),
		)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, id int64) (*model.Task, error) {
	return scanTask(r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
}

func (r *TaskRepository) ListByProject(ctx context.Context, projectID int64) ([]*model.Task, error) {
	rows, err := r.db.Query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id = $1 ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *TaskRepository) Update(ctx context.Context, t *model.Task) error {
	err := r.db.QueryRow(ctx, `
        UPDATE tasks
        SET status = $2, proof_url = $3, completed_at = $4, updated_at = NOW()
        WHERE id = $1
        RETURNING updated_at
    `, t.ID, string(t.Status), t.ProofURL, t.CompletedAt).Scan(&t.UpdatedAt)
	return mapErr(err)
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var (
		t      model.Task
		status string
	)
	err := row.Scan(&t.ID, &t.ProjectID, &t.RequirementID, &t.Title, &t.Description, &status, &t.ProofURL,
		&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	t.Status = model.TaskStatus(status)
	return &t, nil
}

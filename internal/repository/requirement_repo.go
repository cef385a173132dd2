package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mochimo/internal/model"
)

type RequirementRepository struct {
	db     DBTX
	logger *zap.Logger
}

const requirementColumns = `id, project_id, title, description, status, review_note, created_at, updated_at`

func (r *RequirementRepository) Create(ctx context.Context, req *model.Requirement) error {
	err := r.db.QueryRow(ctx, `
        INSERT INTO requirements (project_id, title, description, status)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at, updated_at
    `, req.ProjectID, req.Title, req.Description, string(req.Status)).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	r.logger.Debug("Requirement inserted", zap.Int64("id", req.ID), zap.Int64("project_id", req.ProjectID))
	return nil
}

func (r *RequirementRepository) FindByID(ctx context.Context, id int64) (*model.Requirement, error) {
	return scanRequirement(r.db.QueryRow(ctx, `SELECT `+requirementColumns+` FROM requirements WHERE id = $1`, id))
}

func (r *RequirementRepository) ListByProject(ctx context.Context, projectID int64) ([]*model.Requirement, error) {
	rows, err := r.db.Query(ctx, `SELECT `+requirementColumns+` FROM requirements WHERE project_id = $1 ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list requirements: %w", err)
	}
	defer rows.Close()

	var reqs []*model.Requirement
	for rows.Next() {
		req, err := scanRequirement(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func (r *RequirementRepository) Update(ctx context.Context, req *model.Requirement) error {
	err := r.db.QueryRow(ctx, `
        UPDATE requirements
        SET title = $2, description = $3, status = $4, review_note = $5, updated_at = NOW()
        WHERE id = $1
        RETURNING updated_at
    `, req.ID, req.Title, req.Description, string(req.Status), req.ReviewNote).Scan(&req.UpdatedAt)
	return mapErr(err)
}

func (r *RequirementRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM requirements WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRequirement(row pgx.Row) (*model.Requirement, error) {
	var (
		req    model.Requirement
		status string
	)
	if err := row.Scan(&req.ID, &req.ProjectID, &req.Title, &req.Description, &status, &req.ReviewNote, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	req.Status = model.RequirementStatus(status)
	return &req, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mochimo/internal/model"
)

type ProjectRepository struct {
	db     DBTX
	logger *zap.Logger
}

const projectColumns = `id, freelancer_id, client_id, title, description, invite_code, status,
	payment_mode, started_at, completed_at, created_at, updated_at`

func (r *ProjectRepository) Create(ctx context.Context, p *model.Project) error {
	r.logger.Debug("Inserting project",
		zap.Int64("freelancer_id", p.FreelancerID),
		zap.String("title", p.Title),
	)

	query := `
        INSERT INTO projects (freelancer_id, title, description, invite_code, status)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query,
		p.FreelancerID,
		p.Title,
		p.Description,
		p.InviteCode,
		string(p.Status),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		err = mapErr(err)
		r.logger.Error("Failed to insert project", zap.Error(err))
		return err
	}

	r.logger.Info("Project inserted successfully",
		zap.Int64("id", p.ID),
		zap.Int64("freelancer_id", p.FreelancerID),
	)
	return nil
}

func (r *ProjectRepository) FindByID(ctx context.Context, id int64) (*model.Project, error) {
	return scanProject(r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
}

func (r *ProjectRepository) FindByIDForUpdate(ctx context.Context, id int64) (*model.Project, error) {
	return scanProject(r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR UPDATE`, id))
}

func (r *ProjectRepository) FindByInviteCodeForUpdate(ctx context.Context, code string) (*model.Project, error) {
	return scanProject(r.db.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE invite_code = $1 FOR UPDATE`, code))
}

func (r *ProjectRepository) ListByMember(ctx context.Context, userID int64) ([]*model.Project, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+projectColumns+`
        FROM projects
        WHERE freelancer_id = $1 OR client_id = $1
        ORDER BY updated_at DESC, id DESC
    `, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *ProjectRepository) Update(ctx context.Context, p *model.Project) error {
	var mode *string
	if p.PaymentMode != nil {
		m := string(*p.PaymentMode)
		mode = &m
	}

	tag, err := r.db.Exec(ctx, `
        UPDATE projects
        SET client_id = $2, title = $3, description = $4, invite_code = $5, status = $6,
            payment_mode = $7, started_at = $8, completed_at = $9, updated_at = NOW()
        WHERE id = $1
    `,
		p.ID,
		p.ClientID,
		p.Title,
		p.Description,
		p.InviteCode,
		string(p.Status),
		mode,
		p.StartedAt,
		p.CompletedAt,
	)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ProjectRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	r.logger.Info("Project deleted", zap.Int64("id", id))
	return nil
}

func scanProject(row pgx.Row) (*model.Project, error) {
	var (
		p      model.Project
		status string
		mode   *string
	)
	err := row.Scan(
		&p.ID,
		&p.FreelancerID,
		&p.ClientID,
		&p.Title,
		&p.Description,
		&p.InviteCode,
		&status,
		&mode,
		&p.StartedAt,
		&p.CompletedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	p.Status = model.ProjectStatus(status)
	if mode != nil {
		m := model.PaymentMode(*mode)
		p.PaymentMode = &m
	}
	return &p, nil
}

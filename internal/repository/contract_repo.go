package repository

import (
	"context"

	"go.uber.org/zap"

	"mochimo/internal/model"
)

type ContractRepository struct {
	db     DBTX
	logger *zap.Logger
}

const contractColumns = `id, project_id, price, currency, payment_mode, deadline, terms, body, status,
	revision_note, submitted_at, approved_at, created_at, updated_at`

func (r *ContractRepository) Create(ctx context.Context, c *model.Contract) error {
	err := r.db.QueryRow(ctx, `
        INSERT INTO contracts (project_id, price, currency, payment_mode, deadline, terms, body, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at, updated_at
    `,
		c.ProjectID,
		c.Price,
		c.Currency,
		string(c.PaymentMode),
		c.Deadline,
		c.Terms,
		c.Body,
		string(c.Status),
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		err = mapErr(err)
		r.logger.Error("Failed to insert contract", zap.Int64("project_id", c.ProjectID), zap.Error(err))
		return err
	}
	r.logger.Info("Contract drafted", zap.Int64("id", c.ID), zap.Int64("project_id", c.ProjectID))
	return nil
}

func (r *ContractRepository) FindByProject(ctx context.Context, projectID int64) (*model.Contract, error) {
	var (
		c            model.Contract
		mode, status string
	)
	err := r.db.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE project_id = $1`, projectID).Scan(
		&c.ID,
		&c.ProjectID,
		&c.Price,
		&c.Currency,
		&mode,
		&c.Deadline,
		&c.Terms,
		&c.Body,
		&status,
		&c.RevisionNote,
		&c.SubmittedAt,
		&c.ApprovedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	c.PaymentMode = model.PaymentMode(mode)
	c.Status = model.ContractStatus(status)
	return &c, nil
}

func (r *ContractRepository) Update(ctx context.Context, c *model.Contract) error {
	err := r.db.QueryRow(ctx, `
        UPDATE contracts
        SET price = $2, currency = $3, payment_mode = $4, deadline = $5, terms = $6, body = $7,
            status = $8, revision_note = $9, submitted_at = $10, approved_at = $11, updated_at = NOW()
        WHERE id = $1
        RETURNING updated_at
    `,
		c.ID,
		c.Price,
		c.Currency,
		string(c.PaymentMode),
		c.Deadline,
		c.Terms,
		c.Body,
		string(c.Status),
		c.RevisionNote,
		c.SubmittedAt,
		c.ApprovedAt,
	).Scan(&c.UpdatedAt)
	return mapErr(err)
}

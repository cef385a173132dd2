package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"mochimo/internal/model"
)

type PaymentProofRepository struct {
	db     DBTX
	logger *zap.Logger
}

const proofColumns = `id, project_id, client_id, stage, amount, image_url, status, review_note, created_at, reviewed_at`

// Create 依赖 uq_payment_proofs_pending，并发上传时第二个返回 ErrConflict
func (r *PaymentProofRepository) Create(ctx context.Context, p *model.PaymentProof) error {
	err := r.db.QueryRow(ctx, `
        INSERT INTO payment_proofs (project_id, client_id, stage, amount, image_url, status)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at
    `, p.ProjectID, p.ClientID, string(p.Stage), p.Amount, p.ImageURL, string(p.Status)).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return mapErr(err)
	}
	r.logger.Info("Payment proof uploaded",
		zap.Int64("id", p.ID),
		zap.Int64("project_id", p.ProjectID),
		zap.String("stage", string(p.Stage)),
	)
	return nil
}

func (r *PaymentProofRepository) FindByID(ctx context.Context, id int64) (*model.PaymentProof, error) {
	return scanProof(r.db.QueryRow(ctx, `SELECT `+proofColumns+` FROM payment_proofs WHERE id = $1`, id))
}

func (r *PaymentProofRepository) FindPending(ctx context.Context, projectID int64) (*model.PaymentProof, error) {
	p, err := scanProof(r.db.QueryRow(ctx,
		`SELECT `+proofColumns+` FROM payment_proofs WHERE project_id = $1 AND status = 'PENDING'`, projectID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return p, err
}

func (r *PaymentProofRepository) ListByProject(ctx context.Context, projectID int64) ([]*model.PaymentProof, error) {
	rows, err := r.db.Query(ctx, `SELECT `+proofColumns+` FROM payment_proofs WHERE project_id = $1 ORDER BY id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list payment proofs: %w", err)
	}
	defer rows.Close()

	var proofs []*model.PaymentProof
	for rows.Next() {
		p, err := scanProof(rows)
		if err != nil {
			return nil, err
		}
		proofs = append(proofs, p)
	}
	return proofs, rows.Err()
}

func (r *PaymentProofRepository) Update(ctx context.Context, p *model.PaymentProof) error {
	tag, err := r.db.Exec(ctx, `
        UPDATE payment_proofs
        SET status = $2, review_note = $3, reviewed_at = $4
        WHERE id = $1
    `, p.ID, string(p.Status), p.ReviewNote, p.ReviewedAt)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProof(row pgx.Row) (*model.PaymentProof, error) {
	var (
		p             model.PaymentProof
		stage, status string
	)
	err := row.Scan(&p.ID, &p.ProjectID, &p.ClientID, &stage, &p.Amount, &p.ImageURL, &status, &p.ReviewNote,
		&p.CreatedAt, &p.ReviewedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	p.Stage = model.PaymentStage(stage)
	p.Status = model.PaymentStatus(status)
	return &p, nil
}

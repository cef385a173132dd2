package repository

import (
	"context"

	"go.uber.org/zap"

	"mochimo/internal/model"
)

type UserRepository struct {
	db     DBTX
	logger *zap.Logger
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	query := `
        INSERT INTO users (email, name, password_hash, role)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at
    `
	err := r.db.QueryRow(ctx, query, u.Email, u.Name, u.PasswordHash, string(u.Role)).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		err = mapErr(err)
		r.logger.Warn("Failed to insert user", zap.String("email", u.Email), zap.Error(err))
		return err
	}
	r.logger.Info("User created", zap.Int64("user_id", u.ID), zap.String("role", string(u.Role)))
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, `WHERE email = $1`, email)
}

func (r *UserRepository) findOne(ctx context.Context, where string, arg any) (*model.User, error) {
	query := `SELECT id, email, name, password_hash, role, created_at FROM users ` + where
	var (
		u    model.User
		role string
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &role, &u.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	u.Role = model.Role(role)
	return &u, nil
}

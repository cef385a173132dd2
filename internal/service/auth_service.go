package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"mochimo/internal/model"
	"mochimo/internal/repository"
	"mochimo/pkg/rbac"
	"mochimo/pkg/util"
)

// TokenRevoker 记录已注销的 token id（Redis 实现见 util.TokenBlacklist）
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type AuthService struct {
	users     repository.UserRepo
	revoker   TokenRevoker
	jwtSecret string
	tokenTTL  time.Duration
	logger    *zap.Logger
}

func NewAuthService(users repository.UserRepo, revoker TokenRevoker, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:     users,
		revoker:   revoker,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		logger:    logger,
	}
}

// Session 是登录成功后返回给 handler 的内容
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *model.User
}

// Register creates a FREELANCER or CLIENT account.
func (s *AuthService) Register(ctx context.Context, email, name, password string, role model.Role) (*model.User, error) {
	if !rbac.SelfServiceRole(string(role)) {
		return nil, validationErr("role must be FREELANCER or CLIENT")
	}
	return s.CreateUser(ctx, email, name, password, role)
}

// CreateUser 不限制角色，供 mochimoctl 创建管理员使用
func (s *AuthService) CreateUser(ctx context.Context, email, name, password string, role model.Role) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, validationErr("invalid email address")
	}
	name, err := cleanText(name, "name", 100, true)
	if err != nil {
		return nil, err
	}
	if len(password) < 8 {
		return nil, validationErr("password must be at least 8 characters")
	}
	if !rbac.ValidRole(string(role)) {
		return nil, validationErr("unknown role %q", role)
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		if errors.Is(err, util.ErrPasswordTooLong) {
			return nil, validationErr("%v", err)
		}
		return nil, err
	}

	u := &model.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return nil, err
	}

	s.logger.Info("User registered",
		zap.Int64("user_id", u.ID),
		zap.String("role", string(u.Role)),
	)
	return u, nil
}

// Login checks user credentials and returns a signed session token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !util.CheckPassword(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, claims, err := util.GenerateJWT(u.ID, string(u.Role), s.jwtSecret, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: u}, nil
}

// Authenticate 校验 token 签名、过期时间和注销状态
func (s *AuthService) Authenticate(ctx context.Context, token string) (*util.Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	claims, err := util.ParseJWT(token, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}
	if s.revoker != nil && claims.ID != "" {
		revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
		if err != nil {
			// Redis 不可用时拒绝请求，避免已注销的 token 重新生效
			return nil, fmt.Errorf("check token revocation: %w", err)
		}
		if revoked {
			return nil, fmt.Errorf("%w: token revoked", ErrUnauthorized)
		}
	}
	return claims, nil
}

// Logout 注销 token，直到它本来的过期时间
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := util.ParseJWT(token, s.jwtSecret)
	if err != nil {
		// 无效或已过期的 token 无需注销
		return nil
	}
	if s.revoker == nil || claims.ID == "" {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if err := s.revoker.Revoke(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.logger.Info("Session revoked", zap.Int64("user_id", claims.UserID))
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: user no longer exists", ErrUnauthorized)
		}
		return nil, err
	}
	return u, nil
}

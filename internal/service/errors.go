// Package service 实现项目生命周期的用例：加载快照、调用 workflow、持久化并写入 outbox 事件。
package service

import (
	"errors"
	"fmt"

	"mochimo/internal/repository"
	"mochimo/internal/workflow"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrUnauthorized)

	// 以下错误与下层同一实例，便于 handler 只用 errors.Is 判断
	ErrNotFound          = repository.ErrNotFound
	ErrConflict          = repository.ErrConflict
	ErrForbidden         = workflow.ErrForbidden
	ErrGuard             = workflow.ErrGuard
	ErrInvalidTransition = workflow.ErrInvalidTransition
)

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

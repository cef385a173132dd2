// Package handler 把 HTTP 请求转换为 service 调用，并把错误映射为状态码。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mochimo/internal/model"
	"mochimo/internal/service"
	"mochimo/internal/workflow"
	"mochimo/pkg/logger"
	"mochimo/pkg/objectstore"
	"mochimo/pkg/outbox"
	"mochimo/pkg/rbac"
)

// 认证中间件写入 gin.Context 的键
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
	CtxToken  = "token"
)

// actor 读取认证中间件写入的用户
func actor(c *gin.Context) workflow.Actor {
	return workflow.Actor{
		UserID: c.GetInt64(CtxUserID),
		Role:   model.Role(c.GetString(CtxRole)),
	}
}

// pathID 解析路径参数；失败时已写入 400
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}

// StatusOf 把 service 错误映射为 HTTP 状态码
func StatusOf(err error) int {
	var denied *rbac.PermissionDeniedError
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, objectstore.ErrUnsupportedType),
		errors.Is(err, objectstore.ErrEmpty):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden), errors.As(err, &denied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound), errors.Is(err, outbox.ErrEventNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, service.ErrGuard),
		errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, objectstore.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, objectstore.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError 写入 {"error": "..."}；500 不暴露内部错误
func writeError(c *gin.Context, log *zap.Logger, err error) {
	status := StatusOf(err)
	log = logger.WithTrace(c.Request.Context(), log)
	if status == http.StatusInternalServerError {
		log.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	if status == http.StatusServiceUnavailable {
		log.Warn("Dependency unavailable", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

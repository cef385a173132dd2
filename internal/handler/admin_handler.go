package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OutboxReplayer 由 outbox.ReplayService 实现
type OutboxReplayer interface {
	ReplayEvent(ctx context.Context, eventID int64) error
	ReplayFailedEvents(ctx context.Context, limit int) (int, error)
}

type AdminHandler struct {
	replayer OutboxReplayer
	logger   *zap.Logger
}

func NewAdminHandler(replayer OutboxReplayer, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{replayer: replayer, logger: logger}
}

// ReplayOutbox 重放 outbox 事件
// POST /api/admin/outbox/replay?id=xxx 重放单个事件；不带 id 时重放最多 limit 个失败事件
func (h *AdminHandler) ReplayOutbox(c *gin.Context) {
	if idStr := c.Query("id"); idStr != "" {
		eventID, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || eventID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id parameter"})
			return
		}
		if err := h.replayer.ReplayEvent(c.Request.Context(), eventID); err != nil {
			h.logger.Error("Failed to replay event",
				zap.Int64("event_id", eventID),
				zap.Error(err),
			)
			writeError(c, h.logger, err)
			return
		}
		h.logger.Info("Outbox event replayed",
			zap.Int64("event_id", eventID),
			zap.Int64("admin_id", actor(c).UserID),
		)
		c.JSON(http.StatusOK, gin.H{"status": "replayed", "event_id": eventID})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 1000 {
		limit = 100
	}
	replayed, err := h.replayer.ReplayFailedEvents(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to replay failed events", zap.Error(err))
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "completed",
		"replayed": replayed,
		"limit":    limit,
	})
}

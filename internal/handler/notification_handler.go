package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mochimo/internal/model"
	"mochimo/internal/service"
)

type NotificationHandler struct {
	notifications *service.NotificationService
	logger        *zap.Logger
}

func NewNotificationHandler(notifications *service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// List GET /api/notifications?unread=true&limit=50
func (h *NotificationHandler) List(c *gin.Context) {
	unread, _ := strconv.ParseBool(c.DefaultQuery("unread", "false"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	list, err := h.notifications.List(c.Request.Context(), actor(c).UserID, unread, limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if list == nil {
		list = []*model.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// MarkRead POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), actor(c).UserID, id); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

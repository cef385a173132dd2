package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mochimo/internal/model"
	"mochimo/internal/service"
)

type TaskHandler struct {
	tasks          *service.TaskService
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewTaskHandler(tasks *service.TaskService, maxUploadBytes int64, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, maxUploadBytes: maxUploadBytes, logger: logger}
}

// List GET /api/projects/:id/tasks
func (h *TaskHandler) List(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	tasks, err := h.tasks.List(c.Request.Context(), actor(c), projectID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if tasks == nil {
		tasks = []*model.Task{}
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

type updateTaskRequest struct {
	Status string `json:"status" binding:"required"`
}

// Update PATCH /api/tasks/:id
func (h *TaskHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateTaskRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.tasks.UpdateStatus(c.Request.Context(), actor(c), id, model.TaskStatus(req.Status))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": t})
}

// AttachProof POST /api/tasks/:id/proof (multipart, field "file")
func (h *TaskHandler) AttachProof(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	img, closeFn, err := readUpload(c, h.maxUploadBytes)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	defer closeFn()

	t, err := h.tasks.AttachProof(c.Request.Context(), actor(c), id, img)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": t})
}

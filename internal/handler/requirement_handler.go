package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mochimo/internal/model"
	"mochimo/internal/service"
)

type RequirementHandler struct {
	reqs   *service.RequirementService
	logger *zap.Logger
}

func NewRequirementHandler(reqs *service.RequirementService, logger *zap.Logger) *RequirementHandler {
	return &RequirementHandler{reqs: reqs, logger: logger}
}

type requirementRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

type reviewRequest struct {
	Note string `json:"note"`
}

// List GET /api/projects/:id/requirements
func (h *RequirementHandler) List(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	reqs, err := h.reqs.List(c.Request.Context(), actor(c), projectID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if reqs == nil {
		reqs = []*model.Requirement{}
	}
	c.JSON(http.StatusOK, gin.H{"requirements": reqs})
}

// Add POST /api/projects/:id/requirements
func (h *RequirementHandler) Add(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req requirementRequest
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.reqs.Add(c.Request.Context(), actor(c), projectID, req.Title, req.Description)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"requirement": r})
}

// Update PATCH /api/requirements/:id
func (h *RequirementHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req requirementRequest
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.reqs.Update(c.Request.Context(), actor(c), id, req.Title, req.Description)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requirement": r})
}

// Delete DELETE /api/requirements/:id
func (h *RequirementHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.reqs.Delete(c.Request.Context(), actor(c), id); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Approve POST /api/requirements/:id/approve
func (h *RequirementHandler) Approve(c *gin.Context) {
	h.review(c, true)
}

// Reject POST /api/requirements/:id/reject
func (h *RequirementHandler) Reject(c *gin.Context) {
	h.review(c, false)
}

func (h *RequirementHandler) review(c *gin.Context, approve bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reviewRequest
	// body 可选
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	var (
		r   *model.Requirement
		err error
	)
	if approve {
		r, err = h.reqs.Approve(c.Request.Context(), actor(c), id, req.Note)
	} else {
		r, err = h.reqs.Reject(c.Request.Context(), actor(c), id, req.Note)
	}
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requirement": r})
}

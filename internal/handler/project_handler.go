package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mochimo/internal/model"
	"mochimo/internal/service"
	"mochimo/internal/workflow"
)

type ProjectHandler struct {
	projects *service.ProjectService
	logger   *zap.Logger
}

func NewProjectHandler(projects *service.ProjectService, logger *zap.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, logger: logger}
}

type createProjectRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

// Create POST /api/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req createProjectRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.projects.Create(c.Request.Context(), actor(c), req.Title, req.Description)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"project": p})
}

// List GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	projects, err := h.projects.List(c.Request.Context(), actor(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if projects == nil {
		projects = []*model.Project{}
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// Get GET /api/projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	h.respond(c, h.projects.Get)
}

type updateProjectRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// Update PATCH /api/projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req updateProjectRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.projects.Update(c.Request.Context(), actor(c), id, service.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": p})
}

// Delete DELETE /api/projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.projects.Delete(c.Request.Context(), actor(c), id); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Overview GET /api/projects/:id/overview
func (h *ProjectHandler) Overview(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ov, err := h.projects.Overview(c.Request.Context(), actor(c), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ov)
}

type joinRequest struct {
	InviteCode string `json:"invite_code" binding:"required"`
}

// Join POST /api/projects/join
func (h *ProjectHandler) Join(c *gin.Context) {
	var req joinRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.projects.Join(c.Request.Context(), actor(c), req.InviteCode)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": p})
}

// RegenerateInvite POST /api/projects/:id/invite
func (h *ProjectHandler) RegenerateInvite(c *gin.Context) {
	h.respond(c, h.projects.RegenerateInvite)
}

// Submit POST /api/projects/:id/submit
func (h *ProjectHandler) Submit(c *gin.Context) {
	h.respond(c, h.projects.SubmitScope)
}

// Approve POST /api/projects/:id/approve
func (h *ProjectHandler) Approve(c *gin.Context) {
	h.respond(c, h.projects.ApproveScope)
}

// Reject POST /api/projects/:id/reject
func (h *ProjectHandler) Reject(c *gin.Context) {
	h.respond(c, h.projects.RejectScope)
}

// Complete POST /api/projects/:id/complete
func (h *ProjectHandler) Complete(c *gin.Context) {
	h.respond(c, h.projects.Complete)
}

func (h *ProjectHandler) respond(c *gin.Context, fn func(context.Context, workflow.Actor, int64) (*model.Project, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := fn(c.Request.Context(), actor(c), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": p})
}

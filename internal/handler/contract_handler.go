package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mochimo/internal/model"
	"mochimo/internal/service"
)

type ContractHandler struct {
	contracts *service.ContractService
	logger    *zap.Logger
}

func NewContractHandler(contracts *service.ContractService, logger *zap.Logger) *ContractHandler {
	return &ContractHandler{contracts: contracts, logger: logger}
}

type draftRequest struct {
	Price       int64      `json:"price" binding:"required"`
	Currency    string     `json:"currency" binding:"required"`
	PaymentMode string     `json:"payment_mode" binding:"required"`
	Deadline    *time.Time `json:"deadline"`
	Terms       string     `json:"terms"`
}

// Get GET /api/projects/:id/contract
func (h *ContractHandler) Get(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	contract, err := h.contracts.Get(c.Request.Context(), actor(c), projectID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

// Draft PUT /api/projects/:id/contract
func (h *ContractHandler) Draft(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req draftRequest
	if !bindJSON(c, &req) {
		return
	}
	contract, err := h.contracts.Draft(c.Request.Context(), actor(c), projectID, service.DraftInput{
		Price:       req.Price,
		Currency:    req.Currency,
		PaymentMode: model.PaymentMode(req.PaymentMode),
		Deadline:    req.Deadline,
		Terms:       req.Terms,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

// Submit POST /api/projects/:id/contract/submit
func (h *ContractHandler) Submit(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	contract, err := h.contracts.Submit(c.Request.Context(), actor(c), projectID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

// Approve POST /api/projects/:id/contract/approve
func (h *ContractHandler) Approve(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.contracts.Approve(c.Request.Context(), actor(c), projectID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"project":         res.Project,
		"tasks_generated": len(res.Tasks),
	})
}

// Revise POST /api/projects/:id/contract/revise
func (h *ContractHandler) Revise(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reviewRequest
	if !bindJSON(c, &req) {
		return
	}
	contract, err := h.contracts.RequestRevision(c.Request.Context(), actor(c), projectID, req.Note)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contract": contract})
}

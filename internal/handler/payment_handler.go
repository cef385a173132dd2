package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mochimo/internal/model"
	"mochimo/internal/service"
)

type PaymentHandler struct {
	payments       *service.PaymentService
	maxUploadBytes int64
	logger         *zap.Logger
}

func NewPaymentHandler(payments *service.PaymentService, maxUploadBytes int64, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, maxUploadBytes: maxUploadBytes, logger: logger}
}

// List GET /api/projects/:id/payments
func (h *PaymentHandler) List(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	proofs, err := h.payments.List(c.Request.Context(), actor(c), projectID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if proofs == nil {
		proofs = []*model.PaymentProof{}
	}
	c.JSON(http.StatusOK, gin.H{"payments": proofs})
}

// Upload POST /api/projects/:id/payments (multipart, field "file")
func (h *PaymentHandler) Upload(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	img, closeFn, err := readUpload(c, h.maxUploadBytes)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	defer closeFn()

	proof, err := h.payments.UploadProof(c.Request.Context(), actor(c), projectID, img)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"payment": proof})
}

// Summary GET /api/projects/:id/payments/summary
func (h *PaymentHandler) Summary(c *gin.Context) {
	projectID, ok := pathID(c, "id")
	if !ok {
		return
	}
	sum, err := h.payments.Summary(c.Request.Context(), actor(c), projectID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// Verify POST /api/payments/:id/verify
func (h *PaymentHandler) Verify(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.payments.Verify(c.Request.Context(), actor(c), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"project":         res.Project,
		"tasks_generated": len(res.Tasks),
	})
}

// Reject POST /api/payments/:id/reject
func (h *PaymentHandler) Reject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req reviewRequest
	if !bindJSON(c, &req) {
		return
	}
	proof, err := h.payments.RejectProof(c.Request.Context(), actor(c), id, req.Note)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": proof})
}

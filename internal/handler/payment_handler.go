package handler

import (
	"net/http"
	"strconv"
	"strings"

	"billflow/internal/middleware"
	"billflow/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type PaymentHandler struct {
	payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Initialize handles POST /payments/initialize. The Idempotency-Key header (or
// idempotency_key body field) is mandatory; a replay returns the first response verbatim.
func (h *PaymentHandler) Initialize(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req struct {
		InvoiceID      uint             `json:"invoice_id" binding:"required"`
		Amount         *decimal.Decimal `json:"amount"`
		IdempotencyKey string           `json:"idempotency_key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), "INVALID_REQUEST")
		return
	}
	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}
	if key == "" {
		respondError(c, http.StatusBadRequest, "Idempotency key required", "IDEMPOTENCY_KEY_REQUIRED")
		return
	}
	if len(key) > 255 {
		respondError(c, http.StatusBadRequest, "Idempotency key too long", "INVALID_REQUEST")
		return
	}

	resp, replayed, err := h.payments.Initialize(c.Request.Context(), userID, service.InitializeInput{
		InvoiceID:      req.InvoiceID,
		Amount:         req.Amount,
		IdempotencyKey: key,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if replayed {
		c.Header("Idempotent-Replayed", "true")
	}
	c.Data(resp.Status, "application/json; charset=utf-8", resp.Body)
}

// Get handles GET /payments/:reference for the payment's owner.
func (h *PaymentHandler) Get(c *gin.Context) {
	p, err := h.payments.GetForUser(c.Request.Context(), middleware.GetUserID(c), c.Param("reference"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": p})
}

// ListForInvoice handles GET /invoices/:id/payments.
func (h *PaymentHandler) ListForInvoice(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid invoice id", "INVALID_REQUEST")
		return
	}
	list, err := h.payments.ListForInvoice(c.Request.Context(), middleware.GetUserID(c), uint(id))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": list})
}

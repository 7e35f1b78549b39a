package handler

import (
	"errors"
	"io"
	"net/http"

	"billflow/internal/logging"
	"billflow/internal/service"
	"billflow/pkg/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	SignatureHeader = "X-Paystack-Signature"
	maxWebhookBody  = 1 << 20
)

type PaystackWebhookHandler struct {
	webhooks *service.WebhookService
	logger   *zap.Logger
}

func NewPaystackWebhookHandler(webhooks *service.WebhookService, logger *zap.Logger) *PaystackWebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaystackWebhookHandler{webhooks: webhooks, logger: logger}
}

// Handle is POST /webhooks/paystack. Rate limiting runs before this in the router.
// 2xx tells the gateway to stop redelivering; 5xx and 404 invite a retry.
func (h *PaystackWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid body", "INVALID_REQUEST")
		return
	}
	sig := c.GetHeader(SignatureHeader)
	res, err := h.webhooks.HandlePaystack(c.Request.Context(), body, sig, c.ClientIP())
	if err != nil {
		log := logging.FromContext(c.Request.Context(), h.logger)
		switch {
		case errors.Is(err, service.ErrInvalidSignature):
			log.Warn("invalid paystack signature", zap.String("ip", c.ClientIP()))
			respondError(c, http.StatusUnauthorized, "invalid signature", "INVALID_SIGNATURE")
		case errors.Is(err, service.ErrMalformedEvent):
			respondError(c, http.StatusBadRequest, err.Error(), "MALFORMED_EVENT")
		case errors.Is(err, payment.ErrNotConfigured):
			respondError(c, http.StatusServiceUnavailable, "Payment gateway not configured", "GATEWAY_NOT_CONFIGURED")
		case errors.Is(err, service.ErrPaymentNotFound):
			respondError(c, http.StatusNotFound, "payment not found", "PAYMENT_NOT_FOUND")
		default:
			log.Error("webhook processing failed", zap.Error(err))
			respondError(c, http.StatusInternalServerError, "webhook processing failed", "INTERNAL")
		}
		return
	}

	status := http.StatusOK
	switch res.Settle {
	case service.SettleDeferred:
		status = http.StatusAccepted
	case service.SettleMismatch:
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"received": true, "outcome": res.Outcome, "result": res.Settle})
}

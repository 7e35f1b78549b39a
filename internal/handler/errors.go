package handler

import (
	"errors"
	"net/http"

	"billflow/internal/middleware"
	"billflow/internal/service"
	"billflow/pkg/payment"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func respondError(c *gin.Context, status int, msg, code string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code, "request_id": middleware.GetRequestID(c)})
}

// respondServiceError maps service and gateway errors onto the error envelope.
// Anything unrecognised is a 500 with a generic message.
func respondServiceError(c *gin.Context, err error) {
	status, code, msg := classify(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	respondError(c, status, msg, code)
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, payment.ErrNotConfigured):
		return http.StatusServiceUnavailable, "GATEWAY_NOT_CONFIGURED", "Payment gateway not configured"
	case errors.Is(err, service.ErrPaymentNotFound):
		return http.StatusNotFound, "PAYMENT_NOT_FOUND", err.Error()
	case errors.Is(err, service.ErrInvoiceNotFound):
		return http.StatusNotFound, "INVOICE_NOT_FOUND", err.Error()
	case errors.Is(err, service.ErrPayoutAccountNotFound):
		return http.StatusNotFound, "PAYOUT_ACCOUNT_NOT_FOUND", err.Error()
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, "NOT_FOUND", "not found"
	case errors.Is(err, service.ErrInvoiceNotPayable):
		return http.StatusBadRequest, "INVOICE_NOT_PAYABLE", err.Error()
	case errors.Is(err, service.ErrInvalidAmount):
		return http.StatusBadRequest, "INVALID_AMOUNT", err.Error()
	case errors.Is(err, service.ErrInvalidFilter):
		return http.StatusBadRequest, "INVALID_FILTER", err.Error()
	case errors.Is(err, service.ErrKYCRequired):
		return http.StatusForbidden, "IDENTITY_NOT_VERIFIED", "Identity verification required for this amount"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", err.Error()
	case errors.Is(err, service.ErrPayoutAccountExists):
		return http.StatusConflict, "PAYOUT_ACCOUNT_EXISTS", err.Error()
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrConcurrentTransition):
		return http.StatusConflict, "INVALID_TRANSITION", err.Error()
	case errors.Is(err, service.ErrUploadUnavailable):
		return http.StatusServiceUnavailable, "UPLOAD_UNAVAILABLE", err.Error()
	case payment.IsRejected(err):
		var gerr *payment.GatewayError
		errors.As(err, &gerr)
		return http.StatusBadRequest, "GATEWAY_REJECTED", gerr.Message
	case payment.IsTransient(err):
		return http.StatusBadGateway, "GATEWAY_UNAVAILABLE", "Payment gateway unavailable"
	}
	return http.StatusInternalServerError, "INTERNAL", "internal error"
}

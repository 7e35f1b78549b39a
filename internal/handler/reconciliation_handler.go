package handler

import (
	"errors"
	"net/http"

	"billflow/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ReconciliationHandler exposes the reconciliation engine and recovery sweep to admins.
type ReconciliationHandler struct {
	recon       *service.ReconciliationService
	recovery    *service.RecoveryService
	payments    *service.PaymentService
	defaultDays int
	workers     int
}

func NewReconciliationHandler(recon *service.ReconciliationService, recovery *service.RecoveryService, payments *service.PaymentService, defaultDays, workers int) *ReconciliationHandler {
	return &ReconciliationHandler{recon: recon, recovery: recovery, payments: payments, defaultDays: defaultDays, workers: workers}
}

// ReconcileBatch handles POST /admin/reconcile and then runs one recovery sweep.
func (h *ReconciliationHandler) ReconcileBatch(c *gin.Context) {
	req := struct {
		Days    int    `json:"days"`
		Status  string `json:"status"`
		Workers int    `json:"workers"`
	}{Days: h.defaultDays, Status: "pending", Workers: h.workers}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, err.Error(), "INVALID_REQUEST")
			return
		}
	}
	ctx := c.Request.Context()
	report, err := h.recon.ReconcileBatch(ctx, service.Filter{Days: req.Days, Status: req.Status, Workers: req.Workers})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	stats, err := h.recovery.ProcessPendingRecoveries(ctx)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reconciliation": report, "recovery": stats})
}

// ReconcileOne handles POST /admin/payments/:reference/reconcile.
func (h *ReconciliationHandler) ReconcileOne(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := h.payments.GetByReference(ctx, c.Param("reference"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	rec, err := h.recon.Reconcile(ctx, p.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reconciliation": rec})
}

// Get handles GET /admin/payments/:reference/reconciliation.
func (h *ReconciliationHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := h.payments.GetByReference(ctx, c.Param("reference"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	rec, err := h.recon.GetByPaymentID(ctx, p.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		respondServiceError(c, err)
		return
	}
	recoveries, err := h.recovery.ListForPayment(ctx, p.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": p, "reconciliation": rec, "recoveries": recoveries})
}

// ProcessRecoveries handles POST /admin/recoveries/process.
func (h *ReconciliationHandler) ProcessRecoveries(c *gin.Context) {
	stats, err := h.recovery.ProcessPendingRecoveries(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"recovery": stats})
}

// Cancel handles POST /admin/payments/:reference/cancel.
func (h *ReconciliationHandler) Cancel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "cancelled by admin"
	}
	p, err := h.payments.Cancel(c.Request.Context(), c.Param("reference"), req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": p})
}

func (h *ReconciliationHandler) Summary(c *gin.Context) {
	counts, err := h.recon.Summary(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reconciliations": counts})
}

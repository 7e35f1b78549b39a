package handler

import (
	"net/http"

	"billflow/internal/middleware"
	"billflow/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type PayoutHandler struct {
	payouts *service.PayoutService
}

func NewPayoutHandler(payouts *service.PayoutService) *PayoutHandler {
	return &PayoutHandler{payouts: payouts}
}

type payoutAccountRequest struct {
	BankCode         string           `json:"bank_code"`
	AccountNumber    string           `json:"account_number"`
	BusinessName     string           `json:"business_name"`
	PercentageCharge *decimal.Decimal `json:"percentage_charge"`
}

func (r payoutAccountRequest) input() service.PayoutAccountInput {
	return service.PayoutAccountInput{
		BankCode:         r.BankCode,
		AccountNumber:    r.AccountNumber,
		BusinessName:     r.BusinessName,
		PercentageCharge: r.PercentageCharge,
	}
}

func (h *PayoutHandler) ListBanks(c *gin.Context) {
	banks, err := h.payouts.ListBanks(c.Request.Context(), c.DefaultQuery("country", "nigeria"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"banks": banks})
}

func (h *PayoutHandler) Get(c *gin.Context) {
	acct, err := h.payouts.Get(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payout_account": acct})
}

func (h *PayoutHandler) Create(c *gin.Context) {
	var req payoutAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.BankCode == "" || req.AccountNumber == "" {
		respondError(c, http.StatusBadRequest, "bank_code and account_number are required", "INVALID_REQUEST")
		return
	}
	acct, err := h.payouts.Create(c.Request.Context(), middleware.GetUserID(c), req.input())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"payout_account": acct})
}

func (h *PayoutHandler) Update(c *gin.Context) {
	var req payoutAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error(), "INVALID_REQUEST")
		return
	}
	acct, err := h.payouts.Update(c.Request.Context(), middleware.GetUserID(c), req.input())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payout_account": acct})
}

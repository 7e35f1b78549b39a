package service

import "errors"

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrInvalidTransition    = errors.New("invalid payment status transition")
	ErrConcurrentTransition = errors.New("payment status changed concurrently")
	ErrNotVerified          = errors.New("payment not verified by gateway")
	ErrAmountMismatch       = errors.New("gateway amount does not match payment amount")
	ErrCurrencyMismatch     = errors.New("gateway currency does not match payment currency")

	ErrInvoiceNotFound   = errors.New("invoice not found")
	ErrInvoiceNotPayable = errors.New("invoice is not payable")
	ErrInvalidAmount     = errors.New("amount must equal the invoice total")
	ErrForbidden         = errors.New("not allowed")
	ErrKYCRequired       = errors.New("identity verification required")
	ErrInvalidFilter     = errors.New("invalid reconciliation filter")
	ErrUploadUnavailable = errors.New("document storage not configured")

	ErrPayoutAccountExists   = errors.New("payout account already exists")
	ErrPayoutAccountNotFound = errors.New("payout account not found")
)

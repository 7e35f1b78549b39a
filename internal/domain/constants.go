package domain

import "time"

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

const (
	InvoiceStatusUnpaid = "unpaid"
	InvoiceStatusPaid   = "paid"
	InvoiceStatusVoid   = "void"
)

const (
	ReconciliationInProgress = "in_progress"
	ReconciliationVerified   = "verified"
	ReconciliationMismatch   = "mismatch"
	ReconciliationFailed     = "failed"
	ReconciliationRecovered  = "recovered"
)

const RecoveryStrategyWebhookRetry = "webhook_retry"

// Recovery error codes recorded on PaymentRecovery rows.
const (
	RecoveryErrNotVerified      = "NOT_VERIFIED"
	RecoveryErrRecovery         = "RECOVERY_ERROR"
	RecoveryErrAmountMismatch   = "AMOUNT_MISMATCH"
	RecoveryErrCurrencyMismatch = "CURRENCY_MISMATCH"
)

const (
	IdentityPending  = "pending"
	IdentityVerified = "verified"
	IdentityRejected = "rejected"
)

const (
	IdempotencyProcessing = "processing"
	IdempotencyCompleted  = "completed"
)

const ProviderPaystack = "paystack"

// Hard limits of the reconciliation core.
const (
	MaxReconciliationRetries = 3
	MaxRecoveryAttempts      = 3
	RecoveryDelay            = 30 * time.Second
	MaxRecoveryBackoff       = time.Hour
	IdempotencyTTL           = 24 * time.Hour
	IdentityValidity         = 365 * 24 * time.Hour
)

const (
	NotificationPaymentConfirmed = "PAYMENT_CONFIRMED"
	NotificationPaymentFailed    = "PAYMENT_FAILED"
	NotificationPaymentRefunded  = "PAYMENT_REFUNDED"
)

package models

import "time"

// PaymentReconciliation holds the latest comparison of a payment against the gateway.
// There is at most one per payment.
type PaymentReconciliation struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	PaymentID     uint       `gorm:"not null;uniqueIndex" json:"payment_id"`
	UserID        uint       `gorm:"not null;index" json:"user_id"`
	LocalStatus   string     `gorm:"size:20" json:"local_status"`
	GatewayStatus string     `gorm:"size:50" json:"gateway_status"`
	AmountMatch   bool       `json:"amount_match"`
	CurrencyMatch bool       `json:"currency_match"`
	StatusMatch   bool       `json:"status_match"`
	Status        string     `gorm:"size:20;not null;index" json:"status"` // in_progress | verified | mismatch | failed | recovered
	RetryCount    int        `gorm:"not null;default:0" json:"retry_count"`
	LastError     string     `gorm:"type:text" json:"last_error,omitempty"`
	LastAttempt   *time.Time `json:"last_attempt"`
	VerifiedAt    *time.Time `json:"verified_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Payment Payment `gorm:"foreignKey:PaymentID" json:"-"`
}

func (PaymentReconciliation) TableName() string {
	return "payment_reconciliations"
}

// PaymentRecovery is one scheduled recovery attempt. Attempt numbers are unique per payment.
type PaymentRecovery struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	PaymentID     uint       `gorm:"not null;uniqueIndex:idx_recovery_payment_attempt" json:"payment_id"`
	UserID        uint       `gorm:"not null;index" json:"user_id"`
	Strategy      string     `gorm:"size:30;not null" json:"strategy"`
	AttemptNumber int        `gorm:"not null;uniqueIndex:idx_recovery_payment_attempt" json:"attempt_number"`
	ErrorReason   string     `gorm:"type:text" json:"error_reason,omitempty"`
	ErrorCode     string     `gorm:"size:50" json:"error_code,omitempty"`
	SweepCount    int        `gorm:"not null;default:0" json:"sweep_count"` // unsuccessful sweeps so far, drives the backoff
	NextRetryAt   *time.Time `gorm:"index" json:"next_retry_at"`
	IsSuccessful  bool       `gorm:"not null;default:false;index" json:"is_successful"`
	CompletedAt   *time.Time `json:"completed_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Payment Payment `gorm:"foreignKey:PaymentID" json:"-"`
}

func (PaymentRecovery) TableName() string {
	return "payment_recoveries"
}

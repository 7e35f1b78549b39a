package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatusChanged is published whenever a payment reaches success, failed or refunded.
type PaymentStatusChanged struct {
	PaymentID  uint            `json:"payment_id"`
	Reference  string          `json:"reference"`
	InvoiceID  uint            `json:"invoice_id"`
	UserID     uint            `json:"user_id"`
	Status     string          `json:"status"`
	Previous   string          `json:"previous_status"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Reason     string          `json:"reason,omitempty"`
	Source     string          `json:"source"` // webhook | reconciliation | recovery | admin
	RequestID  string          `json:"request_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

package models

import (
	"time"

	"billflow/internal/domain"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Payment is one attempt to pay an invoice through the gateway. Status is written only
// by the ledger service.
type Payment struct {
	ID            uint                 `gorm:"primaryKey" json:"id"`
	Reference     string               `gorm:"size:100;not null;uniqueIndex" json:"reference"`
	InvoiceID     uint                 `gorm:"not null;index" json:"invoice_id"`
	UserID        uint                 `gorm:"not null;index" json:"user_id"` // invoice owner
	Amount        decimal.Decimal      `gorm:"type:decimal(15,2);not null" json:"amount"`
	Currency      string               `gorm:"size:3;not null" json:"currency"`
	Status        domain.PaymentStatus `gorm:"size:20;not null;index" json:"status"`
	Verified      bool                 `gorm:"not null;default:false" json:"verified"`
	PaidAt        *time.Time           `json:"paid_at"`
	GatewayStatus string               `gorm:"size:50" json:"gateway_status"`
	Channel       string               `gorm:"size:50" json:"channel"`
	FailureReason string               `gorm:"size:512" json:"failure_reason,omitempty"`
	Metadata      datatypes.JSON       `json:"metadata,omitempty"`
	CreatedAt     time.Time            `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`

	Invoice Invoice `gorm:"foreignKey:InvoiceID" json:"-"`
}

func (Payment) TableName() string {
	return "payments"
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutAccount routes invoice payments for a user to their gateway subaccount.
type PayoutAccount struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	UserID           uint            `gorm:"not null;uniqueIndex" json:"user_id"`
	BankCode         string          `gorm:"size:20;not null" json:"bank_code"`
	AccountNumber    string          `gorm:"size:20;not null" json:"account_number"`
	AccountName      string          `gorm:"size:255" json:"account_name"`
	BusinessName     string          `gorm:"size:255" json:"business_name"`
	SubaccountCode   string          `gorm:"size:100;index" json:"subaccount_code"`
	PercentageCharge decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"percentage_charge"`
	Active           bool            `gorm:"not null;default:true" json:"active"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (PayoutAccount) TableName() string {
	return "payout_accounts"
}

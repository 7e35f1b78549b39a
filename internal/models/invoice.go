package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Invoice struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	UserID      uint            `gorm:"not null;index" json:"user_id"` // owner, receives the money
	Number      string          `gorm:"size:64;not null;index" json:"number"`
	ClientEmail string          `gorm:"size:255" json:"client_email"`
	Total       decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"total"`
	Currency    string          `gorm:"size:3;not null;default:'NGN'" json:"currency"`
	Status      string          `gorm:"size:20;not null;default:'unpaid';index" json:"status"` // unpaid | paid | void
	PaidAt      *time.Time      `json:"paid_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (Invoice) TableName() string {
	return "invoices"
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

// IdempotencyKey caches the response of a mutating request for replay.
type IdempotencyKey struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	UserID       uint           `gorm:"not null;uniqueIndex:idx_idempotency_user_key" json:"user_id"`
	Key          string         `gorm:"column:idempotency_key;size:255;not null;uniqueIndex:idx_idempotency_user_key" json:"key"`
	RequestHash  string         `gorm:"size:64;not null" json:"-"`
	ResponseBody datatypes.JSON `json:"-"`
	HTTPStatus   int            `json:"http_status"`
	State        string         `gorm:"size:20;not null" json:"state"` // processing | completed
	ExpiresAt    time.Time      `gorm:"not null;index" json:"expires_at"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (IdempotencyKey) TableName() string {
	return "idempotency_keys"
}

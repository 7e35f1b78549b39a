package models

import (
	"time"

	"billflow/internal/domain"
)

// UserIdentityVerification is the KYC record that gates payouts. The document number is
// stored masked; DocumentHash is a bcrypt hash of the full number.
type UserIdentityVerification struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"not null;uniqueIndex" json:"user_id"`
	DocumentType    string     `gorm:"size:30;not null" json:"document_type"`
	DocumentNumber  string     `gorm:"size:32;not null" json:"document_number"`
	DocumentHash    string     `gorm:"size:100" json:"-"`
	DocumentURL     string     `gorm:"size:512" json:"document_url,omitempty"`
	Status          string     `gorm:"size:20;not null;index" json:"status"` // pending | verified | rejected
	VerifiedBy      string     `gorm:"size:100" json:"verified_by,omitempty"`
	VerifiedAt      *time.Time `json:"verified_at"`
	ExpiresAt       *time.Time `json:"expires_at"`
	RejectionReason string     `gorm:"type:text" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (UserIdentityVerification) TableName() string {
	return "user_identity_verifications"
}

// IsVerified is true when the record is verified and not expired at now.
func (v *UserIdentityVerification) IsVerified(now time.Time) bool {
	if v == nil || v.Status != domain.IdentityVerified {
		return false
	}
	return v.ExpiresAt == nil || now.Before(*v.ExpiresAt)
}

package models

import (
	"time"

	"billflow/internal/domain"

	"gorm.io/gorm"
)

// User is the local projection of an account owned by the external auth system.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Email     string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Name      string         `gorm:"size:255" json:"name"`
	Role      string         `gorm:"size:20;not null;default:'USER';index" json:"role"` // USER | ADMIN
	FCMToken  string         `gorm:"size:512" json:"-"`                                 // For push notifications
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) IsAdmin() bool { return u.Role == domain.RoleAdmin }

func (User) TableName() string {
	return "users"
}

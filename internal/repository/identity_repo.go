package repository

import (
	"context"

	"billflow/internal/models"

	"gorm.io/gorm"
)

type IdentityRepository struct {
	db *gorm.DB
}

func NewIdentityRepository(db *gorm.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

func (r *IdentityRepository) GetByUserID(ctx context.Context, userID uint) (*models.UserIdentityVerification, error) {
	var v models.UserIdentityVerification
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Save inserts or updates the record; user_id is unique so there is one row per user.
func (r *IdentityRepository) Save(ctx context.Context, v *models.UserIdentityVerification) error {
	return r.db.WithContext(ctx).Save(v).Error
}

func (r *IdentityRepository) UpdateDocumentURL(ctx context.Context, userID uint, url string) error {
	return r.db.WithContext(ctx).Model(&models.UserIdentityVerification{}).
		Where("user_id = ?", userID).Update("document_url", url).Error
}

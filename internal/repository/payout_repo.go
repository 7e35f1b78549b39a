package repository

import (
	"context"

	"billflow/internal/models"

	"gorm.io/gorm"
)

type PayoutAccountRepository struct {
	db *gorm.DB
}

func NewPayoutAccountRepository(db *gorm.DB) *PayoutAccountRepository {
	return &PayoutAccountRepository{db: db}
}

func (r *PayoutAccountRepository) GetByUserID(ctx context.Context, userID uint) (*models.PayoutAccount, error) {
	var a models.PayoutAccount
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&a).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PayoutAccountRepository) Save(ctx context.Context, a *models.PayoutAccount) error {
	return r.db.WithContext(ctx).Save(a).Error
}

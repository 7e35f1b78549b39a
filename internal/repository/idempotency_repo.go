package repository

import (
	"context"
	"time"

	"billflow/internal/domain"
	"billflow/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type IdempotencyRepository struct {
	db *gorm.DB
}

func NewIdempotencyRepository(db *gorm.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

func (r *IdempotencyRepository) Get(ctx context.Context, userID uint, key string) (*models.IdempotencyKey, error) {
	var k models.IdempotencyKey
	err := r.db.WithContext(ctx).Where("user_id = ? AND idempotency_key = ?", userID, key).First(&k).Error
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// Claim inserts a processing row. A unique violation means another request holds the key.
func (r *IdempotencyRepository) Claim(ctx context.Context, k *models.IdempotencyKey) error {
	k.State = domain.IdempotencyProcessing
	return r.db.WithContext(ctx).Create(k).Error
}

func (r *IdempotencyRepository) Complete(ctx context.Context, id uint, body []byte, status int, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.IdempotencyKey{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"response_body": datatypes.JSON(body),
			"http_status":   status,
			"state":         domain.IdempotencyCompleted,
			"expires_at":    expiresAt,
		}).Error
}

func (r *IdempotencyRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.IdempotencyKey{}, id).Error
}

// DeleteExpired hard-deletes keys whose expiry is before now.
func (r *IdempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&models.IdempotencyKey{})
	return res.RowsAffected, res.Error
}

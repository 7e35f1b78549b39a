package repository

import (
	"context"

	"billflow/internal/models"

	"gorm.io/gorm"
)

type WebhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) WithTx(tx *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: tx}
}

func (r *WebhookRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var c int64
	err := r.db.WithContext(ctx).Model(&models.ProcessedWebhook{}).Where("event_id = ?", eventID).Count(&c).Error
	return c > 0, err
}

func (r *WebhookRepository) Create(ctx context.Context, w *models.ProcessedWebhook) error {
	return r.db.WithContext(ctx).Create(w).Error
}

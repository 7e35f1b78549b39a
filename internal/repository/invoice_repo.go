package repository

import (
	"context"
	"time"

	"billflow/internal/domain"
	"billflow/internal/models"

	"gorm.io/gorm"
)

type InvoiceRepository struct {
	db *gorm.DB
}

func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

func (r *InvoiceRepository) WithTx(tx *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: tx}
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *models.Invoice) error {
	return r.db.WithContext(ctx).Create(inv).Error
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := r.db.WithContext(ctx).First(&inv, id).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// MarkPaid flips an unpaid invoice to paid. Already-paid invoices are left untouched.
func (r *InvoiceRepository) MarkPaid(ctx context.Context, id uint, paidAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("id = ? AND status = ?", id, domain.InvoiceStatusUnpaid).
		Updates(map[string]interface{}{"status": domain.InvoiceStatusPaid, "paid_at": paidAt}).Error
}

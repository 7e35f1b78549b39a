package repository

import (
	"context"
	"time"

	"billflow/internal/domain"
	"billflow/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uint) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByReference(ctx context.Context, ref string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).Where("reference = ?", ref).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// LockByID loads the payment with SELECT ... FOR UPDATE. Only meaningful inside a transaction.
func (r *PaymentRepository) LockByID(ctx context.Context, id uint) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) LockByReference(ctx context.Context, ref string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("reference = ?", ref).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Transition applies updates only if the row is still in status from. It returns the
// number of rows changed, zero meaning another writer got there first.
func (r *PaymentRepository) Transition(ctx context.Context, id uint, from domain.PaymentStatus, updates map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// ListIDsForReconciliation returns ids of payments created since the cutoff, oldest first.
// An empty statuses slice matches every status.
func (r *PaymentRepository) ListIDsForReconciliation(ctx context.Context, since time.Time, statuses []domain.PaymentStatus) ([]uint, error) {
	q := r.db.WithContext(ctx).Model(&models.Payment{}).Where("created_at >= ?", since)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var ids []uint
	err := q.Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}

func (r *PaymentRepository) ListByInvoice(ctx context.Context, invoiceID uint) ([]models.Payment, error) {
	var list []models.Payment
	err := r.db.WithContext(ctx).Where("invoice_id = ?", invoiceID).Order("created_at DESC").Find(&list).Error
	return list, err
}

package repository

import (
	"context"
	"errors"
	"time"

	"billflow/internal/domain"
	"billflow/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReconciliationRepository struct {
	db *gorm.DB
}

func NewReconciliationRepository(db *gorm.DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

func (r *ReconciliationRepository) WithTx(tx *gorm.DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: tx}
}

func (r *ReconciliationRepository) GetByPaymentID(ctx context.Context, paymentID uint) (*models.PaymentReconciliation, error) {
	var rec models.PaymentReconciliation
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// LockOrCreate returns the locked reconciliation row for the payment, creating it on first use.
func (r *ReconciliationRepository) LockOrCreate(ctx context.Context, p *models.Payment) (*models.PaymentReconciliation, error) {
	var rec models.PaymentReconciliation
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("payment_id = ?", p.ID).First(&rec).Error
	if err == nil {
		return &rec, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	rec = models.PaymentReconciliation{
		PaymentID:   p.ID,
		UserID:      p.UserID,
		LocalStatus: p.Status.String(),
		Status:      domain.ReconciliationInProgress,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *ReconciliationRepository) Save(ctx context.Context, rec *models.PaymentReconciliation) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

// MarkRecovered moves an existing reconciliation row to recovered. A missing row is not an error.
func (r *ReconciliationRepository) MarkRecovered(ctx context.Context, paymentID uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.PaymentReconciliation{}).
		Where("payment_id = ?", paymentID).
		Updates(map[string]interface{}{"status": domain.ReconciliationRecovered, "verified_at": at}).Error
}

func (r *ReconciliationRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := r.db.WithContext(ctx).Model(&models.PaymentReconciliation{}).
		Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}

type RecoveryRepository struct {
	db *gorm.DB
}

func NewRecoveryRepository(db *gorm.DB) *RecoveryRepository {
	return &RecoveryRepository{db: db}
}

func (r *RecoveryRepository) WithTx(tx *gorm.DB) *RecoveryRepository {
	return &RecoveryRepository{db: tx}
}

// MaxAttempt returns the highest attempt number recorded for the payment, 0 when none.
func (r *RecoveryRepository) MaxAttempt(ctx context.Context, paymentID uint) (int, error) {
	var max int
	err := r.db.WithContext(ctx).Model(&models.PaymentRecovery{}).
		Where("payment_id = ?", paymentID).
		Select("COALESCE(MAX(attempt_number), 0)").Scan(&max).Error
	return max, err
}

func (r *RecoveryRepository) Create(ctx context.Context, rec *models.PaymentRecovery) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *RecoveryRepository) Save(ctx context.Context, rec *models.PaymentRecovery) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

// ListDueIDs returns recoveries eligible for the sweep at now.
func (r *RecoveryRepository) ListDueIDs(ctx context.Context, now time.Time, maxAttempt, limit int) ([]uint, error) {
	var ids []uint
	q := r.db.WithContext(ctx).Model(&models.PaymentRecovery{}).
		Where("next_retry_at <= ? AND is_successful = ? AND attempt_number < ?", now, false, maxAttempt).
		Order("next_retry_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Pluck("id", &ids).Error
	return ids, err
}

func (r *RecoveryRepository) LockByID(ctx context.Context, id uint) (*models.PaymentRecovery, error) {
	var rec models.PaymentRecovery
	err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).First(&rec, id).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *RecoveryRepository) ListByPayment(ctx context.Context, paymentID uint) ([]models.PaymentRecovery, error) {
	var list []models.PaymentRecovery
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Order("attempt_number ASC").Find(&list).Error
	return list, err
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"billflow/internal/domain"
	"billflow/internal/logging"
	"billflow/internal/models"
	"billflow/internal/repository"
	"billflow/pkg/events"
	"billflow/pkg/payment"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RecoveryStats summarises one sweep.
type RecoveryStats struct {
	Attempted  int `json:"attempted"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// RecoveryService schedules bounded re-verification attempts and sweeps the due ones.
type RecoveryService struct {
	db          *gorm.DB
	gateway     payment.Gateway
	payments    *repository.PaymentRepository
	recs        *repository.ReconciliationRepository
	recoveries  *repository.RecoveryRepository
	ledger      *LedgerService
	notifier    Notifier
	logger      *zap.Logger
	delay       time.Duration
	backoffBase time.Duration
	batchSize   int
	now         func() time.Time
}

func NewRecoveryService(db *gorm.DB, gateway payment.Gateway, ledger *LedgerService, notifier Notifier, logger *zap.Logger) *RecoveryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecoveryService{
		db:          db,
		gateway:     gateway,
		payments:    repository.NewPaymentRepository(db),
		recs:        repository.NewReconciliationRepository(db),
		recoveries:  repository.NewRecoveryRepository(db),
		ledger:      ledger,
		notifier:    notifier,
		logger:      logger.Named("recovery"),
		delay:       domain.RecoveryDelay,
		backoffBase: domain.RecoveryDelay,
		batchSize:   500,
		now:         time.Now,
	}
}

// WithBackoffBase sets the base of the exponential delay applied after an unsuccessful sweep attempt.
func (s *RecoveryService) WithBackoffBase(d time.Duration) *RecoveryService {
	if d > 0 {
		s.backoffBase = d
	}
	return s
}

// TriggerRecovery appends the next recovery attempt for p inside tx. Once the next attempt
// would exceed the cap it logs exhaustion and returns nil, nil.
func (s *RecoveryService) TriggerRecovery(ctx context.Context, tx *gorm.DB, p *models.Payment, reason string) (*models.PaymentRecovery, error) {
	log := logging.FromContext(ctx, s.logger).With(zap.String("reference", p.Reference))
	repo := s.recoveries.WithTx(tx)

	last, err := repo.MaxAttempt(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("latest recovery attempt: %w", err)
	}
	attempt := last + 1
	if attempt > domain.MaxRecoveryAttempts {
		log.Error("payment exceeded max recovery attempts", zap.Int("attempts", last), zap.String("reason", reason))
		return nil, nil
	}

	next := s.now().Add(s.delay)
	rec := &models.PaymentRecovery{
		PaymentID:     p.ID,
		UserID:        p.UserID,
		Strategy:      domain.RecoveryStrategyWebhookRetry,
		AttemptNumber: attempt,
		ErrorReason:   reason,
		NextRetryAt:   &next,
	}
	if err := repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create recovery: %w", err)
	}
	log.Info("recovery triggered", zap.Int("attempt", attempt), zap.String("reason", reason))
	return rec, nil
}

// ProcessPendingRecoveries re-verifies every due recovery row. Each row commits on its own
// and a failing row never stops the sweep.
func (s *RecoveryService) ProcessPendingRecoveries(ctx context.Context) (RecoveryStats, error) {
	var stats RecoveryStats
	if !s.gateway.Configured() {
		return stats, payment.ErrNotConfigured
	}
	ids, err := s.recoveries.ListDueIDs(ctx, s.now(), domain.MaxRecoveryAttempts, s.batchSize)
	if err != nil {
		return stats, fmt.Errorf("list due recoveries: %w", err)
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Attempted++
		ok, err := s.processOne(ctx, id)
		switch {
		case err != nil:
			stats.Failed++
			s.recordError(ctx, id, err)
		case ok:
			stats.Successful++
		default:
			stats.Failed++
		}
	}

	if stats.Attempted > 0 {
		logging.FromContext(ctx, s.logger).Info("recovery sweep finished",
			zap.Int("attempted", stats.Attempted),
			zap.Int("successful", stats.Successful),
			zap.Int("failed", stats.Failed),
		)
	}
	return stats, nil
}

// processOne handles a single recovery row. It returns true when the payment ended up
// settled, false when the attempt was recorded as unsuccessful.
func (s *RecoveryService) processOne(ctx context.Context, id uint) (bool, error) {
	var settled bool
	var ev *events.PaymentStatusChanged

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		recoveries := s.recoveries.WithTx(tx)
		rec, err := recoveries.LockByID(ctx, id)
		if err != nil {
			return err
		}
		// picked up by a concurrent sweep
		if rec.IsSuccessful {
			settled = true
			return nil
		}
		p, err := s.payments.WithTx(tx).LockByID(ctx, rec.PaymentID)
		if err != nil {
			return err
		}
		log := logging.FromContext(ctx, s.logger).With(zap.String("reference", p.Reference), zap.Int("attempt", rec.AttemptNumber))
		now := s.now()

		v, verr := s.gateway.VerifyTransaction(ctx, p.Reference)
		switch {
		case verr != nil:
			s.reschedule(rec, domain.RecoveryErrRecovery, verr.Error(), now)
			log.Warn("recovery verification error", zap.Error(verr))
			return recoveries.Save(ctx, rec)
		case !v.Verified:
			s.reschedule(rec, domain.RecoveryErrNotVerified, "Payment not verified by Paystack", now)
			return recoveries.Save(ctx, rec)
		}

		// already settled elsewhere; only close the row when the gateway agrees on the money
		if p.Status == domain.PaymentSuccess {
			if err := CheckSettlement(p, v); err != nil {
				log.Error("settled payment disagrees with gateway", zap.String("code", settlementCode(err)), zap.Error(err))
				s.reschedule(rec, settlementCode(err), err.Error(), now)
				return recoveries.Save(ctx, rec)
			}
			settled = true
			return s.closeRecovery(ctx, tx, rec, now)
		}

		ev, err = s.ledger.MarkSuccess(ctx, tx, p, v, SourceRecovery)
		if err != nil {
			if !errors.Is(err, ErrAmountMismatch) && !errors.Is(err, ErrCurrencyMismatch) && !errors.Is(err, ErrInvalidTransition) {
				return err
			}
			code := settlementCode(err)
			log.Error("recovery refused to settle payment", zap.String("code", code), zap.Error(err))
			s.reschedule(rec, code, err.Error(), now)
			return recoveries.Save(ctx, rec)
		}
		settled = true
		log.Info("payment recovery successful")
		return s.closeRecovery(ctx, tx, rec, now)
	})
	if err != nil {
		return false, err
	}
	dispatch(ctx, s.notifier, ev)
	return settled, nil
}

func (s *RecoveryService) closeRecovery(ctx context.Context, tx *gorm.DB, rec *models.PaymentRecovery, now time.Time) error {
	rec.IsSuccessful = true
	rec.CompletedAt = &now
	rec.ErrorCode = ""
	if err := s.recoveries.WithTx(tx).Save(ctx, rec); err != nil {
		return err
	}
	return s.recs.WithTx(tx).MarkRecovered(ctx, rec.PaymentID, now)
}

// settlementCode maps a refused settlement to the error code stored on the recovery row.
func settlementCode(err error) string {
	switch {
	case errors.Is(err, ErrAmountMismatch):
		return domain.RecoveryErrAmountMismatch
	case errors.Is(err, ErrCurrencyMismatch):
		return domain.RecoveryErrCurrencyMismatch
	}
	return domain.RecoveryErrRecovery
}

// reschedule records an unsuccessful sweep and backs the row off exponentially on the
// number of sweeps it has failed so far.
func (s *RecoveryService) reschedule(rec *models.PaymentRecovery, code, reason string, now time.Time) {
	rec.ErrorCode = code
	rec.ErrorReason = reason
	rec.SweepCount++
	next := now.Add(s.Backoff(rec.SweepCount))
	rec.NextRetryAt = &next
}

// Backoff is base * 2^n, capped at MaxRecoveryBackoff.
func (s *RecoveryService) Backoff(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 20 {
		n = 20
	}
	d := s.backoffBase * time.Duration(1<<uint(n))
	if d <= 0 || d > domain.MaxRecoveryBackoff {
		return domain.MaxRecoveryBackoff
	}
	return d
}

// recordError stores a failure that rolled back the row's transaction.
func (s *RecoveryService) recordError(ctx context.Context, id uint, cause error) {
	logging.FromContext(ctx, s.logger).Error("recovery process error", zap.Uint("recovery_id", id), zap.Error(cause))
	var sweeps int
	s.db.WithContext(ctx).Model(&models.PaymentRecovery{}).Where("id = ?", id).Select("sweep_count").Scan(&sweeps)
	next := s.now().Add(s.Backoff(sweeps + 1))
	err := s.db.WithContext(ctx).Model(&models.PaymentRecovery{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"error_code":    domain.RecoveryErrRecovery,
			"error_reason":  truncate(cause.Error(), 1000),
			"sweep_count":   sweeps + 1,
			"next_retry_at": next,
		}).Error
	if err != nil {
		logging.FromContext(ctx, s.logger).Error("record recovery error", zap.Uint("recovery_id", id), zap.Error(err))
	}
}

func (s *RecoveryService) ListForPayment(ctx context.Context, paymentID uint) ([]models.PaymentRecovery, error) {
	return s.recoveries.ListByPayment(ctx, paymentID)
}

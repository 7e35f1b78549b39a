package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"billflow/internal/domain"
	"billflow/internal/logging"
	"billflow/internal/models"
	"billflow/internal/repository"
	"billflow/pkg/events"
	"billflow/pkg/payment"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// ReconciliationService compares local payments with the gateway's record.
type ReconciliationService struct {
	db       *gorm.DB
	gateway  payment.Gateway
	payments *repository.PaymentRepository
	recs     *repository.ReconciliationRepository
	ledger   *LedgerService
	recovery *RecoveryService
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewReconciliationService(db *gorm.DB, gateway payment.Gateway, ledger *LedgerService, recovery *RecoveryService, notifier Notifier, logger *zap.Logger) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{
		db:       db,
		gateway:  gateway,
		payments: repository.NewPaymentRepository(db),
		recs:     repository.NewReconciliationRepository(db),
		ledger:   ledger,
		recovery: recovery,
		notifier: notifier,
		logger:   logger.Named("reconciliation"),
		now:      time.Now,
	}
}

// Reconcile verifies one payment against the gateway and records the outcome. The whole
// run, including any recovery it schedules, is one transaction holding the payment row lock.
// The payment itself is never moved here.
func (s *ReconciliationService) Reconcile(ctx context.Context, paymentID uint) (*models.PaymentReconciliation, error) {
	_, rec, err := s.reconcile(ctx, paymentID)
	return rec, err
}

func (s *ReconciliationService) reconcile(ctx context.Context, paymentID uint) (*models.Payment, *models.PaymentReconciliation, error) {
	if !s.gateway.Configured() {
		return nil, nil, payment.ErrNotConfigured
	}
	var p *models.Payment
	var rec *models.PaymentReconciliation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = s.payments.WithTx(tx).LockByID(ctx, paymentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPaymentNotFound
		}
		if err != nil {
			return err
		}
		rec, err = s.begin(ctx, tx, p)
		if err != nil {
			return err
		}

		v, verr := s.gateway.VerifyTransaction(ctx, p.Reference)
		if verr != nil {
			if err := s.recordFailure(ctx, tx, p, rec, verr); err != nil {
				return err
			}
		} else {
			m := Compare(p, v)
			m.apply(rec, p)
			if m.All() {
				now := s.now()
				rec.Status = domain.ReconciliationVerified
				rec.VerifiedAt = &now
			} else {
				rec.Status = domain.ReconciliationMismatch
				logging.FromContext(ctx, s.logger).Warn("reconciliation mismatch",
					zap.String("reference", p.Reference),
					zap.Bool("amount_match", m.Amount),
					zap.Bool("currency_match", m.Currency),
					zap.Bool("status_match", m.Status),
				)
				if _, err := s.recovery.TriggerRecovery(ctx, tx, p, "state mismatch detected"); err != nil {
					return err
				}
			}
		}
		return s.recs.WithTx(tx).Save(ctx, rec)
	})
	if err != nil {
		return nil, nil, err
	}
	return p, rec, nil
}

// begin locks or creates the reconciliation row and marks it in progress.
func (s *ReconciliationService) begin(ctx context.Context, tx *gorm.DB, p *models.Payment) (*models.PaymentReconciliation, error) {
	repo := s.recs.WithTx(tx)
	rec, err := repo.LockOrCreate(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("reconciliation row: %w", err)
	}
	now := s.now()
	rec.Status = domain.ReconciliationInProgress
	rec.LastAttempt = &now
	rec.LocalStatus = p.Status.String()
	if err := repo.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// recordFailure handles a gateway call that produced no answer. Retries are capped by
// retry_count; past the cap the row stays failed with nothing scheduled.
func (s *ReconciliationService) recordFailure(ctx context.Context, tx *gorm.DB, p *models.Payment, rec *models.PaymentReconciliation, cause error) error {
	log := logging.FromContext(ctx, s.logger).With(zap.String("reference", p.Reference))
	rec.Status = domain.ReconciliationFailed
	rec.GatewayStatus = "error"
	rec.LocalStatus = p.Status.String()
	rec.LastError = cause.Error()
	log.Error("reconciliation failed", zap.Error(cause), zap.Bool("transient", payment.IsTransient(cause)))

	if rec.RetryCount >= domain.MaxReconciliationRetries {
		log.Error("reconciliation retries exhausted", zap.Int("retry_count", rec.RetryCount))
		return nil
	}
	rec.RetryCount++
	_, err := s.recovery.TriggerRecovery(ctx, tx, p, "reconciliation error: "+cause.Error())
	return err
}

// Match holds the three independent comparisons of a reconciliation.
type Match struct {
	Amount   bool
	Currency bool
	Status   bool
	Gateway  string
}

func (m Match) All() bool { return m.Amount && m.Currency && m.Status }

func (m Match) apply(rec *models.PaymentReconciliation, p *models.Payment) {
	rec.AmountMatch = m.Amount
	rec.CurrencyMatch = m.Currency
	rec.StatusMatch = m.Status
	rec.GatewayStatus = m.Gateway
	rec.LocalStatus = p.Status.String()
	rec.LastError = ""
}

// Compare matches a gateway verification against the local payment. Status matches only
// for verified+success or unverified+pending.
func Compare(p *models.Payment, v *payment.VerifyResult) Match {
	return Match{
		Amount:   v.Amount.Equal(p.Amount),
		Currency: strings.EqualFold(v.Currency, p.Currency),
		Status: (v.Verified && p.Status == domain.PaymentSuccess) ||
			(!v.Verified && p.Status == domain.PaymentPending),
		Gateway: v.GatewayStatus,
	}
}

// SettleOutcome describes what a webhook-driven settlement did.
type SettleOutcome string

const (
	SettleAlreadySettled SettleOutcome = "already_settled"
	SettleSucceeded      SettleOutcome = "succeeded"
	SettleFailed         SettleOutcome = "failed"
	SettleMismatch       SettleOutcome = "mismatch"
	SettleDeferred       SettleOutcome = "deferred" // gateway unreachable, recovery scheduled
)

// Settle is the webhook path: verify with the gateway and move the ledger inside tx.
// A full match settles the payment; an explicit "not paid" fails it; anything else is
// recorded and left to recovery. The returned event must be dispatched after commit.
func (s *ReconciliationService) Settle(ctx context.Context, tx *gorm.DB, p *models.Payment) (SettleOutcome, *events.PaymentStatusChanged, error) {
	if p.Status == domain.PaymentSuccess || p.Status == domain.PaymentRefunded {
		return SettleAlreadySettled, nil, nil
	}
	log := logging.FromContext(ctx, s.logger).With(zap.String("reference", p.Reference))
	rec, err := s.begin(ctx, tx, p)
	if err != nil {
		return "", nil, err
	}
	recs := s.recs.WithTx(tx)

	v, verr := s.gateway.VerifyTransaction(ctx, p.Reference)
	if verr != nil {
		if p.Status == domain.PaymentPending {
			if err := s.ledger.MarkProcessing(ctx, tx, p, SourceWebhook); err != nil {
				return "", nil, err
			}
		}
		if err := s.recordFailure(ctx, tx, p, rec, verr); err != nil {
			return "", nil, err
		}
		return SettleDeferred, nil, recs.Save(ctx, rec)
	}

	m := Compare(p, v)
	now := s.now()

	if !v.Verified {
		log.Warn("gateway did not verify payment", zap.String("gateway_status", v.GatewayStatus))
		var ev *events.PaymentStatusChanged
		if domain.CanTransition(p.Status, domain.PaymentFailed, false) {
			ev, err = s.ledger.MarkFailed(ctx, tx, p, "gateway reported "+v.GatewayStatus, v.GatewayStatus, SourceWebhook)
			if err != nil {
				return "", nil, err
			}
		}
		m.apply(rec, p)
		rec.StatusMatch = false
		rec.Status = domain.ReconciliationFailed
		rec.LastError = "Verification failed"
		return SettleFailed, ev, recs.Save(ctx, rec)
	}

	if err := CheckSettlement(p, v); err != nil {
		log.Error("webhook settlement rejected", zap.Error(err))
		var ev *events.PaymentStatusChanged
		if domain.CanTransition(p.Status, domain.PaymentFailed, false) {
			ev, err = s.ledger.MarkFailed(ctx, tx, p, err.Error(), v.GatewayStatus, SourceWebhook)
			if err != nil {
				return "", nil, err
			}
		}
		m.apply(rec, p)
		rec.StatusMatch = false
		rec.Status = domain.ReconciliationMismatch
		rec.LastError = truncate(errMessage(m), 255)
		if _, err := s.recovery.TriggerRecovery(ctx, tx, p, "state mismatch detected"); err != nil {
			return "", nil, err
		}
		return SettleMismatch, ev, recs.Save(ctx, rec)
	}

	if !domain.CanTransition(p.Status, domain.PaymentSuccess, false) {
		// paid at the gateway but locally failed or cancelled; only recovery may move it
		log.Warn("verified payment in non-settleable state", zap.String("status", p.Status.String()))
		m.apply(rec, p)
		rec.Status = domain.ReconciliationMismatch
		if p.Status == domain.PaymentFailed {
			if _, err := s.recovery.TriggerRecovery(ctx, tx, p, "state mismatch detected"); err != nil {
				return "", nil, err
			}
		}
		return SettleMismatch, nil, recs.Save(ctx, rec)
	}

	ev, err := s.ledger.MarkSuccess(ctx, tx, p, v, SourceWebhook)
	if err != nil {
		return "", nil, err
	}
	m = Compare(p, v)
	m.apply(rec, p)
	rec.Status = domain.ReconciliationVerified
	rec.VerifiedAt = &now
	return SettleSucceeded, ev, recs.Save(ctx, rec)
}

func errMessage(m Match) string {
	switch {
	case !m.Amount:
		return "Amount mismatch"
	case !m.Currency:
		return "Currency mismatch"
	}
	return "Status mismatch"
}

// Filter selects payments for a batch run.
type Filter struct {
	Days    int
	Status  string // pending | processing | failed | all
	Workers int
}

func (f Filter) statuses() ([]domain.PaymentStatus, error) {
	switch f.Status {
	case "", "pending":
		return []domain.PaymentStatus{domain.PaymentPending}, nil
	case "processing":
		return []domain.PaymentStatus{domain.PaymentProcessing}, nil
	case "failed":
		return []domain.PaymentStatus{domain.PaymentFailed}, nil
	case "all":
		return nil, nil
	}
	return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, f.Status)
}

type BatchItem struct {
	PaymentID uint   `json:"payment_id"`
	Reference string `json:"reference,omitempty"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

type BatchReport struct {
	Total    int         `json:"total"`
	Verified int         `json:"verified"`
	Mismatch int         `json:"mismatch"`
	Failed   int         `json:"failed"`
	Items    []BatchItem `json:"items"`
}

// ReconcileBatch reconciles every payment matching f. Payments are isolated from each
// other: an error on one is counted and the batch carries on.
func (s *ReconciliationService) ReconcileBatch(ctx context.Context, f Filter) (*BatchReport, error) {
	statuses, err := f.statuses()
	if err != nil {
		return nil, err
	}
	if f.Days <= 0 {
		return nil, fmt.Errorf("%w: days must be positive", ErrInvalidFilter)
	}
	if !s.gateway.Configured() {
		return nil, payment.ErrNotConfigured
	}
	since := s.now().Add(-time.Duration(f.Days) * 24 * time.Hour)
	ids, err := s.payments.ListIDsForReconciliation(ctx, since, statuses)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	report := &BatchReport{Total: len(ids), Items: make([]BatchItem, len(ids))}
	var mu sync.Mutex
	workers := f.Workers
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			item := BatchItem{PaymentID: id}
			p, rec, err := s.reconcile(gctx, id)
			if p != nil {
				item.Reference = p.Reference
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Failed++
				item.Status = "error"
				item.Error = err.Error()
				logging.FromContext(ctx, s.logger).Error("reconciliation error", zap.Uint("payment_id", id), zap.Error(err))
			case rec.Status == domain.ReconciliationVerified:
				report.Verified++
				item.Status = rec.Status
			case rec.Status == domain.ReconciliationMismatch:
				report.Mismatch++
				item.Status = rec.Status
			default:
				report.Failed++
				item.Status = rec.Status
			}
			report.Items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

func (s *ReconciliationService) GetByPaymentID(ctx context.Context, paymentID uint) (*models.PaymentReconciliation, error) {
	return s.recs.GetByPaymentID(ctx, paymentID)
}

func (s *ReconciliationService) Summary(ctx context.Context) (map[string]int64, error) {
	return s.recs.CountByStatus(ctx)
}

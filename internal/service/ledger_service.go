package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
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

// Source names what drove a ledger transition.
type Source string

const (
	SourceWebhook        Source = "webhook"
	SourceReconciliation Source = "reconciliation"
	SourceRecovery       Source = "recovery"
	SourceAdmin          Source = "admin"
)

// LedgerService is the only writer of Payment.Status. Every method runs against the
// caller's transaction, applies a conditional update on the observed status and writes
// an audit row. Methods that reach a state users care about return the event to publish
// once the transaction has committed.
type LedgerService struct {
	payments *repository.PaymentRepository
	invoices *repository.InvoiceRepository
	audit    *repository.AuditLogRepository
	logger   *zap.Logger
	now      func() time.Time
}

func NewLedgerService(payments *repository.PaymentRepository, invoices *repository.InvoiceRepository, audit *repository.AuditLogRepository, logger *zap.Logger) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{payments: payments, invoices: invoices, audit: audit, logger: logger, now: time.Now}
}

// CheckSettlement reports why v cannot settle p, or nil when it can.
func CheckSettlement(p *models.Payment, v *payment.VerifyResult) error {
	if v == nil || !v.Verified {
		return ErrNotVerified
	}
	if !v.Amount.Equal(p.Amount) {
		return fmt.Errorf("%w: gateway %s, expected %s", ErrAmountMismatch, v.Amount.StringFixed(2), p.Amount.StringFixed(2))
	}
	if !strings.EqualFold(v.Currency, p.Currency) {
		return fmt.Errorf("%w: gateway %s, expected %s", ErrCurrencyMismatch, v.Currency, p.Currency)
	}
	return nil
}

// MarkSuccess settles the payment from a gateway verification. Amount and currency must
// match exactly, whichever path drives the move.
func (s *LedgerService) MarkSuccess(ctx context.Context, tx *gorm.DB, p *models.Payment, v *payment.VerifyResult, src Source) (*events.PaymentStatusChanged, error) {
	if err := CheckSettlement(p, v); err != nil {
		return nil, err
	}
	paidAt := s.now().UTC()
	if v.PaidAt != nil {
		paidAt = v.PaidAt.UTC()
	}
	updates := map[string]interface{}{
		"status":         domain.PaymentSuccess,
		"verified":       true,
		"paid_at":        paidAt,
		"gateway_status": v.GatewayStatus,
		"channel":        v.Channel,
		"failure_reason": "",
	}
	prev := p.Status
	if err := s.transition(ctx, tx, p, domain.PaymentSuccess, src, updates, ""); err != nil {
		return nil, err
	}
	p.Verified = true
	p.PaidAt = &paidAt
	p.GatewayStatus = v.GatewayStatus
	p.Channel = v.Channel
	p.FailureReason = ""

	if err := s.invoices.WithTx(tx).MarkPaid(ctx, p.InvoiceID, paidAt); err != nil {
		return nil, fmt.Errorf("mark invoice paid: %w", err)
	}
	return s.event(ctx, p, prev, src, ""), nil
}

func (s *LedgerService) MarkFailed(ctx context.Context, tx *gorm.DB, p *models.Payment, reason, gatewayStatus string, src Source) (*events.PaymentStatusChanged, error) {
	updates := map[string]interface{}{
		"status":         domain.PaymentFailed,
		"failure_reason": truncate(reason, 512),
	}
	if gatewayStatus != "" {
		updates["gateway_status"] = gatewayStatus
		p.GatewayStatus = gatewayStatus
	}
	prev := p.Status
	if err := s.transition(ctx, tx, p, domain.PaymentFailed, src, updates, reason); err != nil {
		return nil, err
	}
	p.FailureReason = truncate(reason, 512)
	return s.event(ctx, p, prev, src, reason), nil
}

// MarkProcessing records that the gateway has the payment but the outcome is not final.
func (s *LedgerService) MarkProcessing(ctx context.Context, tx *gorm.DB, p *models.Payment, src Source) error {
	return s.transition(ctx, tx, p, domain.PaymentProcessing, src, map[string]interface{}{"status": domain.PaymentProcessing}, "")
}

func (s *LedgerService) MarkRefunded(ctx context.Context, tx *gorm.DB, p *models.Payment, src Source) (*events.PaymentStatusChanged, error) {
	prev := p.Status
	if err := s.transition(ctx, tx, p, domain.PaymentRefunded, src, map[string]interface{}{"status": domain.PaymentRefunded}, ""); err != nil {
		return nil, err
	}
	return s.event(ctx, p, prev, src, ""), nil
}

func (s *LedgerService) MarkCancelled(ctx context.Context, tx *gorm.DB, p *models.Payment, reason string, src Source) error {
	updates := map[string]interface{}{
		"status":         domain.PaymentCancelled,
		"failure_reason": truncate(reason, 512),
	}
	if err := s.transition(ctx, tx, p, domain.PaymentCancelled, src, updates, reason); err != nil {
		return err
	}
	p.FailureReason = truncate(reason, 512)
	return nil
}

func (s *LedgerService) transition(ctx context.Context, tx *gorm.DB, p *models.Payment, to domain.PaymentStatus, src Source, updates map[string]interface{}, reason string) error {
	from := p.Status
	if !domain.CanTransition(from, to, src == SourceRecovery) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	n, err := s.payments.WithTx(tx).Transition(ctx, p.ID, from, updates)
	if err != nil {
		return fmt.Errorf("update payment %s: %w", p.Reference, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s no longer %s", ErrConcurrentTransition, p.Reference, from)
	}
	p.Status = to

	meta, _ := json.Marshal(map[string]interface{}{
		"from":       from,
		"to":         to,
		"source":     src,
		"reason":     reason,
		"request_id": logging.CorrelationID(ctx),
	})
	uid := p.UserID
	if err := s.audit.WithTx(tx).Create(ctx, &models.AuditLog{
		UserID:     &uid,
		Action:     "payment.status_changed",
		Resource:   "payment",
		ResourceID: strconv.FormatUint(uint64(p.ID), 10),
		Metadata:   string(meta),
	}); err != nil {
		return fmt.Errorf("audit payment %s: %w", p.Reference, err)
	}

	logging.FromContext(ctx, s.logger).Info("payment status changed",
		zap.String("reference", p.Reference),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.String("source", string(src)),
	)
	return nil
}

func (s *LedgerService) event(ctx context.Context, p *models.Payment, prev domain.PaymentStatus, src Source, reason string) *events.PaymentStatusChanged {
	return &events.PaymentStatusChanged{
		PaymentID:  p.ID,
		Reference:  p.Reference,
		InvoiceID:  p.InvoiceID,
		UserID:     p.UserID,
		Status:     p.Status.String(),
		Previous:   prev.String(),
		Amount:     p.Amount,
		Currency:   p.Currency,
		Reason:     reason,
		Source:     string(src),
		RequestID:  logging.CorrelationID(ctx),
		OccurredAt: s.now().UTC(),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

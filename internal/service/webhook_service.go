package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"billflow/internal/domain"
	"billflow/internal/logging"
	"billflow/internal/repository"
	"billflow/pkg/events"
	"billflow/pkg/payment"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	EventChargeSuccess   = "charge.success"
	EventRefundProcessed = "refund.processed"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
)

type WebhookOutcome string

const (
	WebhookApplied   WebhookOutcome = "applied"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
)

type WebhookResult struct {
	Outcome   WebhookOutcome
	Settle    SettleOutcome // set for charge.success when applied
	EventID   string
	EventType string
	Reference string
}

type paystackEvent struct {
	Event string          `json:"event"`
	ID    json.RawMessage `json:"id"`
	Data  struct {
		ID                   json.RawMessage `json:"id"`
		Reference            string          `json:"reference"`
		TransactionReference string          `json:"transaction_reference"`
		Transaction          struct {
			Reference string `json:"reference"`
		} `json:"transaction"`
	} `json:"data"`
}

func (e *paystackEvent) eventID() string {
	if id := rawID(e.Data.ID); id != "" {
		return id
	}
	return rawID(e.ID)
}

func (e *paystackEvent) reference() string {
	switch {
	case e.Data.Reference != "":
		return e.Data.Reference
	case e.Data.TransactionReference != "":
		return e.Data.TransactionReference
	}
	return e.Data.Transaction.Reference
}

// rawID accepts both numeric and string ids.
func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// WebhookService applies authenticated gateway events exactly once.
type WebhookService struct {
	db       *gorm.DB
	gateway  payment.Gateway
	ledger   *LedgerService
	recon    *ReconciliationService
	webhooks *WebhookLedger
	notifier Notifier
	logger   *zap.Logger
}

func NewWebhookService(db *gorm.DB, gateway payment.Gateway, ledger *LedgerService, recon *ReconciliationService, webhooks *WebhookLedger, notifier Notifier, logger *zap.Logger) *WebhookService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookService{db: db, gateway: gateway, ledger: ledger, recon: recon, webhooks: webhooks, notifier: notifier, logger: logger.Named("webhook")}
}

// HandlePaystack authenticates body against signature, deduplicates on the event id and
// applies the event. ErrPaymentNotFound leaves the event unrecorded so a redelivery can
// still apply it.
func (s *WebhookService) HandlePaystack(ctx context.Context, body []byte, signature, ip string) (*WebhookResult, error) {
	if !s.gateway.Configured() {
		return nil, payment.ErrNotConfigured
	}
	if !s.gateway.VerifyWebhookSignature(body, signature) {
		return nil, ErrInvalidSignature
	}
	var evt paystackEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	id := evt.eventID()
	if id == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrMalformedEvent)
	}
	res := &WebhookResult{EventID: evt.Event + ":" + id, EventType: evt.Event, Reference: evt.reference()}
	log := logging.FromContext(ctx, s.logger).With(zap.String("event_id", res.EventID), zap.String("reference", res.Reference))

	done, err := s.webhooks.IsProcessed(ctx, res.EventID)
	if err != nil {
		return nil, err
	}
	if done {
		log.Info("webhook already processed")
		res.Outcome = WebhookDuplicate
		return res, nil
	}
	if evt.Event != EventChargeSuccess && evt.Event != EventRefundProcessed {
		log.Info("ignoring webhook event", zap.String("event", evt.Event))
		res.Outcome = WebhookIgnored
		return res, nil
	}
	if res.Reference == "" {
		return nil, fmt.Errorf("%w: missing reference", ErrMalformedEvent)
	}

	sum := sha256.Sum256(body)
	marker := ProcessedEvent{
		EventID:     res.EventID,
		Provider:    domain.ProviderPaystack,
		EventType:   evt.Event,
		Reference:   res.Reference,
		PayloadHash: hex.EncodeToString(sum[:]),
		IPAddress:   ip,
	}

	var ev *events.PaymentStatusChanged
	duplicate, err := s.webhooks.ProcessOnce(ctx, marker, func(tx *gorm.DB) error {
		p, err := repository.NewPaymentRepository(tx).LockByReference(ctx, res.Reference)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPaymentNotFound
		}
		if err != nil {
			return err
		}
		switch evt.Event {
		case EventChargeSuccess:
			res.Settle, ev, err = s.recon.Settle(ctx, tx, p)
			return err
		default:
			if p.Status != domain.PaymentSuccess {
				log.Warn("refund for payment that is not settled", zap.String("status", p.Status.String()))
				return nil
			}
			ev, err = s.ledger.MarkRefunded(ctx, tx, p, SourceWebhook)
			return err
		}
	})
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			log.Warn("webhook for unknown payment")
		}
		return nil, err
	}
	if duplicate {
		res.Outcome = WebhookDuplicate
		return res, nil
	}
	res.Outcome = WebhookApplied
	dispatch(ctx, s.notifier, ev)
	log.Info("webhook applied", zap.String("event", evt.Event), zap.String("settle", string(res.Settle)))
	return res, nil
}

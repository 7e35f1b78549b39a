package service

import (
	"context"
	"errors"

	"billflow/internal/models"
	"billflow/internal/repository"

	"gorm.io/gorm"
)

// ProcessedEvent identifies one gateway webhook delivery.
type ProcessedEvent struct {
	EventID     string
	Provider    string
	EventType   string
	Reference   string
	PayloadHash string
	IPAddress   string
}

var errDuplicateEvent = errors.New("webhook event already processed")

// WebhookLedger guarantees that the side effects of a gateway event are applied once.
type WebhookLedger struct {
	db   *gorm.DB
	repo *repository.WebhookRepository
}

func NewWebhookLedger(db *gorm.DB) *WebhookLedger {
	return &WebhookLedger{db: db, repo: repository.NewWebhookRepository(db)}
}

func (l *WebhookLedger) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	return l.repo.Exists(ctx, eventID)
}

// MarkProcessed records the event inside tx. The unique event_id index rejects a second insert.
func (l *WebhookLedger) MarkProcessed(ctx context.Context, tx *gorm.DB, ev ProcessedEvent) error {
	return l.repo.WithTx(tx).Create(ctx, &models.ProcessedWebhook{
		EventID:     ev.EventID,
		Provider:    ev.Provider,
		EventType:   ev.EventType,
		Reference:   ev.Reference,
		PayloadHash: ev.PayloadHash,
		IPAddress:   ev.IPAddress,
	})
}

// ProcessOnce records the event and runs apply in the same transaction. If the event was
// already recorded, or a concurrent delivery records it first, apply's effects are rolled
// back and duplicate is true. An error from apply rolls everything back so the gateway
// can redeliver.
func (l *WebhookLedger) ProcessOnce(ctx context.Context, ev ProcessedEvent, apply func(tx *gorm.DB) error) (bool, error) {
	done, err := l.IsProcessed(ctx, ev.EventID)
	if err != nil {
		return false, err
	}
	if done {
		return true, nil
	}

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := l.repo.WithTx(tx).Exists(ctx, ev.EventID)
		if err != nil {
			return err
		}
		if exists {
			return errDuplicateEvent
		}
		// the marker row is written first so a concurrent delivery blocks on the unique index
		if err := l.MarkProcessed(ctx, tx, ev); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errDuplicateEvent
			}
			return err
		}
		return apply(tx)
	})
	if errors.Is(err, errDuplicateEvent) {
		return true, nil
	}
	if err != nil {
		// a concurrent commit may surface as a constraint error on some drivers
		if done, lerr := l.IsProcessed(ctx, ev.EventID); lerr == nil && done {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

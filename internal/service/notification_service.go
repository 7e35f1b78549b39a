package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"billflow/internal/domain"
	"billflow/internal/logging"
	"billflow/internal/models"
	"billflow/internal/repository"
	"billflow/pkg/events"

	"go.uber.org/zap"
)

// Notifier is told about payment state changes after they are committed.
type Notifier interface {
	PaymentChanged(ctx context.Context, ev events.PaymentStatusChanged)
}

// Broadcaster pushes a payload to a user's open websocket connections.
type Broadcaster interface {
	BroadcastToUser(userID uint, payload interface{})
}

// NotificationService fans a payment change out to the notification table, FCM, Kafka and
// websockets. Every sink is optional and a failing sink never fails the caller.
type NotificationService struct {
	repo      *repository.NotificationRepository
	userRepo  *repository.UserRepository
	fcm       *FCMService
	publisher events.Publisher
	hub       Broadcaster
	logger    *zap.Logger
}

func NewNotificationService(repo *repository.NotificationRepository, userRepo *repository.UserRepository, fcm *FCMService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, userRepo: userRepo, fcm: fcm, logger: logger}
}

func (s *NotificationService) WithPublisher(p events.Publisher) *NotificationService {
	s.publisher = p
	return s
}

func (s *NotificationService) WithBroadcaster(h Broadcaster) *NotificationService {
	s.hub = h
	return s
}

// Notify stores p for userID and pushes it to the user's device when FCM is enabled.
func (s *NotificationService) Notify(ctx context.Context, userID uint, p Push) error {
	var data []byte
	if len(p.Data) > 0 {
		data, _ = json.Marshal(p.Data)
	}
	err := s.repo.Create(ctx, &models.Notification{
		UserID: userID,
		Type:   p.Type,
		Title:  p.Title,
		Body:   p.Body,
		Data:   data,
	})
	if err != nil {
		return err
	}
	s.sendPush(ctx, userID, p)
	return nil
}

func (s *NotificationService) sendPush(ctx context.Context, userID uint, p Push) {
	if s.fcm == nil || s.userRepo == nil {
		return
	}
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil || u.FCMToken == "" {
		return
	}
	if err := s.fcm.SendPayment(ctx, u.FCMToken, p); err != nil {
		logging.FromContext(ctx, s.logger).Warn("push failed", zap.Uint("user_id", userID), zap.Error(err))
	}
}

// PaymentChanged implements Notifier.
func (s *NotificationService) PaymentChanged(ctx context.Context, ev events.PaymentStatusChanged) {
	log := logging.FromContext(ctx, s.logger).With(zap.String("reference", ev.Reference), zap.String("status", ev.Status))

	if push, ok := paymentPush(ev); ok {
		if err := s.Notify(ctx, ev.UserID, push); err != nil {
			log.Error("store notification failed", zap.Error(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishPaymentStatus(ctx, ev); err != nil {
			log.Error("publish payment event failed", zap.Error(err))
		}
	}
	if s.hub != nil {
		s.hub.BroadcastToUser(ev.UserID, map[string]interface{}{"type": "payment_status", "payment": ev})
	}
}

// paymentPush builds the user-facing message for statuses users are told about.
func paymentPush(ev events.PaymentStatusChanged) (Push, bool) {
	amount := ev.Currency + " " + ev.Amount.StringFixed(2)
	p := Push{Data: map[string]string{
		"reference":  ev.Reference,
		"invoice_id": strconv.FormatUint(uint64(ev.InvoiceID), 10),
		"amount":     ev.Amount.StringFixed(2),
		"currency":   ev.Currency,
		"status":     ev.Status,
	}}
	switch domain.PaymentStatus(ev.Status) {
	case domain.PaymentSuccess:
		p.Type, p.Title = domain.NotificationPaymentConfirmed, "Payment received"
		p.Body = fmt.Sprintf("Payment of %s for your invoice was confirmed.", amount)
	case domain.PaymentFailed:
		p.Type, p.Title = domain.NotificationPaymentFailed, "Payment failed"
		p.Body = fmt.Sprintf("A payment of %s for your invoice could not be confirmed.", amount)
	case domain.PaymentRefunded:
		p.Type, p.Title = domain.NotificationPaymentRefunded, "Payment refunded"
		p.Body = fmt.Sprintf("A payment of %s was refunded.", amount)
	default:
		return Push{}, false
	}
	return p, true
}

func (s *NotificationService) List(ctx context.Context, userID uint, limit, offset int) ([]models.Notification, error) {
	return s.repo.ListByUserID(ctx, userID, limit, offset)
}

func (s *NotificationService) MarkRead(ctx context.Context, id, userID uint) error {
	return s.repo.MarkRead(ctx, id, userID)
}

// RegisterDevice stores the FCM token payment pushes are sent to. An empty token turns pushes off.
func (s *NotificationService) RegisterDevice(ctx context.Context, userID uint, token string) error {
	return s.userRepo.UpdateFCMToken(ctx, userID, strings.TrimSpace(token))
}

// dispatch sends committed events to n. nil events are skipped.
func dispatch(ctx context.Context, n Notifier, evs ...*events.PaymentStatusChanged) {
	if n == nil {
		return
	}
	for _, ev := range evs {
		if ev != nil {
			n.PaymentChanged(ctx, *ev)
		}
	}
}

// Package app builds the service graph shared by the HTTP server and the reconcile CLI.
package app

import (
	"fmt"

	"billflow/config"
	"billflow/internal/repository"
	"billflow/internal/service"
	"billflow/internal/ws"
	"billflow/pkg/cloudinary"
	"billflow/pkg/events"
	"billflow/pkg/payment"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps are the optional integrations. Nil values disable the matching sink.
type Deps struct {
	Gateway   payment.Gateway
	Cloud     cloudinary.Client
	FCM       *service.FCMService
	Publisher events.Publisher
	Hub       *ws.Hub
}

type App struct {
	Config *config.Config
	DB     *gorm.DB
	Logger *zap.Logger
	Hub    *ws.Hub

	Gateway        payment.Gateway
	Ledger         *service.LedgerService
	Notifications  *service.NotificationService
	Idempotency    *service.IdempotencyService
	Identity       *service.IdentityService
	Recovery       *service.RecoveryService
	Reconciliation *service.ReconciliationService
	Webhooks       *service.WebhookService
	Payments       *service.PaymentService
	Payouts        *service.PayoutService
}

// NewGateway picks the gateway implementation from config. An empty secret key yields
// an unconfigured Paystack client, which the engine treats as a configuration error.
func NewGateway(cfg *config.PaystackConfig, logger *zap.Logger) (payment.Gateway, error) {
	switch cfg.Mode {
	case "", "paystack":
		return payment.NewPaystackGateway(payment.PaystackConfig{
			BaseURL:        cfg.BaseURL,
			SecretKey:      cfg.SecretKey,
			RequestTimeout: cfg.Timeout,
		}, logger), nil
	case "stub":
		return payment.NewStubGateway(), nil
	}
	return nil, fmt.Errorf("unknown paystack mode %q", cfg.Mode)
}

func New(cfg *config.Config, db *gorm.DB, deps Deps, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	threshold, err := decimal.NewFromString(cfg.Reconciliation.KYCThreshold)
	if err != nil {
		return nil, fmt.Errorf("reconciliation.kyc_threshold: %w", err)
	}
	if deps.Gateway == nil {
		if deps.Gateway, err = NewGateway(&cfg.Paystack, logger); err != nil {
			return nil, err
		}
	}

	userRepo := repository.NewUserRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	notifications := service.NewNotificationService(notificationRepo, userRepo, deps.FCM, logger)
	if deps.Publisher != nil {
		notifications.WithPublisher(deps.Publisher)
	}
	if deps.Hub != nil {
		notifications.WithBroadcaster(deps.Hub)
	}

	ledger := service.NewLedgerService(paymentRepo, invoiceRepo, auditRepo, logger)
	idempotency := service.NewIdempotencyService(repository.NewIdempotencyRepository(db), logger)
	identity := service.NewIdentityService(repository.NewIdentityRepository(db), deps.Gateway, deps.Cloud, logger)
	recovery := service.NewRecoveryService(db, deps.Gateway, ledger, notifications, logger).
		WithBackoffBase(cfg.Reconciliation.BackoffBase)
	recon := service.NewReconciliationService(db, deps.Gateway, ledger, recovery, notifications, logger)

	return &App{
		Config:         cfg,
		DB:             db,
		Logger:         logger,
		Hub:            deps.Hub,
		Gateway:        deps.Gateway,
		Ledger:         ledger,
		Notifications:  notifications,
		Idempotency:    idempotency,
		Identity:       identity,
		Recovery:       recovery,
		Reconciliation: recon,
		Webhooks:       service.NewWebhookService(db, deps.Gateway, ledger, recon, service.NewWebhookLedger(db), notifications, logger),
		Payments: service.NewPaymentService(db, deps.Gateway, ledger, identity, idempotency, service.PaymentServiceConfig{
			CallbackURL:  cfg.Paystack.CallbackURL,
			KYCThreshold: threshold,
		}, logger),
		Payouts: service.NewPayoutService(deps.Gateway, repository.NewPayoutAccountRepository(db), userRepo, identity, logger),
	}, nil
}

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"billflow/internal/repository"
	"billflow/internal/testutil"
	"billflow/pkg/events"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.PaymentStatusChanged
}

func (n *recordingNotifier) PaymentChanged(ctx context.Context, ev events.PaymentStatusChanged) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) Events() []events.PaymentStatusChanged {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]events.PaymentStatusChanged(nil), n.events...)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	db       *gorm.DB
	gw       *testutil.FakeGateway
	clock    *fakeClock
	notifier *recordingNotifier

	ledger      *LedgerService
	recovery    *RecoveryService
	recon       *ReconciliationService
	webhooks    *WebhookService
	idempotency *IdempotencyService
	identity    *IdentityService
	payments    *PaymentService
	payouts     *PayoutService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	gw := testutil.NewFakeGateway()
	clock := &fakeClock{t: time.Now().UTC().Truncate(time.Second)}
	n := &recordingNotifier{}

	ledger := NewLedgerService(repository.NewPaymentRepository(db), repository.NewInvoiceRepository(db), repository.NewAuditLogRepository(db), nil)
	ledger.now = clock.Now
	recovery := NewRecoveryService(db, gw, ledger, n, nil)
	recovery.now = clock.Now
	recon := NewReconciliationService(db, gw, ledger, recovery, n, nil)
	recon.now = clock.Now
	idem := NewIdempotencyService(repository.NewIdempotencyRepository(db), nil)
	idem.now = clock.Now
	identity := NewIdentityService(repository.NewIdentityRepository(db), gw, nil, nil)
	identity.now = clock.Now

	return &testEnv{
		db:          db,
		gw:          gw,
		clock:       clock,
		notifier:    n,
		ledger:      ledger,
		recovery:    recovery,
		recon:       recon,
		webhooks:    NewWebhookService(db, gw, ledger, recon, NewWebhookLedger(db), n, nil),
		idempotency: idem,
		identity:    identity,
		payments: NewPaymentService(db, gw, ledger, identity, idem, PaymentServiceConfig{
			CallbackURL:  "https://app.test/paystack/callback",
			KYCThreshold: decimal.NewFromInt(100000),
		}, nil),
		payouts: NewPayoutService(gw, repository.NewPayoutAccountRepository(db), repository.NewUserRepository(db), identity, nil),
	}
}

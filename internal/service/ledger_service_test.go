package service

import (
	"context"
	"strconv"
	"testing"

	"billflow/internal/domain"
	"billflow/internal/models"
	"billflow/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkSuccessSettlesPaymentAndInvoice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := testutil.SeedPayment(t, env.db, "50.00", "NGN", domain.PaymentPending)

	ev, err := env.ledger.MarkSuccess(ctx, env.db, p, testutil.Paid("50.00", "NGN").Result, SourceWebhook)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, "success", ev.Status)
	assert.Equal(t, "pending", ev.Previous)
	assert.Equal(t, "webhook", ev.Source)

	got := testutil.ReloadPayment(t, env.db, p.ID)
	assert.Equal(t, domain.PaymentSuccess, got.Status)
	assert.True(t, got.Verified)
	assert.NotNil(t, got.PaidAt)
	assert.Equal(t, "card", got.Channel)

	var inv models.Invoice
	require.NoError(t, env.db.First(&inv, p.InvoiceID).Error)
	assert.Equal(t, domain.InvoiceStatusPaid, inv.Status)

	var audits int64
	env.db.Model(&models.AuditLog{}).Where("action = ? AND resource_id = ?", "payment.status_changed", strconv.FormatUint(uint64(p.ID), 10)).Count(&audits)
	assert.Equal(t, int64(1), audits)
}

func TestMarkSuccessRequiresExactSettlement(t *testing.T) {
	tests := []struct {
		name string
		step testutil.VerifyStep
		want error
	}{
		{"not verified", testutil.NotPaid("50.00", "NGN", "abandoned"), ErrNotVerified},
		{"amount", testutil.Paid("49.99", "NGN"), ErrAmountMismatch},
		{"currency", testutil.Paid("50.00", "GHS"), ErrCurrencyMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			p := testutil.SeedPayment(t, env.db, "50.00", "NGN", domain.PaymentPending)

			_, err := env.ledger.MarkSuccess(context.Background(), env.db, p, tt.step.Result, SourceRecovery)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, domain.PaymentPending, testutil.ReloadPayment(t, env.db, p.ID).Status)
		})
	}
}

func TestFailedToSuccessOnlyThroughRecovery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := testutil.SeedPayment(t, env.db, "20.00", "NGN", domain.PaymentFailed)
	paid := testutil.Paid("20.00", "NGN").Result

	for _, src := range []Source{SourceWebhook, SourceReconciliation, SourceAdmin} {
		_, err := env.ledger.MarkSuccess(ctx, env.db, p, paid, src)
		assert.ErrorIs(t, err, ErrInvalidTransition, string(src))
	}

	_, err := env.ledger.MarkSuccess(ctx, env.db, p, paid, SourceRecovery)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentSuccess, testutil.ReloadPayment(t, env.db, p.ID).Status)
}

func TestTransitionDetectsConcurrentWriter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := testutil.SeedPayment(t, env.db, "20.00", "NGN", domain.PaymentPending)
	stale := testutil.ReloadPayment(t, env.db, p.ID)

	_, err := env.ledger.MarkFailed(ctx, env.db, p, "declined", "failed", SourceWebhook)
	require.NoError(t, err)

	err = env.ledger.MarkCancelled(ctx, env.db, stale, "user abandoned", SourceAdmin)
	assert.ErrorIs(t, err, ErrConcurrentTransition)
	assert.Equal(t, domain.PaymentFailed, testutil.ReloadPayment(t, env.db, p.ID).Status)
}

func TestRefundOnlyFromSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := testutil.SeedPayment(t, env.db, "20.00", "NGN", domain.PaymentPending)

	_, err := env.ledger.MarkRefunded(ctx, env.db, p, SourceWebhook)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = env.ledger.MarkSuccess(ctx, env.db, p, testutil.Paid("20.00", "NGN").Result, SourceWebhook)
	require.NoError(t, err)
	ev, err := env.ledger.MarkRefunded(ctx, env.db, p, SourceWebhook)
	require.NoError(t, err)
	assert.Equal(t, "refunded", ev.Status)
	assert.Equal(t, "success", ev.Previous)
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"billflow/internal/domain"
	"billflow/internal/models"
	"billflow/internal/testutil"
	"billflow/pkg/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhookBody(t *testing.T, event string, id interface{}, reference string) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"event": event,
		"data":  map[string]interface{}{"id": id, "reference": reference, "status": "success"},
	})
	require.NoError(t, err)
	return body, payment.Sign(testutil.WebhookSecret, body)
}

func TestWebhookChargeSuccessSettlesPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := testutil.SeedPayment(t, env.db, "50.00", "NGN", domain.PaymentPending)
	env.gw.OnVerify(p.Reference, testutil.Paid("50.00", "NGN"))
	body, sig := webhookBody(t, EventChargeSuccess, 4099260516, p.Reference)

	res, err := env.webhooks.HandlePaystack(ctx, body, sig, "52.31.139.75")
	require.NoError(t, err)
	assert.Equal(t, WebhookApplied, res.Outcome)
	assert.Equal(t, SettleSucceeded, res.Settle)
	assert.Equal(t, "charge.success:4099260516", res.EventID)

	got := testutil.ReloadPayment(t, env.db, p.ID)
	assert.Equal(t, domain.PaymentSuccess, got.Status)
	assert.Equal(t, domain.ReconciliationVerified, testutil.Reconciliation(t, env.db, p.ID).Status)

	var marker models.ProcessedWebhook
	require.NoError(t, env.db.Where("event_id = ?", res.EventID).First(&marker).Error)
	assert.Equal(t, "52.31.139.75", marker.IPAddress)
	assert.Len(t, marker.PayloadHash, 64)

	res, err = env.webhooks.HandlePaystack(ctx, body, sig, "52.31.139.75")
	require.NoError(t, err)
	assert.Equal(t, WebhookDuplicate, res.Outcome)
	assert.Equal(t, 1, env.gw.VerifyCalls(p.Reference))
	assert.Len(t, env.notifier.Events(), 1)
}

func TestWebhookRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	body, sig := webhookBody(t, EventChargeSuccess, 1, "ref_missing")

	_, err := env.webhooks.HandlePaystack(context.Background(), body, "deadbeef", "")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = env.webhooks.HandlePaystack(context.Background(), body, sig, "")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
	var n int64
	env.db.Model(&models.ProcessedWebhook{}).Count(&n)
	assert.Zero(t, n, "unknown payments leave no marker")

	garbage := []byte(`{"event":`)
	_, err = env.webhooks.HandlePaystack(context.Background(), garbage, payment.Sign(testutil.WebhookSecret, garbage), "")
	assert.ErrorIs(t, err, ErrMalformedEvent)

	noRef, noRefSig := webhookBody(t, EventChargeSuccess, 2, "")
	_, err = env.webhooks.HandlePaystack(context.Background(), noRef, noRefSig, "")
	assert.ErrorIs(t, err, ErrMalformedEvent)

	env.gw.Unconfigured = true
	_, err = env.webhooks.HandlePaystack(context.Background(), body, sig, "")
	assert.ErrorIs(t, err, payment.ErrNotConfigured)
}

func TestWebhookIgnoresUnknownEvents(t *testing.T) {
	env := newTestEnv(t)
	body, sig := webhookBody(t, "transfer.success", "TRF_1", "ref_x")

	res, err := env.webhooks.HandlePaystack(context.Background(), body, sig, "")
	require.NoError(t, err)
	assert.Equal(t, WebhookIgnored, res.Outcome)
}

func TestWebhookAmountMismatchFailsAndSchedulesRecovery(t *testing.T) {
	env := newTestEnv(t)
	p := testutil.SeedPayment(t, env.db, "100.00", "NGN", domain.PaymentPending)
	env.gw.OnVerify(p.Reference, testutil.PaidMinor(9999, "NGN"))
	body, sig := webhookBody(t, EventChargeSuccess, 77, p.Reference)

	res, err := env.webhooks.HandlePaystack(context.Background(), body, sig, "")
	require.NoError(t, err)
	assert.Equal(t, SettleMismatch, res.Settle)

	got := testutil.ReloadPayment(t, env.db, p.ID)
	assert.Equal(t, domain.PaymentFailed, got.Status)
	rec := testutil.Reconciliation(t, env.db, p.ID)
	assert.Equal(t, domain.ReconciliationMismatch, rec.Status)
	assert.False(t, rec.AmountMatch)
	assert.Equal(t, "Amount mismatch", rec.LastError)
	assert.Len(t, testutil.Recoveries(t, env.db, p.ID), 1)
}

func TestWebhookGatewayDownDefersToRecovery(t *testing.T) {
	env := newTestEnv(t)
	p := testutil.SeedPayment(t, env.db, "60.00", "NGN", domain.PaymentPending)
	env.gw.OnVerify(p.Reference, testutil.Timeout())
	body, sig := webhookBody(t, EventChargeSuccess, 78, p.Reference)

	res, err := env.webhooks.HandlePaystack(context.Background(), body, sig, "")
	require.NoError(t, err)
	assert.Equal(t, SettleDeferred, res.Settle)
	assert.Equal(t, domain.PaymentProcessing, testutil.ReloadPayment(t, env.db, p.ID).Status)
	assert.Equal(t, domain.ReconciliationFailed, testutil.Reconciliation(t, env.db, p.ID).Status)
	assert.Len(t, testutil.Recoveries(t, env.db, p.ID), 1)
}

func TestWebhookNotVerifiedFailsPayment(t *testing.T) {
	env := newTestEnv(t)
	p := testutil.SeedPayment(t, env.db, "60.00", "NGN", domain.PaymentPending)
	env.gw.OnVerify(p.Reference, testutil.NotPaid("60.00", "NGN", "failed"))
	body, sig := webhookBody(t, EventChargeSuccess, 79, p.Reference)

	res, err := env.webhooks.HandlePaystack(context.Background(), body, sig, "")
	require.NoError(t, err)
	assert.Equal(t, SettleFailed, res.Settle)
	assert.Equal(t, domain.PaymentFailed, testutil.ReloadPayment(t, env.db, p.ID).Status)
	assert.Empty(t, testutil.Recoveries(t, env.db, p.ID))
	require.Len(t, env.notifier.Events(), 1)
	assert.Equal(t, "failed", env.notifier.Events()[0].Status)
}

func TestWebhookRefund(t *testing.T) {
	env := newTestEnv(t)
	p := testutil.SeedPayment(t, env.db, "60.00", "NGN", domain.PaymentSuccess)
	body, sig := webhookBody(t, EventRefundProcessed, 80, p.Reference)

	res, err := env.webhooks.HandlePaystack(context.Background(), body, sig, "")
	require.NoError(t, err)
	assert.Equal(t, WebhookApplied, res.Outcome)
	assert.Equal(t, domain.PaymentRefunded, testutil.ReloadPayment(t, env.db, p.ID).Status)
}

func TestConcurrentWebhookDeliveriesApplyOnce(t *testing.T) {
	env := newTestEnv(t)
	p := testutil.SeedPayment(t, env.db, "50.00", "NGN", domain.PaymentPending)
	env.gw.OnVerify(p.Reference, testutil.Paid("50.00", "NGN"))
	body, sig := webhookBody(t, EventChargeSuccess, 123456, p.Reference)

	const deliveries = 8
	var wg sync.WaitGroup
	outcomes := make(chan WebhookOutcome, deliveries)
	errs := make(chan error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.webhooks.HandlePaystack(context.Background(), body, sig, fmt.Sprintf("10.0.0.%d", i))
			if err != nil {
				errs <- err
				return
			}
			outcomes <- res.Outcome
		}(i)
	}
	wg.Wait()
	close(outcomes)
	close(errs)

	for err := range errs {
		t.Fatalf("delivery failed: %v", err)
	}
	applied := 0
	for o := range outcomes {
		if o == WebhookApplied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, env.gw.VerifyCalls(p.Reference))
	assert.Len(t, env.notifier.Events(), 1)
	assert.Equal(t, domain.PaymentSuccess, testutil.ReloadPayment(t, env.db, p.ID).Status)
}

func TestRawID(t *testing.T) {
	assert.Equal(t, "42", rawID(json.RawMessage(`42`)))
	assert.Equal(t, "evt_1", rawID(json.RawMessage(`"evt_1"`)))
	assert.Empty(t, rawID(json.RawMessage(`null`)))
	assert.Empty(t, rawID(nil))
}

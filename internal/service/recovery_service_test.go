package service

import (
	"context"
	"testing"
	"time"

	"billflow/internal/domain"
	"billflow/internal/models"
	"billflow/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func trigger(t *testing.T, env *testEnv, p *models.Payment, reason string) *models.PaymentRecovery {
	t.Helper()
	var rec *models.PaymentRecovery
	require.NoError(t, env.db.Transaction(func(tx *gorm.DB) error {
		var err error
		rec, err = env.recovery.TriggerRecovery(context.Background(), tx, p, reason)
		return err
	}))
	return rec
}

func TestTriggerRecoveryCapsAttempts(t *testing.T) {
	env := newTestEnv(t)
	p := testutil.SeedPayment(t, env.db, "10.00", "NGN", domain.PaymentFailed)

	for i := 1; i <= domain.MaxRecoveryAttempts; i++ {
		rec := trigger(t, env, p, "state mismatch detected")
		require.NotNil(t, rec)
		assert.Equal(t, i, rec.AttemptNumber)
		assert.Equal(t, domain.RecoveryStrategyWebhookRetry, rec.Strategy)
	}
	assert.Nil(t, trigger(t, env, p, "state mismatch detected"))
	assert.Len(t, testutil.Recoveries(t, env.db, p.ID), domain.MaxRecoveryAttempts)
}

func TestRecoveryMovesFailedPaymentToSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := testutil.SeedPayment(t, env.db, "45.00", "NGN", domain.PaymentFailed)
	env.gw.OnVerify(p.Reference, testutil.Paid("45.00", "NGN"))
	trigger(t, env, p, "state mismatch detected")

	env.clock.Advance(domain.RecoveryDelay)
	stats, err := env.recovery.ProcessPendingRecoveries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Successful)
	assert.Equal(t, domain.PaymentSuccess, testutil.ReloadPayment(t, env.db, p.ID).Status)

	// a second sweep finds nothing left to do
	env.clock.Advance(time.Hour)
	stats, err = env.recovery.ProcessPendingRecoveries(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Attempted)
	assert.Equal(t, 1, env.gw.VerifyCalls(p.Reference))
}

func TestRecoveryBacksOffWhenNotVerified(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := testutil.SeedPayment(t, env.db, "45.00", "NGN", domain.PaymentPending)
	env.gw.OnVerify(p.Reference, testutil.NotPaid("45.00", "NGN", "ongoing"))
	trigger(t, env, p, "reconciliation error: timeout")

	env.clock.Advance(domain.RecoveryDelay)
	stats, err := env.recovery.ProcessPendingRecoveries(ctx)
	require.NoError(t, err)
	assert.Equal(t, RecoveryStats{Attempted: 1, Failed: 1}, stats)

	rec := testutil.Recoveries(t, env.db, p.ID)[0]
	assert.False(t, rec.IsSuccessful)
	assert.Equal(t, domain.RecoveryErrNotVerified, rec.ErrorCode)
	assert.WithinDuration(t, env.clock.Now().Add(env.recovery.Backoff(1)), *rec.NextRetryAt, time.Second)
	assert.Equal(t, domain.PaymentPending, testutil.ReloadPayment(t, env.db, p.ID).Status)
}

func TestRecoveryRefusesAmountMismatch(t *testing.T) {
	env := newTestEnv(t)
	p := testutil.SeedPayment(t, env.db, "100.00", "NGN", domain.PaymentPending)
	env.gw.OnVerify(p.Reference, testutil.PaidMinor(9999, "NGN"))
	trigger(t, env, p, "state mismatch detected")

	env.clock.Advance(domain.RecoveryDelay)
	stats, err := env.recovery.ProcessPendingRecoveries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	rec := testutil.Recoveries(t, env.db, p.ID)[0]
	assert.Equal(t, domain.RecoveryErrAmountMismatch, rec.ErrorCode)
	assert.Equal(t, domain.PaymentPending, testutil.ReloadPayment(t, env.db, p.ID).Status)
	assert.Empty(t, env.notifier.Events())
}

func TestRecoveryGatewayErrorKeepsRowOpen(t *testing.T) {
	env := newTestEnv(t)
	p := testutil.SeedPayment(t, env.db, "12.00", "NGN", domain.PaymentProcessing)
	env.gw.OnVerify(p.Reference, testutil.Timeout(), testutil.Paid("12.00", "NGN"))
	trigger(t, env, p, "reconciliation error: timeout")

	env.clock.Advance(domain.RecoveryDelay)
	stats, err := env.recovery.ProcessPendingRecoveries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, domain.RecoveryErrRecovery, testutil.Recoveries(t, env.db, p.ID)[0].ErrorCode)

	env.clock.Advance(env.recovery.Backoff(1))
	stats, err = env.recovery.ProcessPendingRecoveries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Successful)
	assert.Equal(t, domain.PaymentSuccess, testutil.ReloadPayment(t, env.db, p.ID).Status)
}

func TestRecoveryClosesRowForPaymentSettledElsewhere(t *testing.T) {
	env := newTestEnv(t)
	p := testutil.SeedPayment(t, env.db, "30.00", "NGN", domain.PaymentSuccess)
	env.gw.OnVerify(p.Reference, testutil.Paid("30.00", "NGN"))
	trigger(t, env, p, "state mismatch detected")

	env.clock.Advance(domain.RecoveryDelay)
	stats, err := env.recovery.ProcessPendingRecoveries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RecoveryStats{Attempted: 1, Successful: 1}, stats)
	assert.Equal(t, 1, env.gw.VerifyCalls(p.Reference))

	rec := testutil.Recoveries(t, env.db, p.ID)[0]
	assert.True(t, rec.IsSuccessful)
	require.NotNil(t, rec.CompletedAt)
	assert.Empty(t, env.notifier.Events())
}

func TestRecoveryBackoffGrowsPerSweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := testutil.SeedPayment(t, env.db, "12.00", "NGN", domain.PaymentProcessing)
	env.gw.OnVerify(p.Reference, testutil.NotPaid("12.00", "NGN", "abandoned"))
	trigger(t, env, p, "reconciliation error: timeout")
	env.clock.Advance(domain.RecoveryDelay)

	var gaps []time.Duration
	for i := 0; i < 8; i++ {
		stats, err := env.recovery.ProcessPendingRecoveries(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, stats.Attempted, "sweep %d", i+1)

		rec := testutil.Recoveries(t, env.db, p.ID)[0]
		require.NotNil(t, rec.NextRetryAt)
		assert.Equal(t, i+1, rec.SweepCount)
		gap := rec.NextRetryAt.Sub(env.clock.Now())
		gaps = append(gaps, gap)

		// not due again before the gap has passed
		env.clock.Advance(gap - time.Second)
		stats, err = env.recovery.ProcessPendingRecoveries(ctx)
		require.NoError(t, err)
		require.Zero(t, stats.Attempted)
		env.clock.Advance(time.Second)
	}

	assert.Equal(t, []time.Duration{
		time.Minute, 2 * time.Minute, 4 * time.Minute, 8 * time.Minute,
		16 * time.Minute, 32 * time.Minute, time.Hour, time.Hour,
	}, gaps)
	assert.Equal(t, 8, env.gw.VerifyCalls(p.Reference))
	assert.Equal(t, domain.PaymentProcessing, testutil.ReloadPayment(t, env.db, p.ID).Status)
}

func TestBackoff(t *testing.T) {
	s := NewRecoveryService(nil, nil, nil, nil, nil).WithBackoffBase(10 * time.Second)
	assert.Equal(t, 10*time.Second, s.Backoff(0))
	assert.Equal(t, 20*time.Second, s.Backoff(1))
	assert.Equal(t, 80*time.Second, s.Backoff(3))
	assert.Equal(t, domain.MaxRecoveryBackoff, s.Backoff(9))
	assert.Equal(t, domain.MaxRecoveryBackoff, s.Backoff(50))
}

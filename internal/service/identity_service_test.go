package service

import (
	"context"
	"testing"
	"time"

	"billflow/internal/domain"
	"billflow/internal/testutil"
	"billflow/pkg/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestVerifyIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, env.db)

	ok, msg, err := env.identity.VerifyIdentity(ctx, u.ID, "bvn", " 22212345678 ")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Identity verified successfully", msg)

	v, err := env.identity.Status(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IdentityVerified, v.Status)
	assert.Equal(t, "*******5678", v.DocumentNumber)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(v.DocumentHash), []byte("22212345678")))
	assert.WithinDuration(t, env.clock.Now().Add(domain.IdentityValidity), *v.ExpiresAt, time.Second)

	can, _, err := env.identity.CanProcessPayout(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, can)

	env.clock.Advance(domain.IdentityValidity + time.Hour)
	can, msg, err = env.identity.CanProcessPayout(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, can)
	assert.Equal(t, "Identity verification required before payout", msg)
}

func TestVerifyIdentityGatewayOutcomes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status string
	}{
		{"rejected", &payment.GatewayError{Op: "resolve_bvn", Kind: payment.KindRejected, StatusCode: 400, Message: "Invalid BVN"}, domain.IdentityRejected},
		{"unreachable", &payment.GatewayError{Op: "resolve_bvn", Kind: payment.KindTransport, Message: "connection reset"}, domain.IdentityPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.gw.IdentityErr = tt.err
			u := testutil.SeedUser(t, env.db)

			ok, _, err := env.identity.VerifyIdentity(context.Background(), u.ID, "bvn", "22212345678")
			require.NoError(t, err)
			assert.False(t, ok)
			v, err := env.identity.Status(context.Background(), u.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, v.Status)
			assert.Nil(t, v.VerifiedAt)
		})
	}
}

func TestCanProcessPayoutWithoutRecord(t *testing.T) {
	env := newTestEnv(t)
	ok, msg, err := env.identity.CanProcessPayout(context.Background(), 42)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "Please complete identity verification first", msg)
}

func TestAttachDocumentWithoutStorage(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.identity.AttachDocument(context.Background(), 1, nil)
	assert.ErrorIs(t, err, ErrUploadUnavailable)
}

func TestMaskDocumentNumber(t *testing.T) {
	assert.Equal(t, "****", MaskDocumentNumber("1234"))
	assert.Equal(t, "**3456", MaskDocumentNumber("123456"))
}

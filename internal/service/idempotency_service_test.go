package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"billflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	payload := map[string]interface{}{"invoice_id": 1, "amount": "50.00", "currency": "NGN"}
	calls := 0
	compute := func(ctx context.Context) (IdempotentResponse, error) {
		calls++
		return IdempotentResponse{Status: http.StatusOK, Body: json.RawMessage(`{"reference":"inv_1_1_abcd1234"}`)}, nil
	}

	first, replayed, err := env.idempotency.GetOrCreate(ctx, 1, "key-1", payload, compute)
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := env.idempotency.GetOrCreate(ctx, 1, "key-1", payload, compute)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.Status, second.Status)
	assert.JSONEq(t, string(first.Body), string(second.Body))
	assert.Equal(t, 1, calls)

	// keys are scoped per user
	_, replayed, err = env.idempotency.GetOrCreate(ctx, 2, "key-1", payload, compute)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 2, calls)
}

func TestIdempotencyKeyReuseWithDifferentPayload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ok := func(ctx context.Context) (IdempotentResponse, error) {
		return IdempotentResponse{Status: http.StatusOK, Body: json.RawMessage(`{}`)}, nil
	}
	_, _, err := env.idempotency.GetOrCreate(ctx, 1, "key-1", map[string]string{"amount": "50.00"}, ok)
	require.NoError(t, err)

	resp, replayed, err := env.idempotency.GetOrCreate(ctx, 1, "key-1", map[string]string{"amount": "60.00"}, func(ctx context.Context) (IdempotentResponse, error) {
		t.Fatal("compute must not run on a mismatched payload")
		return IdempotentResponse{}, nil
	})
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, http.StatusConflict, resp.Status)
	assert.Contains(t, string(resp.Body), CodeIdempotencyMismatch)
}

func TestIdempotencyInFlightAndRelease(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	payload := map[string]string{"amount": "1.00"}

	_, _, err := env.idempotency.GetOrCreate(ctx, 1, "key-1", payload, func(ctx context.Context) (IdempotentResponse, error) {
		resp, replayed, err := env.idempotency.GetOrCreate(ctx, 1, "key-1", payload, nil)
		require.NoError(t, err)
		assert.True(t, replayed)
		assert.Equal(t, http.StatusConflict, resp.Status)
		assert.Contains(t, string(resp.Body), CodeIdempotencyInProgress)
		return IdempotentResponse{}, errors.New("gateway unavailable")
	})
	require.Error(t, err)

	// a failed compute releases the key
	_, replayed, err := env.idempotency.GetOrCreate(ctx, 1, "key-1", payload, func(ctx context.Context) (IdempotentResponse, error) {
		return IdempotentResponse{Status: http.StatusOK, Body: json.RawMessage(`{}`)}, nil
	})
	require.NoError(t, err)
	assert.False(t, replayed)
}

func TestIdempotencyExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	payload := map[string]string{"amount": "1.00"}
	calls := 0
	compute := func(ctx context.Context) (IdempotentResponse, error) {
		calls++
		return IdempotentResponse{Status: http.StatusOK, Body: json.RawMessage(`{}`)}, nil
	}
	_, _, err := env.idempotency.GetOrCreate(ctx, 1, "a", payload, compute)
	require.NoError(t, err)
	_, _, err = env.idempotency.GetOrCreate(ctx, 1, "b", payload, compute)
	require.NoError(t, err)

	env.clock.Advance(25 * time.Hour)
	_, replayed, err := env.idempotency.GetOrCreate(ctx, 1, "a", payload, compute)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 3, calls)

	n, err := env.idempotency.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	var left int64
	env.db.Model(&models.IdempotencyKey{}).Count(&left)
	assert.Equal(t, int64(1), left)
}

func TestHashPayloadIsOrderIndependent(t *testing.T) {
	a, err := HashPayload(map[string]interface{}{"amount": "1.00", "currency": "NGN"})
	require.NoError(t, err)
	b, err := HashPayload(map[string]interface{}{"currency": "NGN", "amount": "1.00"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

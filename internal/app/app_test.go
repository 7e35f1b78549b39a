package app

import (
	"path/filepath"
	"testing"
	"time"

	"billflow/config"
	"billflow/pkg/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "app.db"), MaxIdleConns: 1, MaxOpenConns: 1},
		Paystack: config.PaystackConfig{Mode: "paystack", BaseURL: "http://127.0.0.1:0", Timeout: time.Second},
		Reconciliation: config.ReconciliationConfig{
			BackoffBase:  30 * time.Second,
			KYCThreshold: "100000",
		},
	}
}

func TestNewGateway(t *testing.T) {
	g, err := NewGateway(&config.PaystackConfig{Mode: "stub"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &payment.StubGateway{}, g)

	g, err = NewGateway(&config.PaystackConfig{Mode: "paystack"}, nil)
	require.NoError(t, err)
	assert.False(t, g.Configured())

	_, err = NewGateway(&config.PaystackConfig{Mode: "mpesa"}, nil)
	assert.Error(t, err)
}

func TestOpenWithoutIntegrations(t *testing.T) {
	cfg := testConfig(t)
	a, closeFn, err := Open(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	defer closeFn()

	assert.NotNil(t, a.Payments)
	assert.NotNil(t, a.Reconciliation)
	assert.False(t, a.Gateway.Configured())
}

func TestNewRejectsBadThreshold(t *testing.T) {
	cfg := testConfig(t)
	cfg.Reconciliation.KYCThreshold = "lots"
	_, _, err := Open(cfg, zap.NewNop(), nil)
	assert.Error(t, err)
}

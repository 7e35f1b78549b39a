package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *PaystackGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewPaystackGateway(PaystackConfig{BaseURL: srv.URL, SecretKey: "sk_test_123"}, zap.NewNop())
}

func TestVerifyTransaction(t *testing.T) {
	var gotAuth, gotPath string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_, _ = io.WriteString(w, `{"status":true,"message":"Verification successful","data":{
			"status":"success","reference":"inv_1_2_abcd1234","amount":500000,"currency":"NGN",
			"paid_at":"2024-08-22T09:15:02.000Z","channel":"card","customer":{"email":"a@b.co"},
			"metadata":{"invoice_id":1}}}`)
	})

	res, err := g.VerifyTransaction(context.Background(), "inv_1_2_abcd1234")
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk_test_123", gotAuth)
	assert.Equal(t, "/transaction/verify/inv_1_2_abcd1234", gotPath)
	assert.True(t, res.Verified)
	assert.Equal(t, "success", res.GatewayStatus)
	assert.Equal(t, int64(500000), res.AmountMinor)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("5000.00")))
	assert.Equal(t, "NGN", res.Currency)
	assert.Equal(t, "card", res.Channel)
	assert.Equal(t, "a@b.co", res.CustomerEmail)
	require.NotNil(t, res.PaidAt)
	assert.Equal(t, 2024, res.PaidAt.Year())
	assert.JSONEq(t, `{"invoice_id":1}`, string(res.Metadata))
}

func TestVerifyTransactionNotSuccessful(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":true,"message":"ok","data":{"status":"abandoned","reference":"r1","amount":100,"currency":"NGN","paid_at":null}}`)
	})

	res, err := g.VerifyTransaction(context.Background(), "r1")
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.Equal(t, "abandoned", res.GatewayStatus)
	assert.Nil(t, res.PaidAt)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("1")))
}

func TestVerifyTransactionMissingFields(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"no status", `{"amount":100,"currency":"NGN"}`},
		{"no amount", `{"status":"success","currency":"NGN"}`},
		{"no currency", `{"status":"success","amount":100}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"status":true,"message":"ok","data":`+tt.data+`}`)
			})
			_, err := g.VerifyTransaction(context.Background(), "r1")
			var gerr *GatewayError
			require.ErrorAs(t, err, &gerr)
			assert.Equal(t, KindDecode, gerr.Kind)
		})
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		kind      ErrorKind
		transient bool
	}{
		{"not found", http.StatusBadRequest, `{"status":false,"message":"Transaction reference not found"}`, KindRejected, false},
		{"server error", http.StatusBadGateway, `<html>bad gateway</html>`, KindHTTP, true},
		{"rate limited", http.StatusTooManyRequests, `{"status":false,"message":"slow down"}`, KindHTTP, true},
		{"bad key", http.StatusUnauthorized, `{"status":false,"message":"Invalid key"}`, KindHTTP, false},
		{"status false on 200", http.StatusOK, `{"status":false,"message":"nope"}`, KindRejected, false},
		{"garbage on 200", http.StatusOK, `not json`, KindDecode, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := g.VerifyTransaction(context.Background(), "r1")
			var gerr *GatewayError
			require.ErrorAs(t, err, &gerr)
			assert.Equal(t, tt.kind, gerr.Kind)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestTransportTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	g := NewPaystackGateway(PaystackConfig{BaseURL: srv.URL, SecretKey: "sk", RequestTimeout: 20 * time.Millisecond}, nil)

	_, err := g.VerifyTransaction(context.Background(), "r1")
	var gerr *GatewayError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, KindTransport, gerr.Kind)
	assert.Equal(t, "request timed out", gerr.Message)
	assert.True(t, IsTransient(err))
}

func TestNotConfigured(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	t.Cleanup(srv.Close)
	g := NewPaystackGateway(PaystackConfig{BaseURL: srv.URL}, nil)

	assert.False(t, g.Configured())
	_, err := g.VerifyTransaction(context.Background(), "r1")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = g.InitializeTransaction(context.Background(), InitializeRequest{Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = g.ResolveIdentity(context.Background(), "12345678901")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, g.VerifyWebhookSignature([]byte("{}"), Sign("", []byte("{}"))))
	assert.False(t, called)
}

func TestInitializeTransaction(t *testing.T) {
	var got map[string]interface{}
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"status":true,"message":"Authorization URL created","data":{
			"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"inv_1_2_x"}}`)
	})

	res, err := g.InitializeTransaction(context.Background(), InitializeRequest{
		Email:          "payer@example.com",
		Amount:         decimal.RequireFromString("5000.50"),
		Currency:       "ngn",
		Reference:      "inv_1_2_x",
		SubaccountCode: "ACCT_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc", res.AuthorizationURL)
	assert.Equal(t, float64(500050), got["amount"])
	assert.Equal(t, "NGN", got["currency"])
	assert.Equal(t, "ACCT_1", got["subaccount"])
	assert.Equal(t, "subaccount", got["bearer"])
	assert.NotContains(t, got, "callback_url")
}

func TestInitializeRejectsSubMinorAmount(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := g.InitializeTransaction(context.Background(), InitializeRequest{Amount: decimal.RequireFromString("1.005")})
	assert.True(t, IsRejected(err))
}

func TestResolveIdentity(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bank/resolve", r.URL.Path)
		assert.Equal(t, "22212345678", r.URL.Query().Get("account_number"))
		assert.Empty(t, r.URL.Query().Get("bank_code"))
		_, _ = io.WriteString(w, `{"status":true,"message":"resolved","data":{"account_name":"ADA OBI","account_number":"22212345678"}}`)
	})
	res, err := g.ResolveIdentity(context.Background(), "22212345678")
	require.NoError(t, err)
	assert.Equal(t, "ADA OBI", res.Name)
}

func TestSubaccountRoundTrip(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), `"percentage_charge":2.5`)
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"status":true,"message":"Subaccount created","data":{"subaccount_code":"ACCT_x","business_name":"Ada Ltd","percentage_charge":2.5,"active":true}}`)
		case http.MethodPut:
			assert.Equal(t, "/subaccount/ACCT_x", r.URL.Path)
			_, _ = io.WriteString(w, `{"status":true,"message":"Subaccount updated","data":{"subaccount_code":"ACCT_x","business_name":"Ada Plc","percentage_charge":3,"active":false}}`)
		}
	})

	sub, err := g.CreateSubaccount(context.Background(), SubaccountRequest{
		BusinessName: "Ada Ltd", BankCode: "058", AccountNumber: "0123456789",
		PercentageCharge: decimal.RequireFromString("2.5"),
	})
	require.NoError(t, err)
	assert.Equal(t, "ACCT_x", sub.Code)
	assert.True(t, sub.PercentageCharge.Equal(decimal.RequireFromString("2.5")))

	inactive := false
	sub, err = g.UpdateSubaccount(context.Background(), "ACCT_x", SubaccountUpdate{BusinessName: "Ada Plc", Active: &inactive})
	require.NoError(t, err)
	assert.Equal(t, "Ada Plc", sub.BusinessName)
	assert.False(t, sub.Active)
}

func TestCreateSubaccountWrongStatus(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":true,"message":"ok","data":{}}`)
	})
	_, err := g.CreateSubaccount(context.Background(), SubaccountRequest{PercentageCharge: decimal.Zero})
	var gerr *GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, KindDecode, gerr.Kind)
}

func TestVerifyWebhookSignature(t *testing.T) {
	g := NewPaystackGateway(PaystackConfig{SecretKey: "sk_test_123"}, nil)
	body := []byte(`{"event":"charge.success","data":{"reference":"r1"}}`)
	sig := Sign("sk_test_123", body)

	assert.True(t, g.VerifyWebhookSignature(body, sig))
	assert.False(t, g.VerifyWebhookSignature(body, Sign("other", body)))
	assert.False(t, g.VerifyWebhookSignature(append(body, ' '), sig))
	assert.False(t, g.VerifyWebhookSignature(body, ""))
}

func TestMinorUnits(t *testing.T) {
	m, err := ToMinorUnits(decimal.RequireFromString("100.00"))
	require.NoError(t, err)
	assert.Equal(t, int64(10000), m)
	assert.True(t, FromMinorUnits(999900).Equal(decimal.RequireFromString("9999")))
	_, err = ToMinorUnits(decimal.RequireFromString("0.001"))
	assert.Error(t, err)
}

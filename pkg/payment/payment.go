package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway is the outbound surface of the payment provider. Implementations hold only
// read-only credentials and never panic: every expected failure comes back as an error,
// ErrNotConfigured or a *GatewayError.
type Gateway interface {
	Configured() bool
	InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	VerifyTransaction(ctx context.Context, reference string) (*VerifyResult, error)
	ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*AccountResult, error)
	ResolveIdentity(ctx context.Context, documentNumber string) (*IdentityResult, error)
	ListBanks(ctx context.Context, country string) ([]Bank, error)
	CreateSubaccount(ctx context.Context, req SubaccountRequest) (*Subaccount, error)
	UpdateSubaccount(ctx context.Context, code string, req SubaccountUpdate) (*Subaccount, error)
	VerifyWebhookSignature(body []byte, signature string) bool
}

type InitializeRequest struct {
	Email          string
	Amount         decimal.Decimal // major units
	Currency       string
	Reference      string
	CallbackURL    string
	Metadata       map[string]interface{}
	SubaccountCode string
	Bearer         string // who bears the fee when routed to a subaccount; default "subaccount"
}

type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// VerifyResult is the gateway's view of one transaction. Amount is already converted from
// minor units; AmountMinor keeps the wire value for audit.
type VerifyResult struct {
	Verified      bool
	GatewayStatus string
	Reference     string
	AmountMinor   int64
	Amount        decimal.Decimal
	Currency      string
	PaidAt        *time.Time
	Channel       string
	CustomerEmail string
	Metadata      json.RawMessage
	Raw           json.RawMessage
}

type AccountResult struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankID        int    `json:"bank_id"`
}

type IdentityResult struct {
	Name          string
	AccountNumber string
	Raw           json.RawMessage
}

type Bank struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Code     string `json:"code"`
	Country  string `json:"country"`
	Currency string `json:"currency"`
	Active   bool   `json:"active"`
}

type SubaccountRequest struct {
	BusinessName        string
	BankCode            string
	AccountNumber       string
	PercentageCharge    decimal.Decimal
	PrimaryContactEmail string
	PrimaryContactPhone string
}

// SubaccountUpdate only sends the fields that are set.
type SubaccountUpdate struct {
	BusinessName     string
	BankCode         string
	AccountNumber    string
	PercentageCharge *decimal.Decimal
	Active           *bool
}

type Subaccount struct {
	Code             string
	BusinessName     string
	SettlementBank   string
	AccountNumber    string
	PercentageCharge decimal.Decimal
	Active           bool
}

// ErrNotConfigured is returned without any network call when no secret key is set.
var ErrNotConfigured = errors.New("payment gateway not configured")

type ErrorKind string

const (
	KindTransport ErrorKind = "transport" // dial, timeout, reset
	KindHTTP      ErrorKind = "http"      // 5xx, 429, auth failures
	KindDecode    ErrorKind = "decode"    // malformed or incomplete body
	KindRejected  ErrorKind = "rejected"  // gateway answered and said no
)

// GatewayError is the single error type a Gateway returns for failed calls.
type GatewayError struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("paystack %s: %s (status %d): %s", e.Op, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("paystack %s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsTransient reports whether retrying the same call later may succeed.
func IsTransient(err error) bool {
	var gerr *GatewayError
	if !errors.As(err, &gerr) {
		return false
	}
	switch gerr.Kind {
	case KindTransport, KindDecode:
		return true
	case KindHTTP:
		return gerr.StatusCode >= 500 || gerr.StatusCode == 429
	}
	return false
}

// IsRejected reports whether the gateway gave a definitive negative answer.
func IsRejected(err error) bool {
	var gerr *GatewayError
	return errors.As(err, &gerr) && gerr.Kind == KindRejected
}

// ToMinorUnits converts a major-unit amount to the integer the gateway expects.
// Amounts with sub-minor precision are refused rather than rounded.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	minor := amount.Shift(2)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than 2 decimal places", amount.String())
	}
	return minor.IntPart(), nil
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

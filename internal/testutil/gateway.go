package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"billflow/pkg/payment"

	"github.com/shopspring/decimal"
)

// WebhookSecret signs webhooks accepted by FakeGateway.
const WebhookSecret = "whsec_test"

// VerifyStep is one scripted answer to VerifyTransaction.
type VerifyStep struct {
	Result *payment.VerifyResult
	Err    error
}

// Paid is a successful verification for amount (major units) in currency.
func Paid(amount, currency string) VerifyStep {
	a := decimal.RequireFromString(amount)
	minor, _ := payment.ToMinorUnits(a)
	now := time.Now().UTC()
	return VerifyStep{Result: &payment.VerifyResult{
		Verified:      true,
		GatewayStatus: "success",
		AmountMinor:   minor,
		Amount:        a,
		Currency:      currency,
		PaidAt:        &now,
		Channel:       "card",
	}}
}

// PaidMinor is a successful verification expressed in minor units.
func PaidMinor(minor int64, currency string) VerifyStep {
	step := Paid(payment.FromMinorUnits(minor).StringFixed(2), currency)
	step.Result.AmountMinor = minor
	return step
}

func NotPaid(amount, currency, gatewayStatus string) VerifyStep {
	step := Paid(amount, currency)
	step.Result.Verified = false
	step.Result.GatewayStatus = gatewayStatus
	step.Result.PaidAt = nil
	return step
}

func Timeout() VerifyStep {
	return VerifyStep{Err: &payment.GatewayError{Op: "verify", Kind: payment.KindTransport, Message: "request timed out"}}
}

// FakeGateway is a scriptable payment.Gateway. VerifyTransaction answers from the queue
// scripted for the reference; the last step repeats once the queue is drained.
type FakeGateway struct {
	mu sync.Mutex

	Unconfigured bool
	verify       map[string][]VerifyStep
	verifyCalls  map[string]int

	Initialized []payment.InitializeRequest
	InitErr     error
	IdentityErr error
	AccountErr  error
	Subaccounts []payment.SubaccountRequest
	Updates     map[string]payment.SubaccountUpdate
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		verify:      make(map[string][]VerifyStep),
		verifyCalls: make(map[string]int),
		Updates:     make(map[string]payment.SubaccountUpdate),
	}
}

func (f *FakeGateway) OnVerify(reference string, steps ...VerifyStep) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verify[reference] = steps
}

func (f *FakeGateway) VerifyCalls(reference string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyCalls[reference]
}

func (f *FakeGateway) Configured() bool { return !f.Unconfigured }

func (f *FakeGateway) InitializeTransaction(ctx context.Context, req payment.InitializeRequest) (*payment.InitializeResult, error) {
	if f.Unconfigured {
		return nil, payment.ErrNotConfigured
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InitErr != nil {
		return nil, f.InitErr
	}
	f.Initialized = append(f.Initialized, req)
	return &payment.InitializeResult{
		AuthorizationURL: "https://checkout.test/" + req.Reference,
		AccessCode:       fmt.Sprintf("ac_%d", len(f.Initialized)),
		Reference:        req.Reference,
	}, nil
}

func (f *FakeGateway) VerifyTransaction(ctx context.Context, reference string) (*payment.VerifyResult, error) {
	if f.Unconfigured {
		return nil, payment.ErrNotConfigured
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls[reference]++
	steps := f.verify[reference]
	if len(steps) == 0 {
		return nil, &payment.GatewayError{Op: "verify", Kind: payment.KindRejected, StatusCode: 404, Message: "Transaction reference not found"}
	}
	step := steps[0]
	if len(steps) > 1 {
		f.verify[reference] = steps[1:]
	}
	if step.Err != nil {
		return nil, step.Err
	}
	res := *step.Result
	res.Reference = reference
	return &res, nil
}

func (f *FakeGateway) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*payment.AccountResult, error) {
	if f.AccountErr != nil {
		return nil, f.AccountErr
	}
	return &payment.AccountResult{AccountNumber: accountNumber, AccountName: "ADA OBI"}, nil
}

func (f *FakeGateway) ResolveIdentity(ctx context.Context, documentNumber string) (*payment.IdentityResult, error) {
	if f.Unconfigured {
		return nil, payment.ErrNotConfigured
	}
	if f.IdentityErr != nil {
		return nil, f.IdentityErr
	}
	return &payment.IdentityResult{Name: "ADA OBI", AccountNumber: documentNumber}, nil
}

func (f *FakeGateway) ListBanks(ctx context.Context, country string) ([]payment.Bank, error) {
	return []payment.Bank{{ID: 1, Name: "Test Bank", Code: "058", Country: country, Currency: "NGN", Active: true}}, nil
}

func (f *FakeGateway) CreateSubaccount(ctx context.Context, req payment.SubaccountRequest) (*payment.Subaccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Subaccounts = append(f.Subaccounts, req)
	return &payment.Subaccount{
		Code:             fmt.Sprintf("ACCT_%d", len(f.Subaccounts)),
		BusinessName:     req.BusinessName,
		AccountNumber:    req.AccountNumber,
		PercentageCharge: req.PercentageCharge,
		Active:           true,
	}, nil
}

func (f *FakeGateway) UpdateSubaccount(ctx context.Context, code string, req payment.SubaccountUpdate) (*payment.Subaccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Updates[code] = req
	return &payment.Subaccount{Code: code, BusinessName: req.BusinessName, AccountNumber: req.AccountNumber, Active: true}, nil
}

func (f *FakeGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return signature != "" && signature == payment.Sign(WebhookSecret, body)
}

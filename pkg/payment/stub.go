package payment

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// StubSecret keys webhook signatures accepted by StubGateway.
const StubSecret = "stub_secret"

// StubGateway is an in-memory gateway for local development. Every initialized transaction
// verifies as paid with the amount it was initialized with.
type StubGateway struct {
	mu  sync.Mutex
	txs map[string]InitializeRequest
}

func NewStubGateway() *StubGateway {
	return &StubGateway{txs: make(map[string]InitializeRequest)}
}

func (s *StubGateway) Configured() bool { return true }

func (s *StubGateway) InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	if _, err := ToMinorUnits(req.Amount); err != nil {
		return nil, &GatewayError{Op: "initialize", Kind: KindRejected, Message: err.Error()}
	}
	s.mu.Lock()
	s.txs[req.Reference] = req
	s.mu.Unlock()
	return &InitializeResult{
		AuthorizationURL: "https://checkout.stub.local/" + req.Reference,
		AccessCode:       "stub_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (s *StubGateway) VerifyTransaction(ctx context.Context, reference string) (*VerifyResult, error) {
	s.mu.Lock()
	req, ok := s.txs[reference]
	s.mu.Unlock()
	if !ok {
		return nil, &GatewayError{Op: "verify", Kind: KindRejected, StatusCode: 400, Message: "Transaction reference not found"}
	}
	minor, _ := ToMinorUnits(req.Amount)
	now := time.Now().UTC()
	return &VerifyResult{
		Verified:      true,
		GatewayStatus: "success",
		Reference:     reference,
		AmountMinor:   minor,
		Amount:        FromMinorUnits(minor),
		Currency:      strings.ToUpper(req.Currency),
		PaidAt:        &now,
		Channel:       "card",
		CustomerEmail: req.Email,
	}, nil
}

func (s *StubGateway) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*AccountResult, error) {
	return &AccountResult{AccountNumber: accountNumber, AccountName: "STUB ACCOUNT HOLDER"}, nil
}

// ResolveIdentity accepts any 11-digit number, the BVN length.
func (s *StubGateway) ResolveIdentity(ctx context.Context, documentNumber string) (*IdentityResult, error) {
	if len(documentNumber) != 11 {
		return nil, &GatewayError{Op: "resolve_identity", Kind: KindRejected, StatusCode: 422, Message: "Invalid BVN"}
	}
	return &IdentityResult{Name: "STUB ACCOUNT HOLDER", AccountNumber: documentNumber}, nil
}

func (s *StubGateway) ListBanks(ctx context.Context, country string) ([]Bank, error) {
	return []Bank{
		{ID: 1, Name: "Stub Bank", Slug: "stub-bank", Code: "999", Country: "Nigeria", Currency: "NGN", Active: true},
	}, nil
}

func (s *StubGateway) CreateSubaccount(ctx context.Context, req SubaccountRequest) (*Subaccount, error) {
	return &Subaccount{
		Code:             "ACCT_stub_" + req.AccountNumber,
		BusinessName:     req.BusinessName,
		SettlementBank:   req.BankCode,
		AccountNumber:    req.AccountNumber,
		PercentageCharge: req.PercentageCharge,
		Active:           true,
	}, nil
}

func (s *StubGateway) UpdateSubaccount(ctx context.Context, code string, req SubaccountUpdate) (*Subaccount, error) {
	out := &Subaccount{Code: code, BusinessName: req.BusinessName, SettlementBank: req.BankCode, AccountNumber: req.AccountNumber, Active: true}
	if req.PercentageCharge != nil {
		out.PercentageCharge = *req.PercentageCharge
	} else {
		out.PercentageCharge = decimal.Zero
	}
	if req.Active != nil {
		out.Active = *req.Active
	}
	return out, nil
}

func (s *StubGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	return verifySignature(StubSecret, body, signature)
}

package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ResolveAccount confirms a bank account and returns the holder name.
func (g *PaystackGateway) ResolveAccount(ctx context.Context, accountNumber, bankCode string) (*AccountResult, error) {
	const op = "resolve_account"
	if !g.Configured() {
		return nil, ErrNotConfigured
	}
	q := url.Values{}
	q.Set("account_number", accountNumber)
	q.Set("bank_code", bankCode)
	env, err := g.do(ctx, op, http.MethodGet, "/bank/resolve", q, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	var out AccountResult
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return nil, &GatewayError{Op: op, Kind: KindDecode, Message: "invalid account data", Err: err}
	}
	return &out, nil
}

// ResolveIdentity looks up a BVN through the resolve endpoint. A successful answer means
// the number is known to the gateway.
func (g *PaystackGateway) ResolveIdentity(ctx context.Context, documentNumber string) (*IdentityResult, error) {
	const op = "resolve_identity"
	if !g.Configured() {
		return nil, ErrNotConfigured
	}
	q := url.Values{}
	q.Set("account_number", documentNumber)
	env, err := g.do(ctx, op, http.MethodGet, "/bank/resolve", q, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	var data AccountResult
	// data may be absent or null on a bare success
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, &GatewayError{Op: op, Kind: KindDecode, Message: "invalid identity data", Err: err}
		}
	}
	return &IdentityResult{Name: data.AccountName, AccountNumber: data.AccountNumber, Raw: env.Data}, nil
}

func (g *PaystackGateway) ListBanks(ctx context.Context, country string) ([]Bank, error) {
	const op = "list_banks"
	if !g.Configured() {
		return nil, ErrNotConfigured
	}
	if country == "" {
		country = "nigeria"
	}
	q := url.Values{}
	q.Set("country", country)
	env, err := g.do(ctx, op, http.MethodGet, "/bank", q, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	var banks []Bank
	if err := json.Unmarshal(env.Data, &banks); err != nil {
		return nil, &GatewayError{Op: op, Kind: KindDecode, Message: "invalid bank list", Err: err}
	}
	return banks, nil
}

// subaccountData is the wire shape; percentage_charge is a bare JSON number.
type subaccountData struct {
	SubaccountCode   string      `json:"subaccount_code"`
	BusinessName     string      `json:"business_name"`
	SettlementBank   string      `json:"settlement_bank"`
	AccountNumber    string      `json:"account_number"`
	PercentageCharge json.Number `json:"percentage_charge"`
	Active           bool        `json:"active"`
}

func (d subaccountData) toSubaccount() *Subaccount {
	pct, _ := decimal.NewFromString(d.PercentageCharge.String())
	return &Subaccount{
		Code:             d.SubaccountCode,
		BusinessName:     d.BusinessName,
		SettlementBank:   d.SettlementBank,
		AccountNumber:    d.AccountNumber,
		PercentageCharge: pct,
		Active:           d.Active,
	}
}

type subaccountPayload struct {
	BusinessName        string      `json:"business_name,omitempty"`
	BankCode            string      `json:"settlement_bank,omitempty"`
	AccountNumber       string      `json:"account_number,omitempty"`
	PercentageCharge    json.Number `json:"percentage_charge,omitempty"`
	PrimaryContactEmail string      `json:"primary_contact_email,omitempty"`
	PrimaryContactPhone string      `json:"primary_contact_phone,omitempty"`
	Active              *bool       `json:"active,omitempty"`
}

// CreateSubaccount registers a settlement subaccount so invoice payments route to the owner.
func (g *PaystackGateway) CreateSubaccount(ctx context.Context, req SubaccountRequest) (*Subaccount, error) {
	const op = "create_subaccount"
	if !g.Configured() {
		return nil, ErrNotConfigured
	}
	payload := subaccountPayload{
		BusinessName:        req.BusinessName,
		BankCode:            req.BankCode,
		AccountNumber:       req.AccountNumber,
		PercentageCharge:    json.Number(req.PercentageCharge.String()),
		PrimaryContactEmail: req.PrimaryContactEmail,
		PrimaryContactPhone: req.PrimaryContactPhone,
	}
	env, err := g.do(ctx, op, http.MethodPost, "/subaccount", nil, payload, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	var data subaccountData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &GatewayError{Op: op, Kind: KindDecode, Message: "invalid subaccount data", Err: err}
	}
	if data.SubaccountCode == "" {
		return nil, &GatewayError{Op: op, Kind: KindDecode, Message: "missing subaccount_code"}
	}
	g.logger.Info("subaccount created", zap.String("subaccount_code", data.SubaccountCode))
	return data.toSubaccount(), nil
}

func (g *PaystackGateway) UpdateSubaccount(ctx context.Context, code string, req SubaccountUpdate) (*Subaccount, error) {
	const op = "update_subaccount"
	if !g.Configured() {
		return nil, ErrNotConfigured
	}
	payload := subaccountPayload{
		BusinessName:  req.BusinessName,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		Active:        req.Active,
	}
	if req.PercentageCharge != nil {
		payload.PercentageCharge = json.Number(req.PercentageCharge.String())
	}
	env, err := g.do(ctx, op, http.MethodPut, "/subaccount/"+url.PathEscape(code), nil, payload, http.StatusOK)
	if err != nil {
		return nil, err
	}
	var data subaccountData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &GatewayError{Op: op, Kind: KindDecode, Message: "invalid subaccount data", Err: err}
	}
	if data.SubaccountCode == "" {
		data.SubaccountCode = code
	}
	return data.toSubaccount(), nil
}

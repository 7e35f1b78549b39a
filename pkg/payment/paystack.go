package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.paystack.co"

// PaystackConfig contains configuration for the Paystack client.
type PaystackConfig struct {
	BaseURL        string
	SecretKey      string
	RequestTimeout time.Duration
}

// PaystackGateway talks to the Paystack REST API. It never retries on its own;
// retry policy belongs to the recovery scheduler.
type PaystackGateway struct {
	config     PaystackConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewPaystackGateway(config PaystackConfig, logger *zap.Logger) *PaystackGateway {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaystackGateway{
		config:     config,
		httpClient: &http.Client{Timeout: config.RequestTimeout},
		logger:     logger.Named("paystack"),
	}
}

func (g *PaystackGateway) Configured() bool {
	return g.config.SecretKey != ""
}

// envelope is the {status, message, data} wrapper every Paystack response uses.
type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializePayload struct {
	Email       string                 `json:"email"`
	Amount      int64                  `json:"amount"`
	Currency    string                 `json:"currency"`
	Reference   string                 `json:"reference"`
	CallbackURL string                 `json:"callback_url,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Subaccount  string                 `json:"subaccount,omitempty"`
	Bearer      string                 `json:"bearer,omitempty"`
}

// InitializeTransaction starts a hosted checkout and returns the authorization URL.
func (g *PaystackGateway) InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	const op = "initialize"
	if !g.Configured() {
		return nil, ErrNotConfigured
	}
	minor, err := ToMinorUnits(req.Amount)
	if err != nil {
		return nil, &GatewayError{Op: op, Kind: KindRejected, Message: err.Error()}
	}
	payload := initializePayload{
		Email:       req.Email,
		Amount:      minor,
		Currency:    strings.ToUpper(req.Currency),
		Reference:   req.Reference,
		CallbackURL: req.CallbackURL,
		Metadata:    req.Metadata,
	}
	if req.SubaccountCode != "" {
		payload.Subaccount = req.SubaccountCode
		payload.Bearer = req.Bearer
		if payload.Bearer == "" {
			payload.Bearer = "subaccount"
		}
	}

	g.logger.Info("initializing transaction",
		zap.String("reference", req.Reference),
		zap.Int64("amount_minor", minor),
		zap.String("currency", payload.Currency),
	)

	env, err := g.do(ctx, op, http.MethodPost, "/transaction/initialize", nil, payload, http.StatusOK)
	if err != nil {
		return nil, err
	}
	var out InitializeResult
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return nil, &GatewayError{Op: op, Kind: KindDecode, Message: "invalid initialize data", Err: err}
	}
	if out.AuthorizationURL == "" {
		return nil, &GatewayError{Op: op, Kind: KindDecode, Message: "missing authorization_url"}
	}
	return &out, nil
}

// verifyData mirrors the transaction object. Required fields are pointers so a missing
// key is told apart from a zero value.
type verifyData struct {
	Status    *string         `json:"status"`
	Reference string          `json:"reference"`
	Amount    *int64          `json:"amount"`
	Currency  *string         `json:"currency"`
	PaidAt    *string         `json:"paid_at"`
	Channel   string          `json:"channel"`
	Metadata  json.RawMessage `json:"metadata"`
	Customer  struct {
		Email string `json:"email"`
	} `json:"customer"`
}

// VerifyTransaction fetches the gateway's authoritative view of a transaction.
func (g *PaystackGateway) VerifyTransaction(ctx context.Context, reference string) (*VerifyResult, error) {
	const op = "verify"
	if !g.Configured() {
		return nil, ErrNotConfigured
	}
	env, err := g.do(ctx, op, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	var tx verifyData
	if err := json.Unmarshal(env.Data, &tx); err != nil {
		return nil, &GatewayError{Op: op, Kind: KindDecode, Message: "invalid transaction data", Err: err}
	}
	switch {
	case tx.Status == nil:
		return nil, &GatewayError{Op: op, Kind: KindDecode, Message: "missing field status"}
	case tx.Amount == nil:
		return nil, &GatewayError{Op: op, Kind: KindDecode, Message: "missing field amount"}
	case tx.Currency == nil:
		return nil, &GatewayError{Op: op, Kind: KindDecode, Message: "missing field currency"}
	}

	res := &VerifyResult{
		Verified:      *tx.Status == "success",
		GatewayStatus: *tx.Status,
		Reference:     tx.Reference,
		AmountMinor:   *tx.Amount,
		Amount:        FromMinorUnits(*tx.Amount),
		Currency:      *tx.Currency,
		Channel:       tx.Channel,
		CustomerEmail: tx.Customer.Email,
		Metadata:      tx.Metadata,
		Raw:           env.Data,
	}
	if res.Reference == "" {
		res.Reference = reference
	}
	if tx.PaidAt != nil && *tx.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, *tx.PaidAt); err == nil {
			res.PaidAt = &t
		} else {
			g.logger.Warn("unparseable paid_at", zap.String("reference", reference), zap.String("paid_at", *tx.PaidAt))
		}
	}

	g.logger.Debug("transaction verified",
		zap.String("reference", reference),
		zap.String("gateway_status", res.GatewayStatus),
		zap.String("amount", res.Amount.String()),
		zap.String("currency", res.Currency),
	)
	return res, nil
}

// do performs one request and unwraps the Paystack envelope. Every failure is
// returned as a *GatewayError.
func (g *PaystackGateway) do(ctx context.Context, op, method, endpoint string, query url.Values, payload interface{}, wantStatus int) (*envelope, error) {
	u := g.config.BaseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, &GatewayError{Op: op, Kind: KindDecode, Message: "marshal payload failed", Err: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, &GatewayError{Op: op, Kind: KindTransport, Message: "create request failed", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+g.config.SecretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	g.logger.Debug("paystack request", zap.String("method", method), zap.String("endpoint", endpoint))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Warn("paystack request failed", zap.String("op", op), zap.Error(err))
		return nil, &GatewayError{Op: op, Kind: KindTransport, Message: transportMessage(err), Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Op: op, Kind: KindTransport, StatusCode: resp.StatusCode, Message: "read body failed", Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(respBody, &env)

	if resp.StatusCode != wantStatus {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		kind := KindRejected
		switch {
		case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
			kind = KindHTTP
		case resp.StatusCode < 400:
			kind = KindDecode
		}
		g.logger.Warn("paystack returned error status",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return nil, &GatewayError{Op: op, Kind: kind, StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, &GatewayError{Op: op, Kind: KindDecode, StatusCode: resp.StatusCode, Message: "invalid response format", Err: decodeErr}
	}
	if !env.Status {
		msg := env.Message
		if msg == "" {
			msg = "request was not successful"
		}
		return nil, &GatewayError{Op: op, Kind: KindRejected, StatusCode: resp.StatusCode, Message: msg}
	}
	return &env, nil
}

func transportMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return "request timed out"
	}
	return fmt.Sprintf("connection error: %v", err)
}

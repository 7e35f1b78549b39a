package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"billflow/internal/domain"
	"billflow/internal/logging"
	"billflow/internal/models"
	"billflow/internal/repository"
	"billflow/pkg/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type InitializeInput struct {
	InvoiceID      uint
	Amount         *decimal.Decimal // optional; must equal the invoice total when set
	IdempotencyKey string
}

// PaymentService starts invoice payments through the gateway.
type PaymentService struct {
	db           *gorm.DB
	gateway      payment.Gateway
	invoices     *repository.InvoiceRepository
	payments     *repository.PaymentRepository
	payouts      *repository.PayoutAccountRepository
	users        *repository.UserRepository
	ledger       *LedgerService
	identity     *IdentityService
	idempotency  *IdempotencyService
	callbackURL  string
	kycThreshold decimal.Decimal
	logger       *zap.Logger
}

type PaymentServiceConfig struct {
	CallbackURL  string
	KYCThreshold decimal.Decimal
}

func NewPaymentService(db *gorm.DB, gateway payment.Gateway, ledger *LedgerService, identity *IdentityService, idempotency *IdempotencyService, cfg PaymentServiceConfig, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		db:           db,
		gateway:      gateway,
		invoices:     repository.NewInvoiceRepository(db),
		payments:     repository.NewPaymentRepository(db),
		payouts:      repository.NewPayoutAccountRepository(db),
		users:        repository.NewUserRepository(db),
		ledger:       ledger,
		identity:     identity,
		idempotency:  idempotency,
		callbackURL:  cfg.CallbackURL,
		kycThreshold: cfg.KYCThreshold,
		logger:       logger.Named("payment"),
	}
}

// NewReference builds inv_<invoice>_<user>_<8 hex>.
func NewReference(invoiceID, userID uint) string {
	return fmt.Sprintf("inv_%d_%d_%s", invoiceID, userID, strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

// Initialize creates, under the caller's idempotency key, a pending payment and a gateway
// checkout. The key is looked up before anything else, so a retry with the same request
// replays the stored response even after the invoice has changed. Validation runs only
// on a miss; its errors are returned as errors and release the key.
func (s *PaymentService) Initialize(ctx context.Context, userID uint, in InitializeInput) (IdempotentResponse, bool, error) {
	request := map[string]interface{}{"invoice_id": in.InvoiceID}
	if in.Amount != nil {
		request["amount"] = in.Amount.StringFixed(2)
	}
	return s.idempotency.GetOrCreate(ctx, userID, in.IdempotencyKey, request, func(ctx context.Context) (IdempotentResponse, error) {
		inv, err := s.payable(ctx, userID, in)
		if err != nil {
			return IdempotentResponse{}, err
		}
		return s.start(ctx, userID, inv)
	})
}

// payable loads the invoice and checks that userID may pay it now.
func (s *PaymentService) payable(ctx context.Context, userID uint, in InitializeInput) (*models.Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, in.InvoiceID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && inv.UserID != userID) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	if inv.Status != domain.InvoiceStatusUnpaid {
		return nil, fmt.Errorf("%w: invoice is %s", ErrInvoiceNotPayable, inv.Status)
	}
	amount := inv.Total
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if in.Amount != nil && !in.Amount.Equal(amount) {
		return nil, ErrInvalidAmount
	}
	if amount.GreaterThan(s.kycThreshold) && s.kycThreshold.IsPositive() {
		ok, _, err := s.identity.CanProcessPayout(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrKYCRequired
		}
	}
	if !s.gateway.Configured() {
		return nil, payment.ErrNotConfigured
	}
	return inv, nil
}

func (s *PaymentService) start(ctx context.Context, userID uint, inv *models.Invoice) (IdempotentResponse, error) {
	log := logging.FromContext(ctx, s.logger).With(zap.Uint("invoice_id", inv.ID))
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return IdempotentResponse{}, fmt.Errorf("load user: %w", err)
	}
	ref := NewReference(inv.ID, userID)
	meta, _ := json.Marshal(map[string]interface{}{"invoice_id": inv.ID, "user_id": userID})
	p := &models.Payment{
		Reference: ref,
		InvoiceID: inv.ID,
		UserID:    userID,
		Amount:    inv.Total,
		Currency:  strings.ToUpper(inv.Currency),
		Status:    domain.PaymentPending,
		Metadata:  datatypes.JSON(meta),
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return IdempotentResponse{}, fmt.Errorf("create payment: %w", err)
	}

	req := payment.InitializeRequest{
		Email:       payerEmail(inv, user),
		Amount:      p.Amount,
		Currency:    p.Currency,
		Reference:   ref,
		CallbackURL: s.callbackURL,
		Metadata:    map[string]interface{}{"invoice_id": inv.ID, "user_id": userID},
	}
	if acct, err := s.payouts.GetByUserID(ctx, userID); err == nil && acct.Active && acct.SubaccountCode != "" {
		req.SubaccountCode = acct.SubaccountCode
	}

	res, gerr := s.gateway.InitializeTransaction(ctx, req)
	if gerr != nil {
		log.Warn("gateway initialize failed", zap.String("reference", ref), zap.Error(gerr))
		if cerr := s.ledger.MarkCancelled(ctx, s.db.WithContext(ctx), p, "initialize failed: "+gerr.Error(), SourceAdmin); cerr != nil {
			log.Error("cancel payment", zap.String("reference", ref), zap.Error(cerr))
		}
		if payment.IsRejected(gerr) {
			body, _ := json.Marshal(map[string]string{"error": gatewayMessage(gerr), "code": "GATEWAY_REJECTED"})
			return IdempotentResponse{Status: http.StatusBadRequest, Body: body}, nil
		}
		return IdempotentResponse{}, gerr
	}

	body, _ := json.Marshal(map[string]interface{}{
		"payment_id":        p.ID,
		"reference":         ref,
		"authorization_url": res.AuthorizationURL,
		"access_code":       res.AccessCode,
	})
	log.Info("payment initialized", zap.String("reference", ref))
	return IdempotentResponse{Status: http.StatusOK, Body: body}, nil
}

func payerEmail(inv *models.Invoice, u *models.User) string {
	if inv.ClientEmail != "" {
		return inv.ClientEmail
	}
	return u.Email
}

// GetForUser returns a payment by reference if it belongs to userID.
func (s *PaymentService) GetForUser(ctx context.Context, userID uint, ref string) (*models.Payment, error) {
	p, err := s.payments.GetByReference(ctx, ref)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && p.UserID != userID) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

// ListForInvoice returns every payment attempt on an invoice owned by userID, newest first.
func (s *PaymentService) ListForInvoice(ctx context.Context, userID, invoiceID uint) ([]models.Payment, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && inv.UserID != userID) {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.payments.ListByInvoice(ctx, invoiceID)
}

func (s *PaymentService) GetByReference(ctx context.Context, ref string) (*models.Payment, error) {
	p, err := s.payments.GetByReference(ctx, ref)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

// Cancel abandons a payment that has not reached a terminal state.
func (s *PaymentService) Cancel(ctx context.Context, ref, reason string) (*models.Payment, error) {
	var p *models.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = s.payments.WithTx(tx).LockByReference(ctx, ref)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPaymentNotFound
		}
		if err != nil {
			return err
		}
		return s.ledger.MarkCancelled(ctx, tx, p, reason, SourceAdmin)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

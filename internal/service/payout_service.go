package service

import (
	"context"
	"errors"
	"fmt"

	"billflow/internal/logging"
	"billflow/internal/models"
	"billflow/internal/repository"
	"billflow/pkg/payment"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PayoutAccountInput struct {
	BankCode         string
	AccountNumber    string
	BusinessName     string
	PercentageCharge *decimal.Decimal
}

// PayoutService manages the gateway subaccount invoice payments settle into. Every
// change is gated on a verified identity.
type PayoutService struct {
	gateway  payment.Gateway
	accounts *repository.PayoutAccountRepository
	users    *repository.UserRepository
	identity *IdentityService
	logger   *zap.Logger
}

func NewPayoutService(gateway payment.Gateway, accounts *repository.PayoutAccountRepository, users *repository.UserRepository, identity *IdentityService, logger *zap.Logger) *PayoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PayoutService{gateway: gateway, accounts: accounts, users: users, identity: identity, logger: logger.Named("payout")}
}

func (s *PayoutService) ListBanks(ctx context.Context, country string) ([]payment.Bank, error) {
	return s.gateway.ListBanks(ctx, country)
}

func (s *PayoutService) Get(ctx context.Context, userID uint) (*models.PayoutAccount, error) {
	acct, err := s.accounts.GetByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPayoutAccountNotFound
	}
	return acct, err
}

func (s *PayoutService) gate(ctx context.Context, userID uint) error {
	ok, msg, err := s.identity.CanProcessPayout(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrKYCRequired, msg)
	}
	return nil
}

// Create resolves the bank account, registers a subaccount and stores it.
func (s *PayoutService) Create(ctx context.Context, userID uint, in PayoutAccountInput) (*models.PayoutAccount, error) {
	if err := s.gate(ctx, userID); err != nil {
		return nil, err
	}
	if _, err := s.accounts.GetByUserID(ctx, userID); err == nil {
		return nil, ErrPayoutAccountExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	resolved, err := s.gateway.ResolveAccount(ctx, in.AccountNumber, in.BankCode)
	if err != nil {
		return nil, err
	}
	pct := decimal.Zero
	if in.PercentageCharge != nil {
		pct = *in.PercentageCharge
	}
	name := in.BusinessName
	if name == "" {
		name = resolved.AccountName
	}
	sub, err := s.gateway.CreateSubaccount(ctx, payment.SubaccountRequest{
		BusinessName:        name,
		BankCode:            in.BankCode,
		AccountNumber:       in.AccountNumber,
		PercentageCharge:    pct,
		PrimaryContactEmail: user.Email,
	})
	if err != nil {
		return nil, err
	}
	acct := &models.PayoutAccount{
		UserID:           userID,
		BankCode:         in.BankCode,
		AccountNumber:    in.AccountNumber,
		AccountName:      resolved.AccountName,
		BusinessName:     name,
		SubaccountCode:   sub.Code,
		PercentageCharge: pct,
		Active:           true,
	}
	if err := s.accounts.Save(ctx, acct); err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.logger).Info("payout account created", zap.Uint("user_id", userID), zap.String("subaccount_code", sub.Code))
	return acct, nil
}

// Update changes the settlement details of an existing subaccount.
func (s *PayoutService) Update(ctx context.Context, userID uint, in PayoutAccountInput) (*models.PayoutAccount, error) {
	if err := s.gate(ctx, userID); err != nil {
		return nil, err
	}
	acct, err := s.accounts.GetByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPayoutAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	upd := payment.SubaccountUpdate{BusinessName: in.BusinessName, PercentageCharge: in.PercentageCharge}
	if in.AccountNumber != "" || in.BankCode != "" {
		bank, number := acct.BankCode, acct.AccountNumber
		if in.BankCode != "" {
			bank = in.BankCode
		}
		if in.AccountNumber != "" {
			number = in.AccountNumber
		}
		resolved, err := s.gateway.ResolveAccount(ctx, number, bank)
		if err != nil {
			return nil, err
		}
		upd.BankCode, upd.AccountNumber = bank, number
		acct.BankCode, acct.AccountNumber, acct.AccountName = bank, number, resolved.AccountName
	}
	if _, err := s.gateway.UpdateSubaccount(ctx, acct.SubaccountCode, upd); err != nil {
		return nil, err
	}
	if in.BusinessName != "" {
		acct.BusinessName = in.BusinessName
	}
	if in.PercentageCharge != nil {
		acct.PercentageCharge = *in.PercentageCharge
	}
	if err := s.accounts.Save(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

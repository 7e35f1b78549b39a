package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"billflow/internal/domain"
	"billflow/internal/logging"
	"billflow/internal/models"
	"billflow/internal/repository"
	"billflow/pkg/cloudinary"
	"billflow/pkg/payment"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const verifiedByGateway = "Paystack KYC"

// IdentityService is the KYC gate in front of payout operations.
type IdentityService struct {
	repo    *repository.IdentityRepository
	gateway payment.Gateway
	cloud   cloudinary.Client
	logger  *zap.Logger
	now     func() time.Time
}

func NewIdentityService(repo *repository.IdentityRepository, gateway payment.Gateway, cloud cloudinary.Client, logger *zap.Logger) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityService{repo: repo, gateway: gateway, cloud: cloud, logger: logger.Named("identity"), now: time.Now}
}

// VerifyIdentity checks a document number with the gateway and records the result.
// A definitive gateway rejection marks the record rejected; an unreachable or
// unconfigured gateway leaves it pending so the user can retry. err is only returned
// when the record cannot be stored.
func (s *IdentityService) VerifyIdentity(ctx context.Context, userID uint, docType, docNumber string) (bool, string, error) {
	log := logging.FromContext(ctx, s.logger).With(zap.Uint("user_id", userID))
	docNumber = strings.TrimSpace(docNumber)

	v, err := s.repo.GetByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		v = &models.UserIdentityVerification{UserID: userID, Status: domain.IdentityPending}
	} else if err != nil {
		return false, "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(docNumber), bcrypt.DefaultCost)
	if err != nil {
		return false, "", fmt.Errorf("hash document number: %w", err)
	}
	v.DocumentType = docType
	v.DocumentNumber = MaskDocumentNumber(docNumber)
	v.DocumentHash = string(hash)

	var ok bool
	var msg string
	_, gerr := s.gateway.ResolveIdentity(ctx, docNumber)
	switch {
	case gerr == nil:
		now := s.now()
		expires := now.Add(domain.IdentityValidity)
		v.Status = domain.IdentityVerified
		v.VerifiedAt = &now
		v.VerifiedBy = verifiedByGateway
		v.ExpiresAt = &expires
		v.RejectionReason = ""
		ok, msg = true, "Identity verified successfully"
		log.Info("identity verified")
	case payment.IsRejected(gerr):
		v.Status = domain.IdentityRejected
		v.RejectionReason = "KYC verification failed: " + gatewayMessage(gerr)
		msg = "Identity verification failed"
		log.Warn("identity rejected", zap.Error(gerr))
	default:
		v.Status = domain.IdentityPending
		v.RejectionReason = gerr.Error()
		msg = "Verification error: " + gerr.Error()
		log.Warn("identity verification error", zap.Error(gerr))
	}

	if err := s.repo.Save(ctx, v); err != nil {
		return false, "", fmt.Errorf("save identity verification: %w", err)
	}
	return ok, msg, nil
}

// CanProcessPayout reports whether the user holds a verified, unexpired identity.
func (s *IdentityService) CanProcessPayout(ctx context.Context, userID uint) (bool, string, error) {
	v, err := s.repo.GetByUserID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, "Please complete identity verification first", nil
	}
	if err != nil {
		return false, "", err
	}
	if !v.IsVerified(s.now()) {
		return false, "Identity verification required before payout", nil
	}
	return true, "User can process payouts", nil
}

// Status returns the user's record, or gorm.ErrRecordNotFound.
func (s *IdentityService) Status(ctx context.Context, userID uint) (*models.UserIdentityVerification, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// AttachDocument stores a scan of the identity document next to the record.
func (s *IdentityService) AttachDocument(ctx context.Context, userID uint, file io.Reader) (string, error) {
	if s.cloud == nil {
		return "", ErrUploadUnavailable
	}
	if _, err := s.repo.GetByUserID(ctx, userID); err != nil {
		return "", err
	}
	folder := "billflow/kyc/" + strconv.FormatUint(uint64(userID), 10)
	publicID := "doc_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	url, _, err := s.cloud.UploadDocument(ctx, file, folder, publicID)
	if err != nil {
		return "", fmt.Errorf("upload document: %w", err)
	}
	if err := s.repo.UpdateDocumentURL(ctx, userID, url); err != nil {
		return "", err
	}
	return url, nil
}

// MaskDocumentNumber keeps the last four characters.
func MaskDocumentNumber(n string) string {
	if len(n) <= 4 {
		return strings.Repeat("*", len(n))
	}
	return strings.Repeat("*", len(n)-4) + n[len(n)-4:]
}

func gatewayMessage(err error) string {
	var gerr *payment.GatewayError
	if errors.As(err, &gerr) {
		return gerr.Message
	}
	return err.Error()
}

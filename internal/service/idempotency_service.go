package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"billflow/internal/domain"
	"billflow/internal/logging"
	"billflow/internal/models"
	"billflow/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IdempotentResponse is what gets cached and replayed for a key.
type IdempotentResponse struct {
	Status int
	Body   json.RawMessage
}

const (
	CodeIdempotencyMismatch   = "IDEMPOTENCY_MISMATCH"
	CodeIdempotencyInProgress = "IDEMPOTENCY_IN_PROGRESS"

	// claimTTL bounds how long a crashed request can hold a key.
	claimTTL = 5 * time.Minute
)

type IdempotencyService struct {
	repo   *repository.IdempotencyRepository
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewIdempotencyService(repo *repository.IdempotencyRepository, logger *zap.Logger) *IdempotencyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdempotencyService{repo: repo, ttl: domain.IdempotencyTTL, logger: logger.Named("idempotency"), now: time.Now}
}

// HashPayload is the hex SHA-256 of the JSON encoding of payload. Map keys are encoded
// in sorted order, so logically equal payloads hash the same.
func HashPayload(payload interface{}) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("hash payload: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// GetOrCreate runs compute at most once per (user, key, payload) within the TTL and
// replays the stored response afterwards. The bool reports whether the response came
// from the store. A key reused with another payload yields a 409 without running compute.
func (s *IdempotencyService) GetOrCreate(ctx context.Context, userID uint, key string, payload interface{}, compute func(ctx context.Context) (IdempotentResponse, error)) (IdempotentResponse, bool, error) {
	hash, err := HashPayload(payload)
	if err != nil {
		return IdempotentResponse{}, false, err
	}

	if resp, ok, err := s.lookup(ctx, userID, key, hash); err != nil || ok {
		return resp, ok, err
	}

	claim := &models.IdempotencyKey{
		UserID:      userID,
		Key:         key,
		RequestHash: hash,
		ExpiresAt:   s.now().Add(claimTTL),
	}
	if err := s.repo.Claim(ctx, claim); err != nil {
		// lost the race to a concurrent request with the same key
		if resp, ok, lerr := s.lookup(ctx, userID, key, hash); lerr == nil && ok {
			return resp, true, nil
		}
		return IdempotentResponse{}, false, fmt.Errorf("claim idempotency key: %w", err)
	}

	resp, err := compute(ctx)
	if err != nil {
		if derr := s.repo.Delete(ctx, claim.ID); derr != nil {
			logging.FromContext(ctx, s.logger).Error("release idempotency key", zap.String("key", key), zap.Error(derr))
		}
		return IdempotentResponse{}, false, err
	}
	if err := s.repo.Complete(ctx, claim.ID, resp.Body, resp.Status, s.now().Add(s.ttl)); err != nil {
		return IdempotentResponse{}, false, fmt.Errorf("store idempotent response: %w", err)
	}
	return resp, false, nil
}

// lookup returns a response for an existing unexpired key. Expired keys are removed.
func (s *IdempotencyService) lookup(ctx context.Context, userID uint, key, hash string) (IdempotentResponse, bool, error) {
	rec, err := s.repo.Get(ctx, userID, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return IdempotentResponse{}, false, nil
	}
	if err != nil {
		return IdempotentResponse{}, false, err
	}
	if !rec.ExpiresAt.After(s.now()) {
		if err := s.repo.Delete(ctx, rec.ID); err != nil {
			return IdempotentResponse{}, false, err
		}
		return IdempotentResponse{}, false, nil
	}
	if rec.RequestHash != hash {
		return conflict("Idempotency key reuse with different payload.", CodeIdempotencyMismatch), true, nil
	}
	if rec.State != domain.IdempotencyCompleted {
		return conflict("A request with this idempotency key is still being processed.", CodeIdempotencyInProgress), true, nil
	}
	return IdempotentResponse{Status: rec.HTTPStatus, Body: json.RawMessage(rec.ResponseBody)}, true, nil
}

func conflict(msg, code string) IdempotentResponse {
	body, _ := json.Marshal(map[string]string{"error": msg, "code": code})
	return IdempotentResponse{Status: http.StatusConflict, Body: body}
}

// PurgeExpired deletes every expired key and returns how many were removed.
func (s *IdempotencyService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.FromContext(ctx, s.logger).Info("purged expired idempotency keys", zap.Int64("count", n))
	}
	return n, nil
}

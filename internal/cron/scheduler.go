package cron

import (
	"context"
	"errors"
	"sync"

	"billflow/internal/logging"
	"billflow/internal/service"
	"billflow/pkg/payment"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper and Purger are the jobs the scheduler drives.
type Sweeper interface {
	ProcessPendingRecoveries(ctx context.Context) (service.RecoveryStats, error)
}

type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Scheduler runs the recovery sweep and the idempotency purge on cron schedules. A run
// that is still going when the next tick fires makes that tick a no-op.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	purger  Purger
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	sweepMu sync.Mutex
	purgeMu sync.Mutex
}

func NewScheduler(sweeper Sweeper, purger Purger, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(),
		sweeper: sweeper,
		purger:  purger,
		logger:  logger.Named("cron"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds both jobs. An empty schedule disables that job.
func (s *Scheduler) Register(sweepSpec, purgeSpec string) error {
	if sweepSpec != "" {
		if _, err := s.cron.AddFunc(sweepSpec, func() { s.Sweep(s.ctx) }); err != nil {
			return err
		}
	}
	if purgeSpec != "" {
		if _, err := s.cron.AddFunc(purgeSpec, func() { s.Purge(s.ctx) }); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels in-flight jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// Sweep runs one recovery pass unless one is already running. It reports whether it ran.
func (s *Scheduler) Sweep(ctx context.Context) bool {
	if !s.sweepMu.TryLock() {
		s.logger.Debug("recovery sweep still running, skipping tick")
		return false
	}
	defer s.sweepMu.Unlock()

	ctx = logging.WithCorrelationID(ctx, "sweep-"+uuid.NewString()[:8])
	log := logging.FromContext(ctx, s.logger)
	stats, err := s.sweeper.ProcessPendingRecoveries(ctx)
	switch {
	case errors.Is(err, payment.ErrNotConfigured):
		log.Debug("recovery sweep skipped: gateway not configured")
	case err != nil:
		log.Error("recovery sweep failed", zap.Error(err))
	case stats.Attempted > 0:
		log.Info("recovery sweep finished",
			zap.Int("attempted", stats.Attempted),
			zap.Int("successful", stats.Successful),
			zap.Int("failed", stats.Failed))
	}
	return true
}

func (s *Scheduler) Purge(ctx context.Context) bool {
	if !s.purgeMu.TryLock() {
		return false
	}
	defer s.purgeMu.Unlock()

	n, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		s.logger.Error("idempotency purge failed", zap.Error(err))
		return true
	}
	if n > 0 {
		s.logger.Info("expired idempotency keys purged", zap.Int64("count", n))
	}
	return true
}

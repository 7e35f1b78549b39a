package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"billflow/config"
	"billflow/internal/app"
	"billflow/internal/cron"
	"billflow/internal/logging"
	"billflow/internal/middleware"
	"billflow/internal/router"
	"billflow/internal/ws"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.IsProduction())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	hub := ws.NewHub()
	a, closeApp, err := app.Open(cfg, logger, hub)
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}
	defer closeApp()

	limits, closeLimits := newLimiters(cfg, logger)
	defer closeLimits()

	scheduler := cron.NewScheduler(a.Recovery, a.Idempotency, logger)
	if err := scheduler.Register(cfg.Reconciliation.SweepSchedule, cfg.Reconciliation.PurgeSchedule); err != nil {
		logger.Fatal("cron", zap.Error(err))
	}
	scheduler.Start()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.Setup(a, limits),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	scheduler.Stop()
	logger.Info("server stopped")
}

// newLimiters uses Redis when configured so every replica shares one budget, and falls
// back to per-process limiters otherwise.
func newLimiters(cfg *config.Config, logger *zap.Logger) (router.Limiters, func()) {
	rl := cfg.RateLimit
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		err := rdb.Ping(ctx).Err()
		if err == nil {
			logger.Info("rate limiting via redis", zap.String("addr", cfg.Redis.Addr))
			return router.Limiters{
				API:     middleware.NewRedisRateLimiter(rdb, "api", rl.APILimit, rl.APIWindow, logger),
				Webhook: middleware.NewRedisRateLimiter(rdb, "webhook", rl.WebhookLimit, rl.WebhookWindow, logger),
			}, func() { rdb.Close() }
		}
		logger.Warn("redis unavailable, using in-memory rate limiting", zap.Error(err))
		rdb.Close()
	}
	api := middleware.NewInMemoryRateLimiter(rl.APILimit, rl.APIWindow)
	webhook := middleware.NewInMemoryRateLimiter(rl.WebhookLimit, rl.WebhookWindow)
	return router.Limiters{API: api, Webhook: webhook}, func() {
		api.Close()
		webhook.Close()
	}
}

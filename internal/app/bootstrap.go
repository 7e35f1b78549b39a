package app

import (
	"fmt"

	"billflow/config"
	"billflow/internal/database"
	"billflow/internal/service"
	"billflow/internal/ws"
	"billflow/pkg/cloudinary"
	"billflow/pkg/events"

	"go.uber.org/zap"
)

// Open connects the database and every configured integration, then builds the App.
// The returned close func releases what Open acquired.
func Open(cfg *config.Config, logger *zap.Logger, hub *ws.Hub) (*App, func(), error) {
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	closers := []func(){func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := Deps{Hub: hub}
	cloud, err := cloudinary.NewClientFromParams(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret)
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("cloudinary: %w", err)
	}
	if cloud != nil {
		deps.Cloud = cloud
	} else {
		logger.Info("document uploads disabled: cloudinary not configured")
	}

	if fcm := service.NewFCMService(cfg.Firebase.ServiceAccountPath, logger); fcm != nil {
		deps.FCM = fcm
		logger.Info("push notifications enabled")
	} else if cfg.Firebase.ServiceAccountPath != "" {
		logger.Warn("push notifications disabled: failed to init (check service account file)")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("kafka: %w", err)
		}
		deps.Publisher = pub
		closers = append(closers, func() { pub.Close() })
		logger.Info("payment events enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	a, err := New(cfg, db, deps, logger)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	if !a.Gateway.Configured() {
		logger.Warn("paystack secret key not set: reconciliation and recovery are disabled")
	}
	return a, closeAll, nil
}

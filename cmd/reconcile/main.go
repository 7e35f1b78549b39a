package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"billflow/config"
	"billflow/internal/app"
	"billflow/internal/cli"
	"billflow/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	open := func(ctx context.Context) (*app.App, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, fmt.Errorf("config: %w", err)
		}
		logger, err := logging.New(cfg.Log.Level, cfg.IsProduction())
		if err != nil {
			return nil, nil, fmt.Errorf("logger: %w", err)
		}
		a, closeFn, err := app.Open(cfg, logger, nil)
		if err != nil {
			logger.Sync()
			return nil, nil, err
		}
		return a, func() {
			closeFn()
			logger.Sync()
		}, nil
	}

	if err := cli.NewRootCmd(open).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

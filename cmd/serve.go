package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/filmdesk/filmdesk/internal/api"
	"github.com/filmdesk/filmdesk/internal/app"
	"github.com/filmdesk/filmdesk/internal/config"
	"github.com/filmdesk/filmdesk/internal/log"
)

// runServe initializes and starts the HTTP API server.
func runServe(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr, err := parseServeAddr()
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting HTTP API server", "version", AppVersion)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	// Idle session eviction runs for the lifetime of the server.
	go a.Registry.Run(ctx)

	srv, err := api.NewServer(api.ServerConfig{
		Logger:      logger.With("component", "api"),
		Registry:    a.Registry,
		Prober:      a.Toolbox,
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxy,
		RateBurst:   cfg.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	return srv.Run(ctx, addr)
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/filmdesk/filmdesk/internal/app"
	"github.com/filmdesk/filmdesk/internal/config"
	"github.com/filmdesk/filmdesk/internal/log"
)

// runAsk sends a single question through the agent and prints the reply.
// Useful for smoke-testing the toolbox and model wiring without the HTTP
// server.
func runAsk(logger log.Logger) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: filmdesk ask <message>")
	}
	message := strings.Join(os.Args[2:], " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	reply, err := a.Registry.GetOrCreate("cli").Ask(ctx, message)
	if err != nil {
		return err
	}

	fmt.Println(reply)
	return nil
}

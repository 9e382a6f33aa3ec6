package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/filmdesk/filmdesk/internal/config"
	"github.com/filmdesk/filmdesk/internal/log"
	"github.com/filmdesk/filmdesk/internal/toolbox"
)

// runTools lists the tools the toolbox MCP server exposes. It talks to the
// toolbox directly, so it works without any model API key.
func runTools(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateToolbox(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := toolbox.NewClient(cfg.ToolboxURL, cfg.ToolboxTimeout, logger)
	names, err := client.ListTools(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Toolbox at %s exposes %d tools:\n", cfg.ToolboxURL, len(names))
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}
	return nil
}

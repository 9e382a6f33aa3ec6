// Package cmd provides CLI commands for the Filmdesk rental assistant.
//
// Commands:
//   - serve: HTTP API server (chat, context reset, health)
//   - ask:   one-shot question from the command line
//   - tools: list the tools the toolbox server exposes
//
// Signal handling and graceful shutdown are implemented for all commands
// via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/filmdesk/filmdesk/internal/log"
)

// Execute is the main entry point for the Filmdesk CLI.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(logger)
	case "ask":
		return runAsk(logger)
	case "tools":
		return runTools(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Filmdesk - conversational front-end for the DVD rental database")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  filmdesk serve [addr]   Start HTTP API server (default: 127.0.0.1:8080)")
	fmt.Println("  filmdesk ask <message>  Ask a single question and print the reply")
	fmt.Println("  filmdesk tools          List tools exposed by the toolbox server")
	fmt.Println("  filmdesk --version      Show version information")
	fmt.Println("  filmdesk --help         Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY          Required for the gemini provider (default)")
	fmt.Println("  OPENAI_API_KEY          Required for the openai provider")
	fmt.Println("  FILMDESK_TOOLBOX_URL    Toolbox MCP endpoint (default: http://127.0.0.1:5000/mcp)")
	fmt.Println("  DEBUG                   Enable debug logging")
}

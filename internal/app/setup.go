// Package app wires configuration, Genkit, the toolbox, and the session
// registry into a running application.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/filmdesk/filmdesk/internal/chat"
	"github.com/filmdesk/filmdesk/internal/config"
	"github.com/filmdesk/filmdesk/internal/log"
	"github.com/filmdesk/filmdesk/internal/session"
	"github.com/filmdesk/filmdesk/internal/toolbox"
)

// App holds the assembled application components.
type App struct {
	Config   *config.Config
	Logger   log.Logger
	Genkit   *genkit.Genkit
	Toolbox  *toolbox.Client
	Tools    []ai.Tool
	Registry *session.Registry

	otelCleanup func()
}

// Setup creates and initializes the application. Call Close to release
// resources.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing must be set up before Genkit so the TracerProvider is ready.
	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	a.Toolbox = toolbox.NewClient(cfg.ToolboxURL, cfg.ToolboxTimeout, logger.With("component", "toolbox"))

	tools, err := toolbox.LoadTools(ctx, g, cfg.ToolboxURL, cfg.ToolboxTimeout, logger.With("component", "toolbox"))
	if err != nil {
		return nil, err
	}
	a.Tools = tools

	retry := chat.RetryConfig{
		MaxRetries: cfg.RetryMax,
		BaseDelay:  cfg.RetryBaseDelay,
		Cooldown:   cfg.RequestCooldown,
		JitterMin:  time.Second,
		JitterMax:  2 * time.Second,
	}

	// One agent serves all sessions. It is stateless, so the registry's
	// factory can hand the same instance to every session.
	agent, err := chat.New(chat.Config{
		Genkit:      g,
		Logger:      logger.With("component", "agent"),
		Tools:       tools,
		ModelName:   cfg.FullModelName(),
		MaxTurns:    cfg.MaxTurns,
		Language:    cfg.Language,
		Temperature: cfg.Temperature,
		Retry:       retry,
	})
	if err != nil {
		return nil, fmt.Errorf("creating agent: %w", err)
	}

	a.Registry = session.NewRegistry(session.Config{
		NewAgent: func(string) session.Agent { return agent },
		Logger:   logger.With("component", "sessions"),
		IdleTTL:  cfg.SessionIdleTTL,
	})

	return a, nil
}

// Close releases application resources.
func (a *App) Close() error {
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

// provideOtelShutdown exports Genkit traces via OTLP HTTP when a telemetry
// endpoint is configured. Returns a cleanup that flushes pending spans.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	tel := cfg.Telemetry
	if tel.Endpoint == "" {
		return func() {}
	}

	// SAFETY: os.Setenv is not concurrent-safe, but this runs exactly once
	// during startup before goroutines are spawned.
	if tel.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", tel.ServiceName)
	}
	if tel.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+tel.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(tel.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"endpoint", tel.Endpoint,
		"service", tel.ServiceName,
		"environment", tel.Environment,
	)

	shutdown := tracing.TracerProvider().Shutdown

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default), ollama, and openai.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	promptDir := cfg.PromptDir
	if promptDir == "" {
		promptDir = "prompts"
	}

	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var g *genkit.Genkit

	switch provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx,
			genkit.WithPlugins(ollamaPlugin),
			genkit.WithPromptDir(promptDir),
		)
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery)
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx,
			genkit.WithPlugins(&openai.OpenAI{}),
			genkit.WithPromptDir(promptDir),
		)
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // gemini
		g = genkit.Init(ctx,
			genkit.WithPlugins(&googlegenai.GoogleAI{}),
			genkit.WithPromptDir(promptDir),
		)
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

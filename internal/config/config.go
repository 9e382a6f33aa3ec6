// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (FILMDESK_* overrides)
//  2. Config file (~/.filmdesk/config.yaml, or ./config.yaml)
//  3. Default values
//
// Categories:
//   - AI: provider, model, temperature, agentic loop turns
//   - Toolbox: URL and timeout of the external MCP tool server
//   - Retry: rate-limit backoff tunables for agent invocations
//   - Sessions: idle eviction for the in-memory session registry
//   - Serve: CORS origins, proxy trust, per-IP rate burst
//   - Telemetry: optional OTLP trace export
//
// Validation uses sentinel errors so callers can check with errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidToolboxURL indicates the toolbox URL is missing or malformed.
	ErrInvalidToolboxURL = errors.New("invalid toolbox URL")

	// ErrInvalidRetry indicates a retry tunable is out of range.
	ErrInvalidRetry = errors.New("invalid retry configuration")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// Retry bounds enforced by Validate.
const (
	// MaxAllowedRetries caps retry_max so a misconfigured deployment cannot
	// hold requests in the backoff loop for minutes on end.
	MaxAllowedRetries = 10

	// MaxAllowedBaseDelay caps retry_base_delay.
	MaxAllowedBaseDelay = 60 * time.Second
)

// TelemetryConfig configures optional OTLP trace export.
// Traces go to a local collector agent over OTLP HTTP; the agent handles
// authentication and forwarding.
type TelemetryConfig struct {
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"` // host:port of the OTLP HTTP collector; empty disables tracing
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Config stores application configuration.
type Config struct {
	// AI provider and model configuration
	Provider    string  `mapstructure:"provider" json:"provider"`     // "gemini" (default), "ollama", "openai"
	ModelName   string  `mapstructure:"model_name" json:"model_name"` // e.g. "gemini-2.5-flash", "llama3.3", "gpt-4o"
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTurns    int     `mapstructure:"max_turns" json:"max_turns"` // agentic tool-calling loop limit
	Language    string  `mapstructure:"language" json:"language"`
	PromptDir   string  `mapstructure:"prompt_dir" json:"prompt_dir"`

	// Ollama configuration (only used when provider is "ollama")
	OllamaHost string `mapstructure:"ollama_host" json:"ollama_host"`

	// Toolbox configuration (external MCP server exposing the rental
	// database operations)
	ToolboxURL     string        `mapstructure:"toolbox_url" json:"toolbox_url"`
	ToolboxTimeout time.Duration `mapstructure:"toolbox_timeout" json:"toolbox_timeout"`

	// Retry configuration for agent invocations
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay" json:"retry_base_delay"` // backoff base for rate-limit retries
	RetryMax        int           `mapstructure:"retry_max" json:"retry_max"`               // retry ceiling for rate-limit failures
	RequestCooldown time.Duration `mapstructure:"request_cooldown" json:"request_cooldown"` // fixed pre-attempt throttle

	// Session registry configuration
	SessionIdleTTL time.Duration `mapstructure:"session_idle_ttl" json:"session_idle_ttl"` // 0 disables idle eviction

	// Serve configuration
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`   // per-IP rate limiter burst (0 = default)

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry" json:"telemetry"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
//
// Load does not validate: commands check only the fields they need, so
// listing toolbox tools never demands a model API key. The app setup path
// runs Validate before anything touches the model.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".filmdesk")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_turns", 5)
	viper.SetDefault("language", "auto")

	// Ollama defaults
	viper.SetDefault("ollama_host", "http://localhost:11434")

	// Toolbox defaults (local genai-toolbox style deployment)
	viper.SetDefault("toolbox_url", "http://127.0.0.1:5000/mcp")
	viper.SetDefault("toolbox_timeout", 10*time.Second)

	// Retry defaults, matching the upstream 429 behavior the rental backend
	// was tuned against
	viper.SetDefault("retry_base_delay", 5*time.Second)
	viper.SetDefault("retry_max", 5)
	viper.SetDefault("request_cooldown", 2*time.Second)

	// Session defaults: evict conversations idle for an hour
	viper.SetDefault("session_idle_ttl", time.Hour)

	// Serve defaults
	viper.SetDefault("cors_origins", []string{"http://localhost:8501"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 0)

	// Telemetry defaults (disabled unless endpoint is set)
	viper.SetDefault("telemetry.endpoint", "")
	viper.SetDefault("telemetry.service_name", "filmdesk")
	viper.SetDefault("telemetry.environment", "dev")
}

// bindEnvVariables binds environment overrides explicitly.
//
// NOTE: GEMINI_API_KEY and OPENAI_API_KEY are read directly by the Genkit
// provider plugins, not via Viper. Validate() checks their presence based on
// the selected provider.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a failure here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "FILMDESK_PROVIDER")
	mustBind("model_name", "FILMDESK_MODEL_NAME")
	mustBind("ollama_host", "FILMDESK_OLLAMA_HOST")
	mustBind("toolbox_url", "FILMDESK_TOOLBOX_URL")
	mustBind("retry_base_delay", "FILMDESK_RETRY_BASE_DELAY")
	mustBind("retry_max", "FILMDESK_RETRY_MAX")
	mustBind("request_cooldown", "FILMDESK_REQUEST_COOLDOWN")
	mustBind("session_idle_ttl", "FILMDESK_SESSION_IDLE_TTL")
	mustBind("cors_origins", "FILMDESK_CORS_ORIGINS")
	mustBind("trust_proxy", "FILMDESK_TRUST_PROXY")
	mustBind("rate_burst", "FILMDESK_RATE_BURST")
	mustBind("telemetry.endpoint", "FILMDESK_OTLP_ENDPOINT")
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3", "openai/gpt-4o".
// If ModelName already contains a "/", it is returned as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return ProviderOllama + "/" + c.ModelName
	case ProviderOpenAI:
		return ProviderOpenAI + "/" + c.ModelName
	default:
		return ProviderGoogleAI + "/" + c.ModelName
	}
}

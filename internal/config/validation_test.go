package config

import (
	"errors"
	"testing"
	"time"
)

// validConfig returns a configuration that passes Validate when
// GEMINI_API_KEY is set.
func validConfig() *Config {
	return &Config{
		Provider:        ProviderGemini,
		ModelName:       "gemini-2.5-flash",
		Temperature:     0.7,
		MaxTurns:        5,
		ToolboxURL:      "http://127.0.0.1:5000/mcp",
		ToolboxTimeout:  10 * time.Second,
		RetryBaseDelay:  5 * time.Second,
		RetryMax:        5,
		RequestCooldown: 2 * time.Second,
	}
}

func TestValidate_OK(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_NilConfig(t *testing.T) {
	t.Parallel()

	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Validate() = %v, want ErrConfigNil", err)
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	if err := validConfig().Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Validate() = %v, want ErrMissingAPIKey", err)
	}
}

func TestValidateToolbox_NoModelKeyRequired(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	cfg := validConfig()
	if err := cfg.ValidateToolbox(); err != nil {
		t.Fatalf("ValidateToolbox() unexpected error: %v", err)
	}
	// The full check still demands the key.
	if err := cfg.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Validate() = %v, want ErrMissingAPIKey", err)
	}
}

func TestValidateToolbox_Errors(t *testing.T) {
	t.Parallel()

	var nilCfg *Config
	if err := nilCfg.ValidateToolbox(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("ValidateToolbox() = %v, want ErrConfigNil", err)
	}

	cfg := validConfig()
	cfg.ToolboxURL = "localhost:5000"
	if err := cfg.ValidateToolbox(); !errors.Is(err, ErrInvalidToolboxURL) {
		t.Errorf("ValidateToolbox() = %v, want ErrInvalidToolboxURL", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.Provider = "anthropic" },
			wantErr: ErrInvalidProvider,
		},
		{
			name:    "empty model name",
			mutate:  func(c *Config) { c.ModelName = "" },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "temperature too high",
			mutate:  func(c *Config) { c.Temperature = 2.5 },
			wantErr: ErrInvalidTemperature,
		},
		{
			name:    "temperature negative",
			mutate:  func(c *Config) { c.Temperature = -0.1 },
			wantErr: ErrInvalidTemperature,
		},
		{
			name:    "empty toolbox url",
			mutate:  func(c *Config) { c.ToolboxURL = "" },
			wantErr: ErrInvalidToolboxURL,
		},
		{
			name:    "toolbox url without scheme",
			mutate:  func(c *Config) { c.ToolboxURL = "127.0.0.1:5000" },
			wantErr: ErrInvalidToolboxURL,
		},
		{
			name:    "toolbox url with bad scheme",
			mutate:  func(c *Config) { c.ToolboxURL = "ftp://127.0.0.1:5000" },
			wantErr: ErrInvalidToolboxURL,
		},
		{
			name:    "negative retry max",
			mutate:  func(c *Config) { c.RetryMax = -1 },
			wantErr: ErrInvalidRetry,
		},
		{
			name:    "retry max above ceiling",
			mutate:  func(c *Config) { c.RetryMax = MaxAllowedRetries + 1 },
			wantErr: ErrInvalidRetry,
		},
		{
			name:    "base delay above ceiling",
			mutate:  func(c *Config) { c.RetryBaseDelay = MaxAllowedBaseDelay + time.Second },
			wantErr: ErrInvalidRetry,
		},
		{
			name:    "negative cooldown",
			mutate:  func(c *Config) { c.RequestCooldown = -time.Second },
			wantErr: ErrInvalidRetry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			if err := cfg.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_OllamaNeedsNoAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	cfg := validConfig()
	cfg.Provider = ProviderOllama
	cfg.OllamaHost = "http://localhost:11434"
	cfg.ModelName = "llama3.3"

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_OllamaMissingHost(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Provider = ProviderOllama
	cfg.OllamaHost = ""

	if err := cfg.Validate(); !errors.Is(err, ErrInvalidOllamaHost) {
		t.Errorf("Validate() = %v, want ErrInvalidOllamaHost", err)
	}
}

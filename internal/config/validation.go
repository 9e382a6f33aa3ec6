package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	validProviders := []string{ProviderGemini, ProviderOllama, ProviderOpenAI}
	if !slices.Contains(validProviders, c.Provider) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidProvider, c.Provider, validProviders)
	}

	// API key presence depends on the provider; Ollama is local and needs none.
	switch c.Provider {
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host cannot be empty", ErrInvalidOllamaHost)
		}
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity)
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if err := validateToolboxURL(c.ToolboxURL); err != nil {
		return err
	}

	return c.validateRetry()
}

// ValidateToolbox checks only the fields needed to reach the toolbox MCP
// server. Commands that never invoke a model use this instead of Validate,
// so they work without any model API key.
func (c *Config) ValidateToolbox() error {
	if c == nil {
		return ErrConfigNil
	}
	return validateToolboxURL(c.ToolboxURL)
}

// validateRetry checks the retry tunables.
func (c *Config) validateRetry() error {
	if c.RetryMax < 0 || c.RetryMax > MaxAllowedRetries {
		return fmt.Errorf("%w: retry_max must be between 0 and %d, got %d",
			ErrInvalidRetry, MaxAllowedRetries, c.RetryMax)
	}
	if c.RetryBaseDelay < 0 || c.RetryBaseDelay > MaxAllowedBaseDelay {
		return fmt.Errorf("%w: retry_base_delay must be between 0 and %v, got %v",
			ErrInvalidRetry, MaxAllowedBaseDelay, c.RetryBaseDelay)
	}
	if c.RequestCooldown < 0 {
		return fmt.Errorf("%w: request_cooldown cannot be negative, got %v",
			ErrInvalidRetry, c.RequestCooldown)
	}
	return nil
}

// validateToolboxURL checks the toolbox URL is an absolute http(s) URL.
func validateToolboxURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: toolbox_url cannot be empty", ErrInvalidToolboxURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToolboxURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidToolboxURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host in %q", ErrInvalidToolboxURL, raw)
	}
	return nil
}

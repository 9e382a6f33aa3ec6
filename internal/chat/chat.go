// Package chat implements the rental assistant agent: one LLM invocation
// with tool calling, wrapped in a rate-limit-aware retry loop.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/filmdesk/filmdesk/internal/log"
)

const (
	// PromptName is the Dotprompt file for the rental assistant.
	// This corresponds to prompts/rental.prompt.
	// NOTE: the LLM model is configured in the Dotprompt file; Config.ModelName
	// overrides it when set.
	PromptName = "rental"

	// fallbackResponse is returned when the model produces an empty response.
	fallbackResponse = "I'm sorry, I couldn't come up with an answer. Could you rephrase your question?"
)

// Config contains all required parameters for the agent.
type Config struct {
	Genkit *genkit.Genkit
	Logger log.Logger
	Tools  []ai.Tool // Toolbox tools, already registered with Genkit

	ModelName   string  // Provider-qualified model name; empty uses the prompt file's model
	MaxTurns    int     // Maximum agentic tool-calling turns
	Language    string  // Response language preference
	Temperature float32 // Sampling temperature; zero uses the prompt file's value

	Retry RetryConfig // Zero value uses DefaultRetryConfig
}

// validate checks required parameters.
func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if len(cfg.Tools) == 0 {
		return errors.New("at least one tool is required")
	}
	return nil
}

// Agent answers rental questions by driving the model through the toolbox
// tools. It is stateless across calls: conversation history is owned by the
// caller (the session registry) and passed into every Invoke.
//
// All configuration is captured immutably at construction, so a single Agent
// is safe for concurrent use — though in practice each user session owns its
// own handle.
type Agent struct {
	modelName      string
	languagePrompt string
	maxTurns       int
	temperature    float32
	retry          RetryConfig

	g        *genkit.Genkit
	logger   log.Logger
	toolRefs []ai.ToolRef // cached at construction (ai.Tool implements ai.ToolRef)
	prompt   ai.Prompt
}

// New creates an agent handle from cfg.
func New(cfg Config) (*Agent, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 5
	}

	languagePrompt := cfg.Language
	if languagePrompt == "" || languagePrompt == "auto" {
		languagePrompt = "the same language as the user's input (auto-detect)"
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 && retry.BaseDelay == 0 {
		retry = DefaultRetryConfig()
	}

	toolRefs := make([]ai.ToolRef, len(cfg.Tools))
	for i, t := range cfg.Tools {
		toolRefs[i] = t
	}

	a := &Agent{
		modelName:      cfg.ModelName,
		languagePrompt: languagePrompt,
		maxTurns:       maxTurns,
		temperature:    cfg.Temperature,
		retry:          retry,
		g:              cfg.Genkit,
		logger:         cfg.Logger,
		toolRefs:       toolRefs,
	}

	a.prompt = genkit.LookupPrompt(a.g, PromptName)
	if a.prompt == nil {
		return nil, fmt.Errorf("dotprompt %q not found: ensure the prompts directory is configured correctly", PromptName)
	}

	a.logger.Debug("agent handle created",
		"tools", len(toolRefs),
		"max_turns", maxTurns)

	return a, nil
}

// Invoke runs one conversational turn: history plus the new user message go
// to the model, and the final text comes back. History is not mutated; the
// caller appends the exchange on success.
//
// Terminal failures are typed: *RateLimitError when the retry ceiling was
// reached on throttling, *UpstreamError for everything else.
func (a *Agent) Invoke(ctx context.Context, history []*ai.Message, message string) (string, error) {
	// Deep copy: Genkit's renderMessages mutates message content in place,
	// and the caller retains the history slice for future turns.
	messages := deepCopyMessages(history)
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(message)))

	opts := []ai.PromptExecuteOption{
		ai.WithInput(map[string]any{
			"language": a.languagePrompt,
		}),
		ai.WithMessagesFn(func(_ context.Context, _ any) ([]*ai.Message, error) {
			return messages, nil
		}),
		ai.WithTools(a.toolRefs...),
		ai.WithMaxTurns(a.maxTurns),
	}
	if a.modelName != "" {
		opts = append(opts, ai.WithModelName(a.modelName))
	}
	if a.temperature > 0 {
		opts = append(opts, ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature: float64(a.temperature),
		}))
	}

	resp, retries, err := runWithRetry(ctx, a.retry, a.logger, func(ctx context.Context) (*ai.ModelResponse, error) {
		return a.prompt.Execute(ctx, opts...)
	})
	if err != nil {
		return "", err
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" && len(resp.ToolRequests()) == 0 {
		a.logger.Warn("model returned empty response with no tool requests",
			"retries", retries)
		text = fallbackResponse
	}

	return text, nil
}

// deepCopyMessages creates independent copies of messages and their parts.
// Genkit modifies msg.Content in place during rendering, so reusing the
// same message objects across turns would corrupt the stored history.
func deepCopyMessages(msgs []*ai.Message) []*ai.Message {
	if msgs == nil {
		return nil
	}
	copied := make([]*ai.Message, len(msgs))
	for i, msg := range msgs {
		parts := make([]*ai.Part, len(msg.Content))
		for j, part := range msg.Content {
			parts[j] = deepCopyPart(part)
		}
		copied[i] = &ai.Message{
			Role:     msg.Role,
			Content:  parts,
			Metadata: shallowCopyMap(msg.Metadata),
		}
	}
	return copied
}

// deepCopyPart copies a part. ToolRequest.Input and ToolResponse.Output are
// reference copies: rendering only mutates the content slice, not tool data.
func deepCopyPart(p *ai.Part) *ai.Part {
	if p == nil {
		return nil
	}
	cp := &ai.Part{
		Kind:        p.Kind,
		ContentType: p.ContentType,
		Text:        p.Text,
		Custom:      shallowCopyMap(p.Custom),
		Metadata:    shallowCopyMap(p.Metadata),
	}
	if p.ToolRequest != nil {
		cp.ToolRequest = &ai.ToolRequest{
			Input: p.ToolRequest.Input,
			Name:  p.ToolRequest.Name,
			Ref:   p.ToolRequest.Ref,
		}
	}
	if p.ToolResponse != nil {
		cp.ToolResponse = &ai.ToolResponse{
			Name:   p.ToolResponse.Name,
			Output: p.ToolResponse.Output,
			Ref:    p.ToolResponse.Ref,
		}
	}
	if p.Resource != nil {
		cp.Resource = &ai.ResourcePart{Uri: p.Resource.Uri}
	}
	return cp
}

func shallowCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

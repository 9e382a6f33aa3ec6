package chat

import (
	"fmt"
	"strings"
)

// throttleSignals are the substrings that identify an upstream throttling
// failure. The primary signal is the HTTP 429 status the model API returns;
// the remaining aliases cover provider SDKs that rephrase it.
//
// NOTE: string matching is used because Genkit and the provider SDKs do not
// expose typed errors for throttling. The classification happens exactly
// once, where the failure is first observed, and produces a typed error;
// nothing downstream inspects error text.
var throttleSignals = []string{
	"429",
	"too many requests",
	"rate limit",
	"resource exhausted",
	"quota exceeded",
}

// throttled reports whether err carries an upstream rate-limit signal.
// Matching is case-insensitive.
func throttled(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range throttleSignals {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// RateLimitError is the terminal outcome when the retry ceiling is reached
// while the upstream kept throttling. It is distinct from UpstreamError so
// the HTTP layer can surface a 429 with retry context.
type RateLimitError struct {
	Retries int // retries consumed before giving up
	cause   error
}

// NewRateLimitError wraps cause as a rate-limit exhaustion after the given
// number of retries.
func NewRateLimitError(retries int, cause error) *RateLimitError {
	return &RateLimitError{Retries: retries, cause: cause}
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded after %d retries; wait a few minutes before trying again", e.Retries)
}

func (e *RateLimitError) Unwrap() error { return e.cause }

// UpstreamError is the terminal outcome for any non-throttling agent
// failure. Its message is truncated to the last line of the underlying
// error so stack-trace-like payloads never reach clients.
type UpstreamError struct {
	cause error
}

// NewUpstreamError wraps cause as a terminal, non-retryable failure.
func NewUpstreamError(cause error) *UpstreamError {
	return &UpstreamError{cause: cause}
}

func (e *UpstreamError) Error() string { return lastLine(e.cause.Error()) }

func (e *UpstreamError) Unwrap() error { return e.cause }

// lastLine returns the final non-empty line of s.
func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

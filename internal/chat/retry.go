package chat

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/filmdesk/filmdesk/internal/log"
)

// RetryConfig configures the rate-limit retry behavior for agent calls.
type RetryConfig struct {
	MaxRetries int           // Retry ceiling for throttled attempts
	BaseDelay  time.Duration // Backoff base; retry n waits BaseDelay*2^n plus jitter
	Cooldown   time.Duration // Fixed wait before every attempt, regardless of outcome
	JitterMin  time.Duration // Lower bound of per-retry jitter
	JitterMax  time.Duration // Upper bound of per-retry jitter
}

// DefaultRetryConfig returns the defaults the rental backend was tuned
// against: 5 retries, 5s backoff base, 2s pre-request cooldown, 1-2s jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  5 * time.Second,
		Cooldown:   2 * time.Second,
		JitterMin:  1 * time.Second,
		JitterMax:  2 * time.Second,
	}
}

// invokeFunc is a single attempt against the model.
type invokeFunc func(context.Context) (*ai.ModelResponse, error)

// runWithRetry executes call with the cooldown-then-attempt loop:
//
//   - wait Cooldown before every attempt (throttles request rate regardless
//     of outcome)
//   - a throttled failure below the ceiling backs off BaseDelay*2^n + jitter
//     (n counts retries, starting at 1) and attempts again
//   - a throttled failure at the ceiling returns *RateLimitError
//   - any other failure returns *UpstreamError immediately
//
// Every wait observes ctx, so a canceled request abandons the loop instead
// of sleeping through the remaining backoff.
//
// Returns the response and the number of retries consumed.
func runWithRetry(ctx context.Context, cfg RetryConfig, logger log.Logger, call invokeFunc) (*ai.ModelResponse, int, error) {
	retries := 0
	start := time.Now()

	for {
		if err := wait(ctx, cfg.Cooldown); err != nil {
			return nil, retries, fmt.Errorf("cooldown interrupted: %w", err)
		}

		resp, err := call(ctx)
		if err == nil {
			logger.Debug("agent call succeeded",
				"retries", retries,
				"elapsed", time.Since(start))
			return resp, retries, nil
		}

		// Classify once, at the point the failure is observed.
		if !throttled(err) {
			return nil, retries, &UpstreamError{cause: err}
		}

		if retries >= cfg.MaxRetries {
			logger.Warn("rate limit retries exhausted",
				"retries", retries,
				"elapsed", time.Since(start))
			return nil, retries, &RateLimitError{Retries: retries, cause: err}
		}

		retries++
		delay := cfg.BaseDelay<<uint(retries) + jitter(cfg.JitterMin, cfg.JitterMax)
		logger.Info("rate limit hit, backing off",
			"retry", retries,
			"max_retries", cfg.MaxRetries,
			"delay", delay)

		if err := wait(ctx, delay); err != nil {
			return nil, retries, fmt.Errorf("backoff interrupted: %w", err)
		}
	}
}

// wait sleeps for d or until ctx is done, whichever comes first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// jitter draws a uniform duration from [min, max]. Jitter desynchronizes
// concurrent sessions so their retries do not land in lockstep.
func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min)
}

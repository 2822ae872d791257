// Package middleware provides reusable decorators for completion providers.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devhub/devhub-go/adapter/llm"
	"github.com/devhub/devhub-go/devhub"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial attempt).
	// Default: 3
	MaxAttempts int `yaml:"maxAttempts"`

	// InitialBackoff is the initial backoff duration.
	// Default: 500ms
	InitialBackoff time.Duration `yaml:"initialBackoff"`

	// MaxBackoff is the maximum backoff duration.
	// Default: 8s
	MaxBackoff time.Duration `yaml:"maxBackoff"`

	// BackoffMultiplier is the multiplier for exponential backoff.
	// Default: 2.0
	BackoffMultiplier float64 `yaml:"backoffMultiplier"`

	// ShouldRetry determines if an error should trigger a retry.
	// If nil, every error except cancellation of the caller's context does.
	ShouldRetry func(error) bool `yaml:"-"`
}

// DefaultRetryConfig returns a retry config with sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        8 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// RetryDecorator wraps a completion provider with retry logic.
type RetryDecorator struct {
	next   llm.LLM
	config RetryConfig
}

var _ llm.LLM = (*RetryDecorator)(nil)

// NewRetryDecorator creates a new retry decorator.
func NewRetryDecorator(next llm.LLM, config RetryConfig) *RetryDecorator {
	defaults := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.BackoffMultiplier <= 0 {
		config.BackoffMultiplier = defaults.BackoffMultiplier
	}

	return &RetryDecorator{
		next:   next,
		config: config,
	}
}

// Model returns the model of the wrapped provider.
func (r *RetryDecorator) Model() string {
	return r.next.Model()
}

// Unwrap returns the wrapped provider's client.
func (r *RetryDecorator) Unwrap() interface{} {
	return r.next.Unwrap()
}

// Complete calls the wrapped provider until it succeeds, the error is not
// retryable, or attempts run out.
func (r *RetryDecorator) Complete(ctx context.Context, messages []*devhub.Message, opts ...llm.CallOption) (*devhub.Message, error) {
	var lastErr error
	backoff := r.config.InitialBackoff

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		response, err := r.next.Complete(ctx, messages, opts...)
		if err == nil {
			return response, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("retry cancelled after %d attempts: %w", attempt, err)
		}
		if !r.retryable(err) {
			return nil, fmt.Errorf("non-retryable error on attempt %d/%d: %w", attempt, r.config.MaxAttempts, err)
		}

		// Don't sleep after the last attempt
		if attempt == r.config.MaxAttempts {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("retry cancelled after %d attempts: %w", attempt, ctx.Err())
		case <-timer.C:
			backoff = time.Duration(float64(backoff) * r.config.BackoffMultiplier)
			if backoff > r.config.MaxBackoff {
				backoff = r.config.MaxBackoff
			}
		}
	}

	return nil, fmt.Errorf("max retry attempts (%d) exceeded: %w", r.config.MaxAttempts, lastErr)
}

func (r *RetryDecorator) retryable(err error) bool {
	if r.config.ShouldRetry != nil {
		return r.config.ShouldRetry(err)
	}
	return !errors.Is(err, context.Canceled)
}

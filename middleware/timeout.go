package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devhub/devhub-go/adapter/llm"
	"github.com/devhub/devhub-go/devhub"
)

// DefaultTimeout bounds one completion call.
const DefaultTimeout = 60 * time.Second

// TimeoutError is returned when a completion call exceeds its deadline.
type TimeoutError struct {
	Model   string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("completion from model '%s' timed out after %v", e.Model, e.Timeout)
}

// Unwrap lets errors.Is match context.DeadlineExceeded.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// TimeoutDecorator wraps a completion provider with a per-call deadline.
// The call runs in a goroutine so a provider that ignores its context
// still releases the caller on time.
type TimeoutDecorator struct {
	next    llm.LLM
	timeout time.Duration
}

var _ llm.LLM = (*TimeoutDecorator)(nil)

// NewTimeoutDecorator creates a new timeout decorator. A non-positive
// timeout uses DefaultTimeout.
func NewTimeoutDecorator(next llm.LLM, timeout time.Duration) *TimeoutDecorator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TimeoutDecorator{next: next, timeout: timeout}
}

// Model returns the model of the wrapped provider.
func (t *TimeoutDecorator) Model() string {
	return t.next.Model()
}

// Unwrap returns the wrapped provider's client.
func (t *TimeoutDecorator) Unwrap() interface{} {
	return t.next.Unwrap()
}

// Complete implements llm.LLM with timeout protection.
func (t *TimeoutDecorator) Complete(ctx context.Context, messages []*devhub.Message, opts ...llm.CallOption) (*devhub.Message, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		msg *devhub.Message
		err error
	}

	// Buffered so the goroutine never leaks after a timeout.
	done := make(chan result, 1)
	go func() {
		msg, err := t.next.Complete(timeoutCtx, messages, opts...)
		done <- result{msg: msg, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &TimeoutError{Model: t.next.Model(), Timeout: t.timeout}
		}
		return res.msg, res.err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TimeoutError{Model: t.next.Model(), Timeout: t.timeout}
	}
}

// Package llm provides the completion capability used by the orchestrator.
//
// The interface is intentionally small: the orchestrator only needs one
// request/response call per phase. Provider-specific features stay reachable
// through Unwrap.
package llm

import (
	"context"

	"github.com/devhub/devhub-go/devhub"
)

// LLM is the minimal completion interface.
//
// Example:
//
//	llm := NewOpenAILLM(OpenAIConfig{APIKey: "sk-...", Model: "gpt-4o-mini"})
//	messages := []*devhub.Message{
//	    devhub.NewMessage(devhub.RoleSystem, "Respond only with valid JSON."),
//	    devhub.NewMessage(devhub.RoleUser, "Which tools should I call?"),
//	}
//	response, err := llm.Complete(ctx, messages, WithTemperature(0.1), WithMaxTokens(256))
type LLM interface {
	// Complete sends the conversation and returns a single assistant message.
	// Provider data such as token usage is placed in the response metadata
	// under "model", "usage" and "finish_reason".
	Complete(ctx context.Context, messages []*devhub.Message, opts ...CallOption) (*devhub.Message, error)

	// Model returns the model identifier for this LLM instance.
	Model() string

	// Unwrap returns the underlying provider client for advanced features.
	//
	// Warning:
	//   Using Unwrap() breaks provider portability.
	Unwrap() interface{}
}

// CallOptions holds provider-specific options for LLM calls.
type CallOptions struct {
	// Common options
	Temperature *float64
	MaxTokens   *int
	TopP        *float64

	// Provider-specific options
	Extra map[string]interface{}
}

// CallOption is a functional option for configuring LLM calls.
type CallOption func(*CallOptions)

// WithTemperature sets the sampling temperature (typically 0.0-2.0).
func WithTemperature(temperature float64) CallOption {
	return func(opts *CallOptions) {
		opts.Temperature = &temperature
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(maxTokens int) CallOption {
	return func(opts *CallOptions) {
		opts.MaxTokens = &maxTokens
	}
}

// WithTopP sets the nucleus sampling parameter.
func WithTopP(topP float64) CallOption {
	return func(opts *CallOptions) {
		opts.TopP = &topP
	}
}

// WithExtra adds a provider-specific option.
func WithExtra(key string, value interface{}) CallOption {
	return func(opts *CallOptions) {
		if opts.Extra == nil {
			opts.Extra = make(map[string]interface{})
		}
		opts.Extra[key] = value
	}
}

// BuildCallOptions creates CallOptions from functional options.
func BuildCallOptions(opts ...CallOption) *CallOptions {
	options := &CallOptions{
		Extra: make(map[string]interface{}),
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// Usage is the token accounting attached to responses under "usage".
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageOf extracts token usage from a response, if the provider reported it.
func UsageOf(msg *devhub.Message) (Usage, bool) {
	if msg == nil || msg.Metadata == nil {
		return Usage{}, false
	}
	u, ok := msg.Metadata["usage"].(Usage)
	return u, ok
}

func newResponse(content, model string) *devhub.Message {
	msg := devhub.NewMessage(devhub.RoleAssistant, content)
	msg.Metadata["model"] = model
	return msg
}

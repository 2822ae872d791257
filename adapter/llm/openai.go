package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/devhub/devhub-go/devhub"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig holds configuration for the OpenAI adapter.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key.
	APIKey string

	// Model is the model identifier (default: gpt-4o-mini).
	Model string

	// BaseURL points the client at an OpenAI-compatible gateway such as
	// Ollama (http://localhost:11434/v1) or a LiteLLM proxy (optional).
	BaseURL string

	// Organization is the OpenAI organization ID (optional).
	Organization string
}

// OpenAILLM is an adapter for OpenAI chat models and compatible gateways.
//
// Provider-specific options:
//
//	response, err := llm.Complete(
//	    ctx,
//	    messages,
//	    WithTemperature(0.3),
//	    WithMaxTokens(1024),
//	    WithExtra("frequency_penalty", 0.5),
//	    WithExtra("stop", []string{"\n\n"}),
//	)
type OpenAILLM struct {
	client *openai.Client
	model  string
}

// NewOpenAILLM creates a new OpenAI LLM adapter.
func NewOpenAILLM(cfg OpenAIConfig) *OpenAILLM {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Organization != "" {
		clientCfg.OrgID = cfg.Organization
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	return &OpenAILLM{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}
}

// Model returns the model identifier.
func (o *OpenAILLM) Model() string {
	return o.model
}

// Complete generates a chat completion.
func (o *OpenAILLM) Complete(ctx context.Context, messages []*devhub.Message, opts ...CallOption) (*devhub.Message, error) {
	options := BuildCallOptions(opts...)

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: o.convertMessages(messages),
	}

	if options.Temperature != nil {
		req.Temperature = float32(*options.Temperature)
	}
	if options.MaxTokens != nil {
		req.MaxTokens = *options.MaxTokens
	}
	if options.TopP != nil {
		req.TopP = float32(*options.TopP)
	}

	if fp, ok := options.Extra["frequency_penalty"].(float64); ok {
		req.FrequencyPenalty = float32(fp)
	}
	if pp, ok := options.Extra["presence_penalty"].(float64); ok {
		req.PresencePenalty = float32(pp)
	}
	if stop, ok := options.Extra["stop"].([]string); ok {
		req.Stop = stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	response := newResponse(resp.Choices[0].Message.Content, resp.Model)
	response.Metadata["usage"] = Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	response.Metadata["finish_reason"] = string(resp.Choices[0].FinishReason)
	response.Metadata["id"] = resp.ID
	return response, nil
}

// convertMessages converts DevHub messages to OpenAI format. Unknown roles
// are sent as assistant turns.
func (o *OpenAILLM) convertMessages(messages []*devhub.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleAssistant
		switch msg.Role {
		case devhub.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case devhub.RoleUser:
			role = openai.ChatMessageRoleUser
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return out
}

// Unwrap returns the underlying *openai.Client.
func (o *OpenAILLM) Unwrap() interface{} {
	return o.client
}

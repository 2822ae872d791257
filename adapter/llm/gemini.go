package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/devhub/devhub-go/devhub"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiLLM is an adapter for Google's Gemini models.
//
// Provider-specific options:
//
//	response, err := llm.Complete(
//	    ctx,
//	    messages,
//	    WithTemperature(0.3),
//	    WithExtra("top_k", 40),
//	    WithExtra("stop_sequences", []string{"END"}),
//	)
type GeminiLLM struct {
	client *genai.Client
	model  string
}

// NewGeminiLLM creates a new Gemini LLM adapter.
func NewGeminiLLM(ctx context.Context, apiKey, model string) (*GeminiLLM, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiLLM{client: client, model: model}, nil
}

// Model returns the model identifier.
func (g *GeminiLLM) Model() string {
	return g.model
}

// Complete generates a completion from Gemini.
func (g *GeminiLLM) Complete(ctx context.Context, messages []*devhub.Message, opts ...CallOption) (*devhub.Message, error) {
	options := BuildCallOptions(opts...)

	model := g.client.GenerativeModel(g.model)
	configureModel(model, options)

	system, history, last := convertGeminiMessages(messages)
	if len(last) == 0 {
		return nil, errors.New("gemini requires at least one non-system message")
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	session := model.StartChat()
	session.History = history

	resp, err := session.SendMessage(ctx, last...)
	if err != nil {
		return nil, fmt.Errorf("gemini api error: %w", err)
	}

	response := newResponse(extractContent(resp), g.model)
	if resp.UsageMetadata != nil {
		response.Metadata["usage"] = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != 0 {
		response.Metadata["finish_reason"] = resp.Candidates[0].FinishReason.String()
	}
	return response, nil
}

// convertGeminiMessages joins system messages into one instruction and
// splits the rest into chat history plus the final turn to send.
func convertGeminiMessages(messages []*devhub.Message) (string, []*genai.Content, []genai.Part) {
	var (
		system []string
		turns  []*devhub.Message
	)
	for _, msg := range messages {
		if msg.Role == devhub.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}
	if len(turns) == 0 {
		return strings.Join(system, "\n\n"), nil, nil
	}

	history := make([]*genai.Content, 0, len(turns)-1)
	for _, msg := range turns[:len(turns)-1] {
		role := "model"
		if msg.Role == devhub.RoleUser {
			role = "user"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	last := []genai.Part{genai.Text(turns[len(turns)-1].Content)}
	return strings.Join(system, "\n\n"), history, last
}

func configureModel(model *genai.GenerativeModel, options *CallOptions) {
	if options.Temperature != nil {
		model.SetTemperature(float32(*options.Temperature))
	}
	if options.MaxTokens != nil {
		model.SetMaxOutputTokens(int32(*options.MaxTokens))
	}
	if options.TopP != nil {
		model.SetTopP(float32(*options.TopP))
	}
	if topK, ok := options.Extra["top_k"].(int); ok {
		model.SetTopK(int32(topK))
	}
	if stopSequences, ok := options.Extra["stop_sequences"].([]string); ok {
		model.StopSequences = stopSequences
	}
}

func extractContent(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}

// Close closes the Gemini client.
func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Unwrap returns the underlying *genai.Client.
func (g *GeminiLLM) Unwrap() interface{} {
	return g.client
}

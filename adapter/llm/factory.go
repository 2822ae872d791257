package llm

import (
	"context"
	"fmt"
	"strings"
)

// Supported providers.
const (
	ProviderOpenAI  = "openai"
	ProviderBedrock = "bedrock"
	ProviderGemini  = "gemini"
)

// ProviderConfig selects and configures a completion provider.
type ProviderConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`

	// OpenAI-compatible gateways.
	BaseURL      string `yaml:"baseURL"`
	Organization string `yaml:"organization"`

	// Bedrock.
	Region      string `yaml:"region"`
	Profile     string `yaml:"profile"`
	EndpointURL string `yaml:"endpointURL"`
}

// New builds the adapter named by cfg.Provider. An empty provider means
// OpenAI.
func New(ctx context.Context, cfg ProviderConfig) (LLM, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAILLM(OpenAIConfig{
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			BaseURL:      cfg.BaseURL,
			Organization: cfg.Organization,
		}), nil
	case ProviderBedrock:
		return NewBedrockLLM(ctx, BedrockConfig{
			ModelID:     cfg.Model,
			Region:      cfg.Region,
			Profile:     cfg.Profile,
			EndpointURL: cfg.EndpointURL,
		})
	case ProviderGemini:
		return NewGeminiLLM(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q (want %s, %s or %s)",
			cfg.Provider, ProviderOpenAI, ProviderBedrock, ProviderGemini)
	}
}

package llm

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/devhub/devhub-go/devhub"
)

// BedrockLLM is an adapter for Amazon Bedrock foundation models through the
// Converse API.
//
// Supports the full AWS credential chain: explicit keys, shared profiles,
// environment variables, and IAM roles.
//
// Example:
//
//	llm, err := NewBedrockLLM(ctx, BedrockConfig{
//	    ModelID: "anthropic.claude-3-5-haiku-20241022-v1:0",
//	    Region:  "us-west-2",
//	})
type BedrockLLM struct {
	client  *bedrockruntime.Client
	modelID string
}

// BedrockConfig holds configuration for creating a Bedrock LLM adapter.
type BedrockConfig struct {
	// ModelID is the Bedrock model identifier.
	ModelID string

	// Region is the AWS region (default: us-east-1)
	Region string

	// Profile is the AWS profile name (optional)
	Profile string

	// AccessKeyID is the AWS access key (optional)
	AccessKeyID string

	// SecretAccessKey is the AWS secret key (optional)
	SecretAccessKey string

	// SessionToken is the AWS session token (optional)
	SessionToken string

	// EndpointURL is a custom endpoint URL for VPC endpoints (optional)
	EndpointURL string
}

// DefaultBedrockModel is used when no model ID is configured.
const DefaultBedrockModel = "anthropic.claude-3-5-haiku-20241022-v1:0"

// NewBedrockLLM creates a new Bedrock LLM adapter.
func NewBedrockLLM(ctx context.Context, cfg BedrockConfig) (*BedrockLLM, error) {
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultBedrockModel
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	configOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*bedrockruntime.Options)
	if cfg.EndpointURL != "" {
		clientOpts = append(clientOpts, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		})
	}

	return &BedrockLLM{
		client:  bedrockruntime.NewFromConfig(awsConfig, clientOpts...),
		modelID: cfg.ModelID,
	}, nil
}

// Model returns the model identifier.
func (b *BedrockLLM) Model() string {
	return b.modelID
}

// Complete generates a completion through Converse.
func (b *BedrockLLM) Complete(ctx context.Context, messages []*devhub.Message, opts ...CallOption) (*devhub.Message, error) {
	options := BuildCallOptions(opts...)
	bedrockMessages, systemPrompts := b.convertMessages(messages)

	inferenceConfig := &types.InferenceConfiguration{}
	if options.Temperature != nil {
		inferenceConfig.Temperature = aws.Float32(float32(*options.Temperature))
	}
	maxTokens := 1024
	if options.MaxTokens != nil {
		maxTokens = *options.MaxTokens
	}
	inferenceConfig.MaxTokens = aws.Int32(int32(maxTokens))
	if options.TopP != nil {
		inferenceConfig.TopP = aws.Float32(float32(*options.TopP))
	}
	if stopSeq, ok := options.Extra["stopSequences"].([]string); ok && len(stopSeq) > 0 {
		inferenceConfig.StopSequences = stopSeq
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(b.modelID),
		Messages:        bedrockMessages,
		InferenceConfig: inferenceConfig,
	}
	if len(systemPrompts) > 0 {
		input.System = systemPrompts
	}

	output, err := b.client.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bedrock api error: %w", err)
	}

	var content string
	if msg, ok := output.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if textBlock, ok := block.(*types.ContentBlockMemberText); ok {
				content += textBlock.Value
			}
		}
	}

	response := newResponse(content, b.modelID)
	if output.Usage != nil {
		response.Metadata["usage"] = Usage{
			PromptTokens:     int(aws.ToInt32(output.Usage.InputTokens)),
			CompletionTokens: int(aws.ToInt32(output.Usage.OutputTokens)),
			TotalTokens:      int(aws.ToInt32(output.Usage.TotalTokens)),
		}
	}
	if output.StopReason != "" {
		response.Metadata["finish_reason"] = string(output.StopReason)
	}
	return response, nil
}

// convertMessages converts DevHub messages to Converse format. System
// messages go to the separate system parameter.
func (b *BedrockLLM) convertMessages(messages []*devhub.Message) ([]types.Message, []types.SystemContentBlock) {
	var bedrockMessages []types.Message
	var systemPrompts []types.SystemContentBlock

	for _, msg := range messages {
		if msg.Role == devhub.RoleSystem {
			systemPrompts = append(systemPrompts, &types.SystemContentBlockMemberText{Value: msg.Content})
			continue
		}

		role := types.ConversationRoleAssistant
		if msg.Role == devhub.RoleUser {
			role = types.ConversationRoleUser
		}
		bedrockMessages = append(bedrockMessages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: msg.Content}},
		})
	}
	return bedrockMessages, systemPrompts
}

// Unwrap returns the underlying *bedrockruntime.Client.
func (b *BedrockLLM) Unwrap() interface{} {
	return b.client
}

package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIEmbeddings generates embeddings with the OpenAI embeddings API.
type OpenAIEmbeddings struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dim    int
}

// NewOpenAIEmbeddings creates an embeddings provider. An empty model
// selects text-embedding-3-small.
func NewOpenAIEmbeddings(client *openai.Client, model string) *OpenAIEmbeddings {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	dim := 1536
	if openai.EmbeddingModel(model) == openai.LargeEmbedding3 {
		dim = 3072
	}
	return &OpenAIEmbeddings{
		client: client,
		model:  openai.EmbeddingModel(model),
		dim:    dim,
	}
}

// Dimension returns the embedding dimension.
func (o *OpenAIEmbeddings) Dimension() int {
	return o.dim
}

// Embed calls the embeddings endpoint for a single input.
func (o *OpenAIEmbeddings) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: o.model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings error: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai returned no embeddings")
	}

	raw := resp.Data[0].Embedding
	vec := make([]float64, len(raw))
	for i, v := range raw {
		vec[i] = float64(v)
	}
	return vec, nil
}

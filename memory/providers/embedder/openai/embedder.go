package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/w-h-a/therapist/memory/providers/embedder"
)

type openAIEmbedder struct {
	options embedder.Options
	client  *openai.Client
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.options.Model),
	}

	// ada-002 has a fixed size and rejects the dimensions parameter.
	if e.options.Dimension > 0 && req.Model != openai.AdaEmbeddingV2 {
		req.Dimensions = e.options.Dimension
	}

	rsp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}

	var vec []float32
	if len(rsp.Data) > 0 {
		vec = rsp.Data[0].Embedding
	}

	if err := embedder.CheckDimension(vec, e.options.Dimension); err != nil {
		return nil, fmt.Errorf("openai embed %s: %w", e.options.Model, err)
	}

	return vec, nil
}

// NewEmbedder defaults to text-embedding-3-small, shortened to WithDimension
// when one is given.
func NewEmbedder(opts ...embedder.Option) embedder.Embedder {
	options := embedder.NewOptions(opts...)

	if len(options.Model) == 0 {
		options.Model = string(openai.SmallEmbedding3)
	}

	config := openai.DefaultConfig(options.ApiKey)
	if len(options.Location) > 0 {
		config.BaseURL = options.Location
	}

	return &openAIEmbedder{
		options: options,
		client:  openai.NewClientWithConfig(config),
	}
}

package google

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/w-h-a/therapist/memory/providers/embedder"
	genaiopt "google.golang.org/api/option"
)

// embedding-001 always returns 768 values.
const defaultModel = "models/embedding-001"

type googleEmbedder struct {
	options embedder.Options
	client  *genai.Client
	model   *genai.EmbeddingModel
}

func (e *googleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	rsp, err := e.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}

	var vec []float32
	if rsp != nil && rsp.Embedding != nil {
		vec = rsp.Embedding.Values
	}

	if err := embedder.CheckDimension(vec, e.options.Dimension); err != nil {
		return nil, fmt.Errorf("gemini embed %s: %w", e.options.Model, err)
	}

	return vec, nil
}

func (e *googleEmbedder) Close() error {
	return e.client.Close()
}

func NewEmbedder(opts ...embedder.Option) embedder.Embedder {
	options := embedder.NewOptions(opts...)

	if len(options.Model) == 0 {
		options.Model = defaultModel
	}

	clientOpts := []genaiopt.ClientOption{genaiopt.WithAPIKey(options.ApiKey)}
	if len(options.Location) > 0 {
		clientOpts = append(clientOpts, genaiopt.WithEndpoint(options.Location))
	}

	client, err := genai.NewClient(options.Context, clientOpts...)
	if err != nil {
		panic(err)
	}

	return &googleEmbedder{
		options: options,
		client:  client,
		model:   client.EmbeddingModel(options.Model),
	}
}

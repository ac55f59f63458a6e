package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/tailored-agentic-units/stepflow/config"
	"github.com/tailored-agentic-units/stepflow/retrieval"
)

// DefaultEmbeddingModel is used when NewEmbedder is given no model.
const DefaultEmbeddingModel = openai.EmbeddingModelTextEmbedding3Small

// Embedder implements retrieval.Embedder with the OpenAI Embeddings API.
type Embedder struct {
	client *openai.Client
	model  string
}

var _ retrieval.Embedder = (*Embedder)(nil)

// NewEmbedder reuses the provider credentials; model overrides the
// embedding model.
func NewEmbedder(cfg config.ProviderConfig, model string) (*Embedder, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = string(DefaultEmbeddingModel)
	}
	return &Embedder{client: client, model: model}, nil
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("openai returned embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

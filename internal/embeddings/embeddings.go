// Package embeddings turns text into vectors for the store commands.
package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/nickcecere/vectorkit/internal/config"
)

// Provider names accepted by embeddings.provider.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// ErrNoEmbedding is returned when a provider answers without a vector.
var ErrNoEmbedding = errors.New("no embedding returned")

// Embedder produces vectors for documents and queries. Some models embed the
// two differently, so they are separate calls.
type Embedder interface {
	// EmbedDocuments returns one vector per text, in order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery returns the vector for a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions is the vector width, updated after the first response.
	Dimensions() int

	// Model is the model name.
	Model() string
}

// Known model dimensions
var modelDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// ModelDimensions returns the known width of a model, or 0 if unknown.
func ModelDimensions(model string) int {
	return modelDimensions[model]
}

// New creates the embedder selected by cfg.Provider.
func New(cfg config.EmbeddingsConfig) (Embedder, error) {
	switch cfg.Provider {
	case ProviderOllama, "":
		return NewOllama(cfg.Ollama.URL, cfg.Ollama.Model), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.BaseURL, cfg.OpenAI.Dimensions)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// inBatches calls fn on consecutive slices of at most size texts and
// concatenates the results.
func inBatches(ctx context.Context, texts []string, size int, fn func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		vectors, err := fn(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("expected %d embeddings, got %d", end-start, len(vectors))
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func first(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, ErrNoEmbedding
	}
	return vectors[0], nil
}

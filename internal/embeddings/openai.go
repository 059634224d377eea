package embeddings

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// openAIBatchSize stays well under the API's 2048 inputs per request.
const openAIBatchSize = 256

// OpenAI embeds text through the OpenAI embeddings API or a compatible server.
type OpenAI struct {
	client openai.Client
	model  string
	// requested is sent as the dimensions parameter when positive.
	requested  int
	dimensions int
}

// NewOpenAI creates an OpenAI embedder.
func NewOpenAI(apiKey, model, baseURL string, dimensions int) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	known := dimensions
	if known == 0 {
		known = ModelDimensions(model)
	}
	if known == 0 {
		known = 1536
		log.Debug("Unknown model dimensions, defaulting", "model", model, "dimensions", known)
	}

	return &OpenAI{
		client:     openai.NewClient(opts...),
		model:      model,
		requested:  dimensions,
		dimensions: known,
	}, nil
}

// EmbedDocuments embeds texts in API-sized batches.
func (o *OpenAI) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return inBatches(ctx, texts, openAIBatchSize, o.embed)
}

// EmbedQuery embeds a single query. OpenAI models take no task prefix.
func (o *OpenAI) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return first(vectors)
}

func (o *OpenAI) Dimensions() int { return o.dimensions }

func (o *OpenAI) Model() string { return o.model }

func (o *OpenAI) embed(ctx context.Context, texts []string) ([][]float32, error) {
	log.Debug("Requesting embeddings from OpenAI", "model", o.model, "count", len(texts))

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(o.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if o.requested > 0 {
		params.Dimensions = openai.Int(int64(o.requested))
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	// Results carry their input index and may arrive out of order.
	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		idx := int(data.Index)
		if idx < 0 || idx >= len(vectors) {
			continue
		}
		vec := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vec[i] = float32(v)
		}
		vectors[idx] = vec
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w for input %d", ErrNoEmbedding, i)
		}
	}

	if len(vectors) > 0 {
		o.dimensions = len(vectors[0])
	}
	return vectors, nil
}

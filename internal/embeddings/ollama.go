package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	ollamaBatchSize    = 32
	fallbackDimensions = 768
)

// Task prefixes for models trained with asymmetric inputs.
var taskPrefixes = map[string]struct {
	document string
	query    string
}{
	"nomic-embed-text": {
		document: "search_document: ",
		query:    "search_query: ",
	},
	"mxbai-embed-large": {
		query: "Represent this sentence for searching relevant passages: ",
	},
}

// Ollama embeds text through a local Ollama server's /api/embed endpoint.
type Ollama struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

type ollamaEmbedRequest struct {
	Model    string   `json:"model"`
	Input    []string `json:"input"`
	Truncate bool     `json:"truncate,omitempty"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// NewOllama creates an Ollama embedder. An empty baseURL uses localhost.
func NewOllama(baseURL, model string) *Ollama {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}

	dimensions := ModelDimensions(model)
	if dimensions == 0 {
		dimensions = fallbackDimensions
		log.Debug("Unknown model dimensions, defaulting", "model", model, "dimensions", dimensions)
	}

	return &Ollama{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

// EmbedDocuments embeds texts with the model's document prefix.
func (o *Ollama) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	prefixed := make([]string, len(texts))
	for i, text := range texts {
		prefixed[i] = o.applyPrefix(text, false)
	}
	return inBatches(ctx, prefixed, ollamaBatchSize, o.embed)
}

// EmbedQuery embeds text with the model's query prefix.
func (o *Ollama) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.embed(ctx, []string{o.applyPrefix(text, true)})
	if err != nil {
		return nil, err
	}
	return first(vectors)
}

func (o *Ollama) Dimensions() int { return o.dimensions }

func (o *Ollama) Model() string { return o.model }

func (o *Ollama) applyPrefix(text string, isQuery bool) string {
	prefixes, ok := taskPrefixes[o.model]
	if !ok {
		return text
	}
	if isQuery {
		return prefixes.query + text
	}
	return prefixes.document + text
}

func (o *Ollama) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Input: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug("Requesting embeddings from Ollama", "model", o.model, "count", len(texts))

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Embeddings) > 0 && len(result.Embeddings[0]) > 0 {
		o.dimensions = len(result.Embeddings[0])
	}
	return result.Embeddings, nil
}

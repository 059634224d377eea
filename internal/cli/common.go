package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nickcecere/vectorkit/internal/config"
	"github.com/nickcecere/vectorkit/internal/embeddings"
	"github.com/nickcecere/vectorkit/internal/store"
	"github.com/nickcecere/vectorkit/internal/store/backend"
)

// openStore opens the configured backend with debug-log metrics.
func openStore(ctx context.Context) (store.Store, error) {
	return backend.New(ctx, config.Get().Store, backend.WithMetrics(store.LogMetrics{}))
}

func openEmbedder() (embeddings.Embedder, error) {
	emb, err := embeddings.New(config.Get().Embeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}
	return emb, nil
}

func namespace() string {
	return store.Namespace(config.Get().Store.Namespace)
}

// parseFilters turns key=value pairs into filters. A value that parses as
// JSON keeps its JSON type (page=2 is a number, draft=true a bool); anything
// else is a string. Quote a value to force a string: id="2".
func parseFilters(pairs []string) (store.Filters, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	filters := make(store.Filters, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q: expected key=value", pair)
		}

		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		filters[key] = value
	}
	return filters, nil
}

// parseVector decodes a JSON array of numbers.
func parseVector(raw string) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, fmt.Errorf("invalid vector: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("invalid vector: empty")
	}
	return vec, nil
}

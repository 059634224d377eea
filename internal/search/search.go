// Package search answers natural-language queries against a vector store.
package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/vectorkit/internal/embeddings"
	"github.com/nickcecere/vectorkit/internal/indexer"
	"github.com/nickcecere/vectorkit/internal/store"
)

// DefaultTopK is used when Options.TopK is zero.
const DefaultTopK = 10

// ErrEmptyQuery is returned for a blank query.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Searcher embeds queries and runs them against a store.
type Searcher struct {
	store    store.Store
	embedder embeddings.Embedder
}

// Options configures a search.
type Options struct {
	Namespace string

	// TopK is the maximum number of results to return.
	TopK int

	// MinScore drops results below this similarity score.
	MinScore float64

	Filters store.Filters
}

// New creates a new Searcher.
func New(st store.Store, emb embeddings.Embedder) *Searcher {
	return &Searcher{
		store:    st,
		embedder: emb,
	}
}

// Search embeds query and returns the nearest items, highest score first.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]store.QueryResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	topK := opts.TopK
	if topK == 0 {
		topK = DefaultTopK
	}

	log.Debug("Generating query embedding", "query", truncate(query, 50))
	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.store.Query(ctx, opts.Namespace, vec, topK, opts.Filters)
	if err != nil {
		return nil, err
	}

	// Results are ordered, so everything after the first miss misses too.
	for i, r := range results {
		if r.Score < opts.MinScore {
			results = results[:i]
			break
		}
	}

	log.Debug("Search complete", "results", len(results))
	return results, nil
}

// Context reads up to lines lines around an ingested chunk from the file
// under root. Results without chunk metadata, or whose file is gone,
// return empty strings.
func Context(root string, r store.QueryResult, lines int) (before, after string) {
	rel, _ := r.Metadata[indexer.MetaPath].(string)
	startLine := intValue(r.Metadata[indexer.MetaStartLine])
	endLine := intValue(r.Metadata[indexer.MetaEndLine])
	if rel == "" || startLine < 1 || endLine < startLine || lines <= 0 {
		return "", ""
	}

	content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return "", ""
	}
	all := strings.Split(strings.TrimRight(string(content), "\n"), "\n")

	beforeStart := max(startLine-lines-1, 0)
	beforeEnd := min(startLine-1, len(all))
	if beforeEnd > beforeStart {
		before = strings.Join(all[beforeStart:beforeEnd], "\n")
	}

	if endLine < len(all) {
		after = strings.Join(all[endLine:min(endLine+lines, len(all))], "\n")
	}
	return before, after
}

// intValue accepts the int and float64 forms metadata numbers take
// before and after a round trip through JSON.
func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// truncate shortens a string for display.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

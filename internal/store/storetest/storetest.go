// Package storetest provides a behavioral test suite that every store.Store
// adapter must pass. Adapters call Run from their own tests with a factory
// that returns a fresh, empty store configured for 3-dimensional vectors.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/vectorkit/internal/store"
)

// Dimensions is the vector size the factory must configure.
const Dimensions = 3

// Factory returns a new empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the contract suite.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("SelfQueryScoresNearOne", func(t *testing.T) { testSelfQuery(t, newStore) })
	t.Run("CloseAndFar", func(t *testing.T) { testCloseAndFar(t, newStore) })
	t.Run("MetadataFilter", func(t *testing.T) { testMetadataFilter(t, newStore) })
	t.Run("IdempotentUpsert", func(t *testing.T) { testIdempotentUpsert(t, newStore) })
	t.Run("UpsertReplacesMetadata", func(t *testing.T) { testUpsertReplacesMetadata(t, newStore) })
	t.Run("NamespaceIsolation", func(t *testing.T) { testNamespaceIsolation(t, newStore) })
	t.Run("DeleteByIDCounts", func(t *testing.T) { testDeleteByID(t, newStore) })
	t.Run("DeleteByFilter", func(t *testing.T) { testDeleteByFilter(t, newStore) })
	t.Run("DeleteByIDAndFilter", func(t *testing.T) { testDeleteByIDAndFilter(t, newStore) })
	t.Run("TopKBoundAndOrdering", func(t *testing.T) { testTopK(t, newStore) })
	t.Run("EmptyNamespace", func(t *testing.T) { testEmptyNamespace(t, newStore) })
	t.Run("EmptyUpsertIsNoop", func(t *testing.T) { testEmptyUpsert(t, newStore) })
	t.Run("ValidationErrors", func(t *testing.T) { testValidation(t, newStore) })
}

func open(t *testing.T, newStore Factory) (store.Store, context.Context) {
	t.Helper()
	s := newStore(t)
	t.Cleanup(func() { _ = s.Close() })
	return s, context.Background()
}

func ids(results []store.QueryResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func testSelfQuery(t *testing.T, newStore Factory) {
	s, ctx := open(t, newStore)

	v := []float32{0.2, 0.5, 0.1}
	require.NoError(t, s.Upsert(ctx, "", []store.VectorItem{
		{ID: "self", Vector: v, Metadata: map[string]any{"k": "v"}},
		{ID: "other", Vector: []float32{-0.5, 0.1, 0.9}},
	}))

	results, err := s.Query(ctx, "", v, 2, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "self", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-3)
	assert.Equal(t, "v", results[0].Metadata["k"])
}

func testCloseAndFar(t *testing.T, newStore Factory) {
	s, ctx := open(t, newStore)

	require.NoError(t, s.Upsert(ctx, store.DefaultNamespace, []store.VectorItem{
		{ID: "close", Vector: []float32{1, 0, 0}},
		{ID: "far", Vector: []float32{0, 1, 0}},
	}))

	results, err := s.Query(ctx, store.DefaultNamespace, []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "close", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-3)

	results, err = s.Query(ctx, store.DefaultNamespace, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, []string{"close", "far"}, ids(results))
	assert.Greater(t, results[0].Score, results[1].Score)
}

func testMetadataFilter(t *testing.T, newStore Factory) {
	s, ctx := open(t, newStore)

	require.NoError(t, s.Upsert(ctx, "", []store.VectorItem{
		{ID: "x", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"type": "x", "lang": "en"}},
		{ID: "y", Vector: []float32{1, 0.1, 0}, Metadata: map[string]any{"type": "y", "lang": "en"}},
		{ID: "x2", Vector: []float32{1, 0.2, 0}, Metadata: map[string]any{"type": "x", "lang": "es"}},
	}))

	results, err := s.Query(ctx, "", []float32{1, 0, 0}, 10, store.Filters{"type": "x"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "x2"}, ids(results))
	for _, r := range results {
		assert.Equal(t, "x", r.Metadata["type"])
	}

	results, err = s.Query(ctx, "", []float32{1, 0, 0}, 10, store.Filters{"type": "x", "lang": "en"})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, ids(results))

	results, err = s.Query(ctx, "", []float32{1, 0, 0}, 10, store.Filters{"type": "z"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func testIdempotentUpsert(t *testing.T, newStore Factory) {
	s, ctx := open(t, newStore)

	require.NoError(t, s.Upsert(ctx, "", []store.VectorItem{
		{ID: "1", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"version": "v1"}},
	}))
	require.NoError(t, s.Upsert(ctx, "", []store.VectorItem{
		{ID: "1", Vector: []float32{0, 1, 0}, Metadata: map[string]any{"version": "v2"}},
	}))

	results, err := s.Query(ctx, "", []float32{0, 1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1", results[0].ID)
	assert.Equal(t, "v2", results[0].Metadata["version"])
	assert.InDelta(t, 1.0, results[0].Score, 1e-3)
}

func testUpsertReplacesMetadata(t *testing.T, newStore Factory) {
	s, ctx := open(t, newStore)

	require.NoError(t, s.Upsert(ctx, "", []store.VectorItem{
		{ID: "1", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"a": "1", "b": "2"}},
	}))
	require.NoError(t, s.Upsert(ctx, "", []store.VectorItem{
		{ID: "1", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"c": "3"}},
	}))

	results, err := s.Query(ctx, "", []float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, map[string]any{"c": "3"}, results[0].Metadata)
}

func testNamespaceIsolation(t *testing.T, newStore Factory) {
	s, ctx := open(t, newStore)

	require.NoError(t, s.Upsert(ctx, "A", []store.VectorItem{
		{ID: "x", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"owner": "a"}},
	}))
	require.NoError(t, s.Upsert(ctx, "B", []store.VectorItem{
		{ID: "x", Vector: []float32{0, 1, 0}, Metadata: map[string]any{"owner": "b"}},
	}))

	results, err := s.Query(ctx, "A", []float32{0, 1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Metadata["owner"])

	deleted, err := s.Delete(ctx, "B", []string{"x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	results, err = s.Query(ctx, "A", []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "x", results[0].ID)

	results, err = s.Query(ctx, "B", []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func testDeleteByID(t *testing.T, newStore Factory) {
	s, ctx := open(t, newStore)

	require.NoError(t, s.Upsert(ctx, "", []store.VectorItem{
		{ID: "1", Vector: []float32{1, 0, 0}},
		{ID: "2", Vector: []float32{0, 1, 0}},
		{ID: "3", Vector: []float32{1, 1, 0}},
	}))

	deleted, err := s.Delete(ctx, "", []string{"1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	deleted, err = s.Delete(ctx, "", []string{"1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	deleted, err = s.Delete(ctx, "", []string{"3", "missing"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	results, err := s.Query(ctx, "", []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids(results))
}

func testDeleteByFilter(t *testing.T, newStore Factory) {
	s, ctx := open(t, newStore)

	require.NoError(t, s.Upsert(ctx, "", []store.VectorItem{
		{ID: "1", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"type": "doc"}},
		{ID: "2", Vector: []float32{0, 1, 0}, Metadata: map[string]any{"type": "doc"}},
		{ID: "3", Vector: []float32{1, 1, 0}, Metadata: map[string]any{"type": "other"}},
	}))

	deleted, err := s.Delete(ctx, "", nil, store.Filters{"type": "doc"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	results, err := s.Query(ctx, "", []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "other", results[0].Metadata["type"])
}

func testDeleteByIDAndFilter(t *testing.T, newStore Factory) {
	s, ctx := open(t, newStore)

	require.NoError(t, s.Upsert(ctx, "", []store.VectorItem{
		{ID: "1", Vector: []float32{1, 0, 0}, Metadata: map[string]any{"type": "doc"}},
		{ID: "2", Vector: []float32{0, 1, 0}, Metadata: map[string]any{"type": "other"}},
		{ID: "3", Vector: []float32{1, 1, 0}, Metadata: map[string]any{"type": "doc"}},
	}))

	// "2" is in the id set but fails the filter; "3" passes the filter but is
	// not in the id set.
	deleted, err := s.Delete(ctx, "", []string{"1", "2"}, store.Filters{"type": "doc"})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	results, err := s.Query(ctx, "", []float32{1, 0, 0}, 10, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"2", "3"}, ids(results))
}

func testTopK(t *testing.T, newStore Factory) {
	s, ctx := open(t, newStore)

	items := []store.VectorItem{
		{ID: "a", Vector: []float32{1, 0, 0}},
		{ID: "b", Vector: []float32{0.9, 0.1, 0}},
		{ID: "c", Vector: []float32{0.6, 0.4, 0}},
		{ID: "d", Vector: []float32{0.2, 0.8, 0}},
		{ID: "e", Vector: []float32{0, 0, 1}},
	}
	require.NoError(t, s.Upsert(ctx, "", items))

	for _, k := range []int{1, 3, 5, 10} {
		results, err := s.Query(ctx, "", []float32{1, 0, 0}, k, nil)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(results), k)
		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
		}
	}

	results, err := s.Query(ctx, "", []float32{1, 0, 0}, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(results))
}

func testEmptyNamespace(t *testing.T, newStore Factory) {
	s, ctx := open(t, newStore)

	results, err := s.Query(ctx, "nobody-here", []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	deleted, err := s.Delete(ctx, "nobody-here", []string{"x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)
}

func testEmptyUpsert(t *testing.T, newStore Factory) {
	s, ctx := open(t, newStore)

	assert.NoError(t, s.Upsert(ctx, "", nil))
	assert.NoError(t, s.Upsert(ctx, "", []store.VectorItem{}))
}

func testValidation(t *testing.T, newStore Factory) {
	s, ctx := open(t, newStore)

	_, err := s.Query(ctx, "", []float32{1, 0, 0}, 0, nil)
	assert.ErrorIs(t, err, store.ErrInvalidTopK)

	_, err = s.Delete(ctx, "", nil, nil)
	assert.ErrorIs(t, err, store.ErrUnscopedDelete)

	_, err = s.Delete(ctx, "", []string{}, store.Filters{})
	assert.ErrorIs(t, err, store.ErrUnscopedDelete)
}

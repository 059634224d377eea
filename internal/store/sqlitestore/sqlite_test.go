package sqlitestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/vectorkit/internal/store"
	"github.com/nickcecere/vectorkit/internal/store/storetest"
)

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return setupTestStore(t, storetest.Dimensions)
	})
}

func TestContractOnDisk(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := New(Config{
			Path:       filepath.Join(t.TempDir(), "vectors.db"),
			Dimensions: storetest.Dimensions,
		})
		require.NoError(t, err)
		return s
	})
}

func TestNewCreatesFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "test.db")

	s, err := New(Config{Path: dbPath, Dimensions: 4})
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestNewRequiresDimensions(t *testing.T) {
	_, err := New(Config{Path: ":memory:"})
	assert.Error(t, err)
}

func TestReopenWithDifferentDimensions(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := New(Config{Path: dbPath, Dimensions: 4})
	require.NoError(t, err)
	require.NoError(t, s.Upsert(context.Background(), "", []store.VectorItem{
		{ID: "a", Vector: []float32{1, 0, 0, 0}},
	}))
	require.NoError(t, s.Close())

	// Same dimensions reopen fine and keep data
	s, err = New(Config{Path: dbPath, Dimensions: 4})
	require.NoError(t, err)
	count, err := s.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.NoError(t, s.Close())

	_, err = New(Config{Path: dbPath, Dimensions: 8})
	assert.ErrorIs(t, err, store.ErrDimensionMismatch)
}

func TestScoreFromDistance(t *testing.T) {
	assert.Equal(t, 1.0, ScoreFromDistance(0))
	assert.Equal(t, 0.5, ScoreFromDistance(1))
	assert.Equal(t, 0.0, ScoreFromDistance(2))
}

func TestOrthogonalScoresHalf(t *testing.T) {
	s := setupTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "", []store.VectorItem{
		{ID: "same", Vector: []float32{1, 0}},
		{ID: "orthogonal", Vector: []float32{0, 1}},
		{ID: "opposite", Vector: []float32{-1, 0}},
	}))

	results, err := s.Query(ctx, "", []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
	assert.InDelta(t, 0.5, results[1].Score, 1e-4)
	assert.InDelta(t, 0.0, results[2].Score, 1e-4)
}

func TestUpsertDimensionMismatch(t *testing.T) {
	s := setupTestStore(t, 3)

	err := s.Upsert(context.Background(), "", []store.VectorItem{
		{ID: "ok", Vector: []float32{1, 0, 0}},
		{ID: "short", Vector: []float32{1, 0}},
	})
	assert.ErrorIs(t, err, store.ErrDimensionMismatch)

	count, err := s.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, count, "nothing written when validation fails")
}

func TestUpsertRejectsSeparatorInNamespace(t *testing.T) {
	s := setupTestStore(t, 2)

	err := s.Upsert(context.Background(), "team:a", []store.VectorItem{
		{ID: "x", Vector: []float32{1, 0}},
	})
	assert.ErrorIs(t, err, store.ErrInvalidNamespace)
}

func TestUpsertDuplicateIDsInBatch(t *testing.T) {
	s := setupTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "", []store.VectorItem{
		{ID: "dup", Vector: []float32{1, 0}, Metadata: map[string]any{"v": "first"}},
		{ID: "dup", Vector: []float32{0, 1}, Metadata: map[string]any{"v": "second"}},
	}))

	items, err := s.Get(ctx, "", []string{"dup"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "second", items[0].Metadata["v"])
	assert.Equal(t, []float32{0, 1}, items[0].Vector)
}

func TestGetAndCount(t *testing.T) {
	s := setupTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "ns1", []store.VectorItem{
		{ID: "a", Vector: []float32{0.5, 0.25}, Metadata: map[string]any{"n": 1}},
		{ID: "b", Vector: []float32{1, 0}},
	}))
	require.NoError(t, s.Upsert(ctx, "ns2", []store.VectorItem{
		{ID: "a", Vector: []float32{0, 1}},
	}))

	items, err := s.Get(ctx, "ns1", []string{"a", "missing"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, []float32{0.5, 0.25}, items[0].Vector)
	assert.Equal(t, float64(1), items[0].Metadata["n"])

	items, err = s.Get(ctx, "ns1", nil)
	require.NoError(t, err)
	assert.Empty(t, items)

	n1, err := s.Count(ctx, "ns1")
	require.NoError(t, err)
	assert.Equal(t, 2, n1)

	n2, err := s.Count(ctx, "ns2")
	require.NoError(t, err)
	assert.Equal(t, 1, n2)
}

func TestFilteredQueryRefetches(t *testing.T) {
	s := setupTestStore(t, 2)
	ctx := context.Background()

	// 30 near neighbours that fail the filter, 2 distant ones that pass it.
	var items []store.VectorItem
	for i := 0; i < 30; i++ {
		items = append(items, store.VectorItem{
			ID:       fmt.Sprintf("noise-%02d", i),
			Vector:   []float32{1, float32(i) * 0.001},
			Metadata: map[string]any{"type": "noise"},
		})
	}
	items = append(items,
		store.VectorItem{ID: "target-1", Vector: []float32{0.1, 1}, Metadata: map[string]any{"type": "target"}},
		store.VectorItem{ID: "target-2", Vector: []float32{0, 1}, Metadata: map[string]any{"type": "target"}},
	)
	require.NoError(t, s.Upsert(ctx, "", items))

	results, err := s.Query(ctx, "", []float32{1, 0}, 2, store.Filters{"type": "target"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "target-1", results[0].ID)
	assert.Equal(t, "target-2", results[1].ID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestFilterNumericAndBool(t *testing.T) {
	s := setupTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "", []store.VectorItem{
		{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]any{"page": 1, "draft": true}},
		{ID: "b", Vector: []float32{1, 0.1}, Metadata: map[string]any{"page": 2, "draft": false}},
	}))

	results, err := s.Query(ctx, "", []float32{1, 0}, 5, store.Filters{"page": 2})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)

	deleted, err := s.Delete(ctx, "", nil, store.Filters{"draft": true})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
}

func TestDeleteManyIDsAcrossBatches(t *testing.T) {
	s := setupTestStore(t, 2)
	ctx := context.Background()

	n := maxParams + 25
	items := make([]store.VectorItem, n)
	ids := make([]string, n)
	for i := range items {
		ids[i] = fmt.Sprintf("item-%04d", i)
		items[i] = store.VectorItem{ID: ids[i], Vector: []float32{1, float32(i)}}
	}
	require.NoError(t, s.Upsert(ctx, "", items))

	deleted, err := s.Delete(ctx, "", ids, nil)
	require.NoError(t, err)
	assert.Equal(t, n, deleted)

	count, err := s.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDeleteDuplicateIDsAcrossBatches(t *testing.T) {
	s := setupTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "", []store.VectorItem{
		{ID: "dup", Vector: []float32{1, 0}},
		{ID: "other", Vector: []float32{0, 1}},
	}))

	// "dup" appears at the start and again past the first batch of keys.
	ids := []string{"dup"}
	for i := 0; i < maxParams; i++ {
		ids = append(ids, fmt.Sprintf("missing-%04d", i))
	}
	ids = append(ids, "dup")

	deleted, err := s.Delete(ctx, "", ids, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	count, err := s.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFetchSize(t *testing.T) {
	assert.Equal(t, 5, fetchSize(5, false, 3))
	assert.Equal(t, 15, fetchSize(5, true, 3))
	assert.Equal(t, maxKNN, fetchSize(maxKNN+1, false, 3))
	assert.Equal(t, maxKNN, fetchSize(1<<62, true, 3), "no overflow for a huge top_k")
}

func TestHugeTopKWithFilters(t *testing.T) {
	s := setupTestStore(t, 2)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "", []store.VectorItem{
		{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]any{"type": "x"}},
		{ID: "b", Vector: []float32{0, 1}, Metadata: map[string]any{"type": "y"}},
	}))

	results, err := s.Query(ctx, "", []float32{1, 0}, 1<<62, store.Filters{"type": "x"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestCancelledContext(t *testing.T) {
	s := setupTestStore(t, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Query(ctx, "", []float32{1, 0}, 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeadlineDuringJob(t *testing.T) {
	s := setupTestStore(t, 2)
	items := make([]store.VectorItem, 200)
	for i := range items {
		items[i] = store.VectorItem{ID: fmt.Sprintf("item-%03d", i), Vector: []float32{1, float32(i)}, Metadata: map[string]any{"i": i}}
	}
	require.NoError(t, s.Upsert(context.Background(), "", items))

	// Deadlines land before, during and after the job. Either the call
	// succeeds or its context is done; results are never shared with a job
	// still running.
	for i := 0; i < 100; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(i*20)*time.Microsecond)
		results, err := s.Query(ctx, "", []float32{1, 0}, 10, store.Filters{"i": 500})
		if err != nil {
			assert.Error(t, ctx.Err())
		} else {
			assert.Empty(t, results)
		}
		n, err := s.Delete(ctx, "", []string{"missing"}, nil)
		if err != nil {
			assert.Error(t, ctx.Err())
			assert.Zero(t, n)
		}
		cancel()
	}
}

func TestClosedStore(t *testing.T) {
	s, err := New(Config{Path: ":memory:", Dimensions: 2})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Count(context.Background(), "")
	assert.ErrorIs(t, err, store.ErrClosed)
}

func TestBatches(t *testing.T) {
	assert.Empty(t, batches(nil))

	keys := make([]string, maxParams*2+1)
	out := batches(keys)
	require.Len(t, out, 3)
	assert.Len(t, out[0], maxParams)
	assert.Len(t, out[2], 1)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?,?,?", placeholders(3))
}

// setupTestStore creates an in-memory store closed at test end.
func setupTestStore(t *testing.T, dims int) *Store {
	t.Helper()

	s, err := New(Config{Path: ":memory:", Dimensions: dims})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

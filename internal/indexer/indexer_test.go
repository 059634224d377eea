package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcecere/vectorkit/internal/embeddings"
	"github.com/nickcecere/vectorkit/internal/fs"
	"github.com/nickcecere/vectorkit/internal/store"
	"github.com/nickcecere/vectorkit/internal/store/sqlitestore"
)

const testDims = 3

// mockEmbedder returns a deterministic vector per text.
type mockEmbedder struct {
	calls int
	fail  string // texts containing this substring fail to embed
}

func (m *mockEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if m.fail != "" && strings.Contains(text, m.fail) {
			return nil, errors.New("embedding backend unavailable")
		}
		out[i] = vectorFor(text)
	}
	return out, nil
}

func (m *mockEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return vectorFor(text), nil
}

func (m *mockEmbedder) Dimensions() int { return testDims }
func (m *mockEmbedder) Model() string   { return "mock" }

var _ embeddings.Embedder = (*mockEmbedder)(nil)

func vectorFor(text string) []float32 {
	return []float32{1, float32(len(text)%7) + 1, 0.5}
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func newTestStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	s, err := sqlitestore.New(sqlitestore.Config{Path: ":memory:", Dimensions: testDims})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, fs.HashString("docs/a.md:0"), ChunkID("docs/a.md", 0))
	assert.NotEqual(t, ChunkID("a.md", 1), ChunkID("a.md", 2))
	assert.NotEqual(t, ChunkID("a.md", 0), ChunkID("b.md", 0))
}

func TestIndex(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"README.md":      "# vectorkit\n\nA small vector store toolkit.\n",
		"docs/guide.txt": "line one\nline two\nline three\n",
		"empty.txt":      "\n\n",
		"image.png":      "\x89PNG\x00\x00",
	})

	st := newTestStore(t)
	emb := &mockEmbedder{}
	idx := New(st, emb)

	var updates []Progress
	res, err := idx.Index(context.Background(), Options{
		Root:       root,
		Namespace:  "docs",
		Chunk:      fs.ChunkOptions{ChunkSize: 500},
		OnProgress: func(p Progress) { updates = append(updates, p) },
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Files)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, 0, res.Errors)
	assert.Equal(t, 1, res.Skipped, "binary file skipped")
	assert.Len(t, updates, 3)
	assert.Equal(t, 2, emb.calls)

	count, err := st.Count(context.Background(), "docs")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	items, err := st.Get(context.Background(), "docs", []string{ChunkID("docs/guide.txt", 0)})
	require.NoError(t, err)
	require.Len(t, items, 1)
	meta := items[0].Metadata
	assert.Equal(t, "docs/guide.txt", meta[MetaPath])
	assert.Equal(t, float64(1), meta[MetaStartLine])
	assert.Equal(t, float64(3), meta[MetaEndLine])
	assert.Equal(t, float64(0), meta[MetaChunk])
	assert.Equal(t, "line one\nline two\nline three", meta[MetaContent])
	assert.Len(t, meta[MetaFileHash], 16)
}

func TestIndexQueryByPath(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.txt": "alpha\n",
		"b.txt": "bravo\n",
	})

	st := newTestStore(t)
	_, err := New(st, &mockEmbedder{}).Index(context.Background(), Options{Root: root})
	require.NoError(t, err)

	results, err := st.Query(context.Background(), "", vectorFor("alpha"), 5, store.Filters{MetaPath: "b.txt"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ChunkID("b.txt", 0), results[0].ID)
}

func TestReindexReplacesStaleChunks(t *testing.T) {
	root := t.TempDir()
	long := strings.Repeat("0123456789\n", 20)
	writeFiles(t, root, map[string]string{"notes.txt": long})

	st := newTestStore(t)
	idx := New(st, &mockEmbedder{})
	opts := Options{Root: root, Namespace: "n", Chunk: fs.ChunkOptions{ChunkSize: 50}}

	first, err := idx.Index(context.Background(), opts)
	require.NoError(t, err)
	require.Greater(t, first.Chunks, 1)

	writeFiles(t, root, map[string]string{"notes.txt": "short now\n"})
	second, err := idx.Index(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 1, second.Chunks)
	assert.Equal(t, first.Chunks, second.Replaced)

	count, err := st.Count(context.Background(), "n")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "tail chunks from the longer version are gone")
}

func TestIndexContinuesPastEmbedError(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"good.txt": "fine content\n",
		"bad.txt":  "poison content\n",
	})

	st := newTestStore(t)
	res, err := New(st, &mockEmbedder{fail: "poison"}).Index(context.Background(), Options{Root: root})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Files)
	assert.Equal(t, 1, res.Errors)
}

func TestIndexStopsOnStoreError(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.txt": "alpha\n"})

	st := newTestStore(t)
	_, err := New(st, &mockEmbedder{}).Index(context.Background(), Options{Root: root, Namespace: "bad:ns"})
	assert.ErrorIs(t, err, store.ErrInvalidNamespace)
}

func TestIndexBatches(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"big.txt": strings.Repeat("some words here\n", 40)})

	st := newTestStore(t)
	emb := &mockEmbedder{}
	res, err := New(st, emb).Index(context.Background(), Options{
		Root:      root,
		Chunk:     fs.ChunkOptions{ChunkSize: 40},
		BatchSize: 4,
	})
	require.NoError(t, err)

	assert.Equal(t, (res.Chunks+3)/4, emb.calls)
}

func TestIndexCancelled(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"a.txt": "alpha\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(newTestStore(t), &mockEmbedder{}).Index(ctx, Options{Root: root})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIndexFileAndRemoveFile(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"one.txt": "one\n", "two.txt": "two\n"})

	st := newTestStore(t)
	idx := New(st, &mockEmbedder{})
	opts := Options{Root: root, Namespace: "files"}

	filter, err := fs.NewFilter(opts.WalkOptions())
	require.NoError(t, err)
	f, ok, err := filter.Load(filepath.Join(filter.Root(), "one.txt"))
	require.NoError(t, err)
	require.True(t, ok)

	n, err := idx.IndexFile(context.Background(), opts, f)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	items, err := st.Get(context.Background(), "files", []string{ChunkID("one.txt", 0)})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "one.txt", items[0].Metadata[MetaPath])

	removed, err := idx.RemoveFile(context.Background(), "files", "one.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = idx.RemoveFile(context.Background(), "files", "two.txt")
	require.NoError(t, err)
	assert.Zero(t, removed, "never indexed")

	count, err := st.Count(context.Background(), "files")
	require.NoError(t, err)
	assert.Zero(t, count)
}

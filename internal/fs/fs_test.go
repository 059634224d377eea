package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashString(t *testing.T) {
	h1 := HashString("hello world")
	assert.Equal(t, h1, HashString("hello world"))
	assert.NotEqual(t, h1, HashString("hello world!"))
	assert.Len(t, h1, 16)
}

func TestIsBinaryContent(t *testing.T) {
	assert.False(t, isBinaryContent(nil))
	assert.False(t, isBinaryContent([]byte("package main\n\tfunc main() {}\r\n")))
	assert.True(t, isBinaryContent([]byte{'a', 0, 'b'}))
	assert.True(t, isBinaryContent([]byte{1, 2, 3, 'a'}))
}

// writeTree creates files (relative path -> content) under a temp dir.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func walkPaths(t *testing.T, opts WalkOptions) ([]string, WalkStats) {
	t.Helper()
	var paths []string
	stats, err := Walk(context.Background(), opts, func(f File) error {
		paths = append(paths, f.RelPath)
		return nil
	})
	require.NoError(t, err)
	sort.Strings(paths)
	return paths, stats
}

func TestWalk(t *testing.T) {
	root := writeTree(t, map[string]string{
		"README.md":            "# readme\n",
		"docs/guide.txt":       "guide\n",
		"docs/draft.tmp":       "scratch\n",
		"node_modules/x/a.js":  "module.exports = 1\n",
		".hidden/secret.txt":   "secret\n",
		".env":                 "KEY=1\n",
		"logs/app.log":         "log line\n",
		"image.bin":            "\x00\x01\x02",
		".gitignore":           "*.tmp\nlogs/\n",
		"src/nested/deep.go":   "package deep\n",
		"src/nested/large.txt": strings.Repeat("x", 200),
	})

	paths, stats := walkPaths(t, WalkOptions{
		Root:           root,
		MaxFileSize:    100,
		IgnorePatterns: []string{"node_modules/"},
		UseGitignore:   true,
	})

	assert.Equal(t, []string{"README.md", "docs/guide.txt", "src/nested/deep.go"}, paths)
	assert.Equal(t, 3, stats.FilesFound)
	assert.Greater(t, stats.FilesSkipped, 0)
	assert.Greater(t, stats.DirsSkipped, 0)
}

func TestWalkWithoutGitignore(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt":      "a\n",
		"b.tmp":      "b\n",
		".gitignore": "*.tmp\n",
	})

	paths, _ := walkPaths(t, WalkOptions{Root: root})
	assert.Equal(t, []string{"a.txt", "b.tmp"}, paths)
}

func TestWalkIncludeHidden(t *testing.T) {
	root := writeTree(t, map[string]string{
		".config/settings.txt": "x\n",
		".git/HEAD":            "ref: refs/heads/main\n",
	})

	paths, _ := walkPaths(t, WalkOptions{Root: root, IncludeHidden: true})
	assert.Equal(t, []string{".config/settings.txt"}, paths, ".git is always skipped")
}

func TestWalkFileHash(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "hello world"})

	var got File
	_, err := Walk(context.Background(), WalkOptions{Root: root}, func(f File) error {
		got = f
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, HashString("hello world"), got.Hash)
	assert.Equal(t, int64(11), got.Size)
	assert.True(t, filepath.IsAbs(got.Path))
}

func TestWalkStopsOnCallbackError(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "a", "b.txt": "b"})
	stop := errors.New("stop")

	calls := 0
	_, err := Walk(context.Background(), WalkOptions{Root: root}, func(File) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestWalkCancelled(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Walk(ctx, WalkOptions{Root: root}, func(File) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWalkInvalidRoot(t *testing.T) {
	_, err := Walk(context.Background(), WalkOptions{Root: filepath.Join(t.TempDir(), "missing")}, nil)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	_, err = Walk(context.Background(), WalkOptions{Root: file}, nil)
	assert.ErrorContains(t, err, "not a directory")
}

func TestFilterSkip(t *testing.T) {
	root := writeTree(t, map[string]string{
		".gitignore": "build/\n*.tmp\n",
	})
	f, err := NewFilter(WalkOptions{Root: root, UseGitignore: true, IgnorePatterns: []string{"secret.txt"}})
	require.NoError(t, err)

	assert.True(t, f.SkipDir(".git"))
	assert.True(t, f.SkipDir(".cache"))
	assert.True(t, f.SkipDir("build"))
	assert.True(t, f.SkipDir("src/build"))
	assert.False(t, f.SkipDir("src"))

	assert.True(t, f.SkipFile("notes.tmp"))
	assert.True(t, f.SkipFile("secret.txt"))
	assert.True(t, f.SkipFile(".env"))
	assert.True(t, f.SkipFile("build/out.txt"))
	assert.True(t, f.SkipFile(".cache/data.txt"))
	assert.False(t, f.SkipFile("src/main.go"))

	hidden, err := NewFilter(WalkOptions{Root: root, IncludeHidden: true})
	require.NoError(t, err)
	assert.False(t, hidden.SkipFile(".env"))
	assert.True(t, hidden.SkipDir(".git"))
}

func TestFilterLoad(t *testing.T) {
	root := writeTree(t, map[string]string{
		"docs/a.md": "hello",
		"big.txt":   strings.Repeat("x", 100),
		"bin.dat":   "a\x00b",
	})
	f, err := NewFilter(WalkOptions{Root: root, MaxFileSize: 50})
	require.NoError(t, err)

	file, ok, err := f.Load(filepath.Join(f.Root(), "docs", "a.md"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "docs/a.md", file.RelPath)
	assert.Equal(t, int64(5), file.Size)
	assert.Equal(t, HashString("hello"), file.Hash)

	_, ok, err = f.Load(filepath.Join(f.Root(), "big.txt"))
	require.NoError(t, err)
	assert.False(t, ok, "over the size limit")

	_, ok, err = f.Load(filepath.Join(f.Root(), "bin.dat"))
	require.NoError(t, err)
	assert.False(t, ok, "binary")

	_, ok, err = f.Load(filepath.Join(f.Root(), "docs"))
	require.NoError(t, err)
	assert.False(t, ok, "directories are not files")

	_, _, err = f.Load(filepath.Join(f.Root(), "gone.txt"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestNewChunkerDefaults(t *testing.T) {
	c := NewChunker(ChunkOptions{})
	assert.Equal(t, DefaultChunkSize, c.size)
	assert.Equal(t, 0, c.overlap)

	c = NewChunker(ChunkOptions{ChunkSize: 100, ChunkOverlap: 100})
	assert.Equal(t, 50, c.overlap)
}

func TestChunkEmpty(t *testing.T) {
	c := NewChunker(ChunkOptions{ChunkSize: 100})
	assert.Nil(t, c.Chunk(""))
	assert.Nil(t, c.Chunk("  \n\n"))
}

func TestChunkSmallContent(t *testing.T) {
	c := NewChunker(ChunkOptions{ChunkSize: 100, ChunkOverlap: 10})
	chunks := c.Chunk("line one\nline two\n")

	require.Len(t, chunks, 1)
	assert.Equal(t, "line one\nline two", chunks[0].Content)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 2, chunks[0].EndLine)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestChunkWithOverlap(t *testing.T) {
	// Five lines of 10 runes each (9 chars + newline).
	lines := []string{"aaaaaaaaa", "bbbbbbbbb", "ccccccccc", "ddddddddd", "eeeeeeeee"}
	c := NewChunker(ChunkOptions{ChunkSize: 25, ChunkOverlap: 10})

	chunks := c.Chunk(strings.Join(lines, "\n"))

	require.Len(t, chunks, 4)
	want := [][2]int{{1, 2}, {2, 3}, {3, 4}, {4, 5}}
	for i, ch := range chunks {
		assert.Equal(t, want[i][0], ch.StartLine, "chunk %d start", i)
		assert.Equal(t, want[i][1], ch.EndLine, "chunk %d end", i)
		assert.Equal(t, i, ch.Index)
	}
	assert.Equal(t, "bbbbbbbbb\nccccccccc", chunks[1].Content)
}

func TestChunkWithoutOverlap(t *testing.T) {
	lines := []string{"aaaaaaaaa", "bbbbbbbbb", "ccccccccc", "ddddddddd"}
	c := NewChunker(ChunkOptions{ChunkSize: 20})

	chunks := c.Chunk(strings.Join(lines, "\n"))

	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 2, chunks[0].EndLine)
	assert.Equal(t, 3, chunks[1].StartLine)
	assert.Equal(t, 4, chunks[1].EndLine)
}

func TestChunkLongLine(t *testing.T) {
	c := NewChunker(ChunkOptions{ChunkSize: 10, ChunkOverlap: 2})
	chunks := c.Chunk("short\n" + strings.Repeat("x", 50) + "\nend")

	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.Equal(t, 3, last.EndLine, "every line is covered")
	for _, ch := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(ch.Content))
	}
}

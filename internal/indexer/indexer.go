// Package indexer ingests a directory into a vector store: it walks the
// tree, chunks each text file, embeds the chunks and upserts them.
package indexer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/vectorkit/internal/embeddings"
	"github.com/nickcecere/vectorkit/internal/fs"
	"github.com/nickcecere/vectorkit/internal/store"
)

// DefaultBatchSize is the number of chunks embedded and upserted together.
const DefaultBatchSize = 64

// Metadata keys written for every chunk.
const (
	MetaPath      = "path"
	MetaStartLine = "start_line"
	MetaEndLine   = "end_line"
	MetaChunk     = "chunk_index"
	MetaFileHash  = "file_hash"
	MetaContent   = "content"
)

// Progress reports how far an ingest has got.
type Progress struct {
	Files       int
	Chunks      int
	Errors      int
	CurrentFile string
}

// Options configures one ingest run.
type Options struct {
	Root           string
	Namespace      string
	MaxFileSize    int64
	IgnorePatterns []string
	Chunk          fs.ChunkOptions
	BatchSize      int

	// OnProgress is called after each file.
	OnProgress func(Progress)
}

// WalkOptions returns the walk rules for opts. Ingest always honors the
// root .gitignore.
func (o Options) WalkOptions() fs.WalkOptions {
	return fs.WalkOptions{
		Root:           o.Root,
		MaxFileSize:    o.MaxFileSize,
		IgnorePatterns: o.IgnorePatterns,
		UseGitignore:   true,
	}
}

func (o Options) batchSize() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

// Result summarizes a finished run.
type Result struct {
	Files    int
	Chunks   int
	Replaced int // chunks removed from earlier ingests of the same files
	Errors   int
	Skipped  int
	Duration time.Duration
}

// Indexer connects an embedder to a store.
type Indexer struct {
	store    store.Store
	embedder embeddings.Embedder
}

// New creates an Indexer.
func New(st store.Store, emb embeddings.Embedder) *Indexer {
	return &Indexer{store: st, embedder: emb}
}

// ChunkID is the item id of a chunk: the xxhash of "relpath:index".
func ChunkID(relPath string, index int) string {
	return fs.HashString(fmt.Sprintf("%s:%d", relPath, index))
}

// Index ingests opts.Root. A file that fails to read or embed is logged and
// counted, and the run continues. Store errors and cancellation stop it.
func (idx *Indexer) Index(ctx context.Context, opts Options) (Result, error) {
	start := time.Now()
	batchSize := opts.batchSize()
	chunker := fs.NewChunker(opts.Chunk)

	var (
		res      Result
		progress Progress
	)
	stats, err := fs.Walk(ctx, opts.WalkOptions(), func(f fs.File) error {
		progress.CurrentFile = f.RelPath

		n, replaced, err := idx.indexFile(ctx, opts.Namespace, f, chunker, batchSize)
		switch {
		case err == nil:
			res.Files++
			res.Chunks += n
			res.Replaced += replaced
		case ctx.Err() != nil || isStoreError(err):
			return err
		default:
			log.Warn("Failed to ingest file", "path", f.RelPath, "error", err)
			res.Errors++
		}

		progress.Files, progress.Chunks, progress.Errors = res.Files, res.Chunks, res.Errors
		if opts.OnProgress != nil {
			opts.OnProgress(progress)
		}
		return nil
	})
	res.Skipped = stats.FilesSkipped
	res.Duration = time.Since(start)
	if err != nil {
		return res, err
	}

	log.Info("Ingest complete", "files", res.Files, "chunks", res.Chunks, "duration", res.Duration.Round(time.Millisecond))
	return res, nil
}

// IndexFile ingests a single file, replacing its earlier chunks.
func (idx *Indexer) IndexFile(ctx context.Context, opts Options, f fs.File) (int, error) {
	n, _, err := idx.indexFile(ctx, opts.Namespace, f, fs.NewChunker(opts.Chunk), opts.batchSize())
	return n, err
}

// RemoveFile deletes every chunk stored for relPath and returns how many
// were removed.
func (idx *Indexer) RemoveFile(ctx context.Context, namespace, relPath string) (int, error) {
	return idx.store.Delete(ctx, namespace, nil, store.Filters{MetaPath: relPath})
}

// indexFile replaces every chunk previously stored for f.
func (idx *Indexer) indexFile(ctx context.Context, ns string, f fs.File, chunker *fs.Chunker, batchSize int) (int, int, error) {
	content, err := os.ReadFile(f.Path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read file: %w", err)
	}

	// Clear chunks from an earlier version so a shorter file leaves no tail.
	replaced, err := idx.RemoveFile(ctx, ns, f.RelPath)
	if err != nil {
		return 0, 0, storeError{err}
	}

	chunks := chunker.Chunk(string(content))
	if len(chunks) == 0 {
		log.Debug("No chunks generated", "path", f.RelPath)
		return 0, replaced, nil
	}

	for i := 0; i < len(chunks); i += batchSize {
		batch := chunks[i:min(i+batchSize, len(chunks))]

		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Content
		}
		vectors, err := idx.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return 0, replaced, fmt.Errorf("failed to embed chunks: %w", err)
		}

		items := make([]store.VectorItem, len(batch))
		for j, c := range batch {
			items[j] = store.VectorItem{
				ID:     ChunkID(f.RelPath, c.Index),
				Vector: vectors[j],
				Metadata: map[string]any{
					MetaPath:      f.RelPath,
					MetaStartLine: c.StartLine,
					MetaEndLine:   c.EndLine,
					MetaChunk:     c.Index,
					MetaFileHash:  f.Hash,
					MetaContent:   c.Content,
				},
			}
		}
		if err := idx.store.Upsert(ctx, ns, items); err != nil {
			return 0, replaced, storeError{err}
		}
	}

	log.Debug("Ingested file", "path", f.RelPath, "chunks", len(chunks))
	return len(chunks), replaced, nil
}

// storeError marks failures that should abort the whole run.
type storeError struct{ err error }

func (e storeError) Error() string { return e.err.Error() }
func (e storeError) Unwrap() error { return e.err }

func isStoreError(err error) bool {
	_, ok := err.(storeError)
	return ok
}

// Package watcher keeps an ingested directory in sync with the vector store
// by re-ingesting files as they change.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	vfs "github.com/nickcecere/vectorkit/internal/fs"
	"github.com/nickcecere/vectorkit/internal/indexer"
)

// DefaultDebounce is how long events for a path are collected before it is
// re-ingested.
const DefaultDebounce = 500 * time.Millisecond

// Event kinds passed to the event callback.
const (
	EventIndex  = "index"
	EventDelete = "delete"
)

// Watcher watches for file changes and re-ingests them.
type Watcher struct {
	indexer *indexer.Indexer
	opts    indexer.Options
	filter  *vfs.Filter

	// pending holds file events waiting for the next flush
	pending      map[string]fsnotify.Op
	pendingMu    sync.Mutex
	debounceTime time.Duration

	ready   chan struct{}
	onEvent func(event string, relPath string)
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounceTime sets the debounce duration for batching events.
func WithDebounceTime(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounceTime = d
	}
}

// WithEventCallback sets a callback invoked after each file is re-ingested
// or removed.
func WithEventCallback(fn func(event string, relPath string)) Option {
	return func(w *Watcher) {
		w.onEvent = fn
	}
}

// New creates a watcher for opts.Root that ingests through idx.
func New(idx *indexer.Indexer, opts indexer.Options, wopts ...Option) (*Watcher, error) {
	filter, err := vfs.NewFilter(opts.WalkOptions())
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		indexer:      idx,
		opts:         opts,
		filter:       filter,
		pending:      make(map[string]fsnotify.Op),
		debounceTime: DefaultDebounce,
		ready:        make(chan struct{}),
		onEvent:      func(string, string) {},
	}
	for _, opt := range wopts {
		opt(w)
	}
	return w, nil
}

// Ready is closed once every directory is being watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Start watches until ctx is cancelled and returns ctx.Err().
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addDirectories(fw, w.filter.Root()); err != nil {
		return err
	}
	log.Info("Watching for file changes", "root", w.filter.Root())
	close(w.ready)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.processPending(ctx)
	}()
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fw, event)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Error("Watcher error", "error", err)
		}
	}
}

// addDirectories watches dir and every directory below it that the filter
// does not prune.
func (w *Watcher) addDirectories(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.filter.Root() {
			rel, err := w.filter.Rel(path)
			if err != nil || w.filter.SkipDir(rel) {
				return filepath.SkipDir
			}
		}
		if err := fw.Add(path); err != nil {
			log.Debug("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) handleEvent(fw *fsnotify.Watcher, event fsnotify.Event) {
	rel, err := w.filter.Rel(event.Name)
	if err != nil {
		return
	}

	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		if event.Has(fsnotify.Create) && !w.filter.SkipDir(rel) {
			// Files created before the watch was added are picked up by
			// the walk below.
			_ = w.addDirectories(fw, event.Name)
			w.queueDirectory(event.Name)
			log.Debug("Added directory to watch", "path", rel)
		}
		return
	}
	if w.filter.SkipFile(rel) {
		return
	}

	w.pendingMu.Lock()
	w.pending[event.Name] |= event.Op
	w.pendingMu.Unlock()
}

func (w *Watcher) queueDirectory(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if rel, err := w.filter.Rel(path); err != nil || w.filter.SkipFile(rel) {
			return nil
		}
		w.pendingMu.Lock()
		w.pending[path] |= fsnotify.Create
		w.pendingMu.Unlock()
		return nil
	})
}

// processPending flushes queued events every debounce interval.
func (w *Watcher) processPending(ctx context.Context) {
	ticker := time.NewTicker(w.debounceTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// flush re-ingests or removes every queued path, depending on whether the
// file is still there.
func (w *Watcher) flush(ctx context.Context) {
	w.pendingMu.Lock()
	events := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	for path := range events {
		if ctx.Err() != nil {
			return
		}
		rel, _ := w.filter.Rel(path)

		f, ok, err := w.filter.Load(path)
		switch {
		case errors.Is(err, fs.ErrNotExist) || (err == nil && !ok):
			n, err := w.indexer.RemoveFile(ctx, w.opts.Namespace, rel)
			if err != nil {
				log.Error("Failed to remove file", "path", rel, "error", err)
				continue
			}
			if n > 0 {
				log.Info("Removed from store", "file", rel, "chunks", n)
				w.onEvent(EventDelete, rel)
			}
		case err != nil:
			log.Error("Failed to read file", "path", rel, "error", err)
		default:
			n, err := w.indexer.IndexFile(ctx, w.opts, f)
			if err != nil {
				log.Error("Failed to ingest file", "path", rel, "error", err)
				continue
			}
			log.Info("Ingested", "file", rel, "chunks", n)
			w.onEvent(EventIndex, rel)
		}
	}
}

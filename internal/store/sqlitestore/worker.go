package sqlitestore

import (
	"context"
	"database/sql"
	"sync"

	"github.com/nickcecere/vectorkit/internal/store"
)

// job is one unit of work executed on the worker goroutine.
type job struct {
	ctx  context.Context
	fn   func(ctx context.Context, db *sql.DB) error
	done chan error
}

// worker owns every call into SQLite. The engine is synchronous, so callers
// hand work to this goroutine and wait on a channel, which keeps them
// selectable on ctx.Done(). Jobs run one at a time.
type worker struct {
	db   *sql.DB
	jobs chan job
	quit chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func newWorker(db *sql.DB) *worker {
	w := &worker{
		db:   db,
		jobs: make(chan job),
		quit: make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case j := <-w.jobs:
			j.done <- j.fn(j.ctx, w.db)
		case <-w.quit:
			return
		}
	}
}

// do runs fn on the worker and waits for it. If ctx is cancelled while the
// job is running, do returns ctx.Err() but the job is not aborted beyond what
// the driver honors, so its writes may still commit.
func (w *worker) do(ctx context.Context, fn func(ctx context.Context, db *sql.DB) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j := job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.quit:
		return store.ErrClosed
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop waits for the in-flight job, if any, and stops the loop.
func (w *worker) stop() {
	w.once.Do(func() {
		close(w.quit)
		w.wg.Wait()
	})
}

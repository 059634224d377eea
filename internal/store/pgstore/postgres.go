// Package pgstore implements store.Store on PostgreSQL with the pgvector
// extension, using a bounded pgx connection pool.
package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/nickcecere/vectorkit/internal/store"
)

const backendName = "postgres"

// Pool defaults.
const (
	DefaultTable    = "vector_items"
	DefaultMinConns = 1
	DefaultMaxConns = 10
)

// maxPrealloc bounds the result capacity reserved up front for a query.
const maxPrealloc = 256

// Config configures the Postgres store. Pool sizes are taken only from here.
type Config struct {
	DSN   string
	Table string
	// Dimensions, when positive, is checked on every vector and used to
	// create the table.
	Dimensions int
	MinConns   int
	MaxConns   int
	// CreateSchema creates the extension and table at startup.
	CreateSchema bool
}

func (c *Config) applyDefaults() {
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if c.MinConns <= 0 {
		c.MinConns = DefaultMinConns
	}
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
}

// Option configures optional Store behavior.
type Option func(*Store)

// WithMetrics sets the metrics hook.
func WithMetrics(m store.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Store implements store.Store using pgvector.
type Store struct {
	pool       *pgxpool.Pool
	table      string
	dimensions int
	metrics    store.Metrics
}

var _ store.Store = (*Store)(nil)

// New builds the connection pool. Every operation acquires and releases its
// own connection from it.
func New(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	cfg.applyDefaults()

	table, err := quoteTable(cfg.Table)
	if err != nil {
		return nil, err
	}

	if cfg.CreateSchema {
		if err := ensureSchema(ctx, cfg.DSN, table, cfg.Dimensions); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres DSN: %w", err)
	}
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	s := &Store{
		pool:       pool,
		table:      table,
		dimensions: cfg.Dimensions,
		metrics:    store.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}

	log.Debug("Opened Postgres vector store", "table", table, "min_conns", cfg.MinConns, "max_conns", cfg.MaxConns)
	return s, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ScoreFromDistance converts pgvector cosine distance (the <=> operator,
// range [0, 2]) to a similarity score in [-1, 1].
func ScoreFromDistance(distance float64) float64 {
	return 1 - distance
}

// Upsert writes items with a single INSERT ... ON CONFLICT statement. Batches
// too large for one statement are split and run inside a transaction.
func (s *Store) Upsert(ctx context.Context, namespace string, items []store.VectorItem) (err error) {
	if len(items) == 0 {
		return nil
	}
	if err := store.CheckDimensions(s.dimensions, store.ItemVectors(items)...); err != nil {
		return err
	}
	ns := store.Namespace(namespace)
	defer store.Observe(s.metrics, backendName, "upsert", time.Now(), &err)

	items = store.DedupeItems(items)
	chunks := chunkItems(items, maxUpsertRows)

	if len(chunks) == 1 {
		sql, args, err := buildUpsert(s.table, ns, chunks[0])
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
			return store.WrapError(backendName, "upsert", err)
		}
	} else {
		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			for _, chunk := range chunks {
				sql, args, err := buildUpsert(s.table, ns, chunk)
				if err != nil {
					return err
				}
				if _, err := tx.Exec(ctx, sql, args...); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return store.WrapError(backendName, "upsert", err)
		}
	}

	log.Debug("Upserted vectors", "backend", backendName, "namespace", ns, "count", len(items))
	return nil
}

// Query pushes the namespace and metadata predicates down to Postgres and
// orders by cosine distance.
func (s *Store) Query(ctx context.Context, namespace string, vector []float32, topK int, filters store.Filters) (results []store.QueryResult, err error) {
	if err := store.ValidateQuery(topK); err != nil {
		return nil, err
	}
	if err := store.CheckDimensions(s.dimensions, vector); err != nil {
		return nil, err
	}
	ns := store.Namespace(namespace)

	sql, args, err := buildQuery(s.table, ns, vector, topK, filters)
	if err != nil {
		return nil, err
	}
	defer store.Observe(s.metrics, backendName, "query", time.Now(), &err)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, store.WrapError(backendName, "query", err)
	}
	defer rows.Close()

	results = newResults(topK)
	for rows.Next() {
		var r store.QueryResult
		if err := rows.Scan(&r.ID, &r.Score, &r.Metadata); err != nil {
			return nil, store.WrapError(backendName, "query", fmt.Errorf("failed to scan row: %w", err))
		}
		if r.Metadata == nil {
			r.Metadata = map[string]any{}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, store.WrapError(backendName, "query", err)
	}

	return results, nil
}

// Delete runs one DELETE and returns the driver's affected-row count.
func (s *Store) Delete(ctx context.Context, namespace string, ids []string, filters store.Filters) (deleted int, err error) {
	if err := store.ValidateDelete(ids, filters); err != nil {
		return 0, err
	}
	ns := store.Namespace(namespace)

	sql, args, err := buildDelete(s.table, ns, ids, filters)
	if err != nil {
		return 0, err
	}
	defer store.Observe(s.metrics, backendName, "delete", time.Now(), &err)

	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, store.WrapError(backendName, "delete", err)
	}

	deleted = int(tag.RowsAffected())
	log.Debug("Deleted vectors", "backend", backendName, "namespace", ns, "count", deleted)
	return deleted, nil
}

// newResults reserves room for up to topK results. top_k reaches here from
// user input, so the reservation is capped.
func newResults(topK int) []store.QueryResult {
	return make([]store.QueryResult, 0, min(topK, maxPrealloc))
}

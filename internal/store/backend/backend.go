// Package backend builds a store.Store from configuration.
package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nickcecere/vectorkit/internal/config"
	"github.com/nickcecere/vectorkit/internal/store"
	"github.com/nickcecere/vectorkit/internal/store/pgstore"
	"github.com/nickcecere/vectorkit/internal/store/qdrantstore"
	"github.com/nickcecere/vectorkit/internal/store/sqlitestore"
)

type options struct {
	metrics store.Metrics
}

// Option configures the store being built.
type Option func(*options)

// WithMetrics passes a metrics hook to the adapter.
func WithMetrics(m store.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New opens the backend named by cfg.Backend. An empty name selects sqlite.
func New(ctx context.Context, cfg config.StoreConfig, opts ...Option) (store.Store, error) {
	o := options{metrics: store.NoopMetrics{}}
	for _, opt := range opts {
		opt(&o)
	}

	name := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if name == "" {
		name = config.BackendSQLite
	}
	log.Debug("Opening vector store", "backend", name)

	var (
		s   store.Store
		err error
	)
	switch name {
	case config.BackendSQLite:
		s, err = openSQLite(sqlitestore.Config{
			Path:       cfg.SQLite.Path,
			Dimensions: cfg.SQLite.Dimensions,
			OverFetch:  cfg.SQLite.OverFetch,
		}, o)

	case config.BackendPostgres:
		s, err = openPostgres(ctx, pgstore.Config{
			DSN:          cfg.Postgres.DSN,
			Table:        cfg.Postgres.Table,
			Dimensions:   cfg.Postgres.Dimensions,
			MinConns:     cfg.Postgres.MinConns,
			MaxConns:     cfg.Postgres.MaxConns,
			CreateSchema: cfg.Postgres.CreateSchema,
		}, o)

	case config.BackendQdrant:
		s, err = openQdrant(qdrantstore.Config{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey,
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Qdrant.Collection,
			VectorSize: cfg.Qdrant.VectorSize,
			Distance:   cfg.Qdrant.Distance,
			OnDisk:     cfg.Qdrant.OnDisk,
			Keepalive:  cfg.Qdrant.Keepalive,
		}, o)

	default:
		return nil, fmt.Errorf("%w: %q", store.ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", name, err)
	}
	return s, nil
}

// The open helpers keep a nil adapter pointer from becoming a non-nil
// store.Store on error.

func openSQLite(cfg sqlitestore.Config, o options) (store.Store, error) {
	s, err := sqlitestore.New(cfg, sqlitestore.WithMetrics(o.metrics))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openPostgres(ctx context.Context, cfg pgstore.Config, o options) (store.Store, error) {
	s, err := pgstore.New(ctx, cfg, pgstore.WithMetrics(o.metrics))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openQdrant(cfg qdrantstore.Config, o options) (store.Store, error) {
	s, err := qdrantstore.New(cfg, qdrantstore.WithMetrics(o.metrics))
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Dimensions returns the vector width configured for the selected backend,
// or zero when it is not fixed by configuration.
func Dimensions(cfg config.StoreConfig) int {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case config.BackendPostgres:
		return cfg.Postgres.Dimensions
	case config.BackendQdrant:
		return cfg.Qdrant.VectorSize
	default:
		return cfg.SQLite.Dimensions
	}
}

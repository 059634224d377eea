// Package sqlitestore implements store.Store on an embedded SQLite file using
// the sqlite-vec vec0 virtual table.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/mattn/go-sqlite3"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/nickcecere/vectorkit/internal/store"
)

func init() {
	// Register sqlite-vec extension
	sqlite_vec.Auto()
}

const backendName = "sqlite"

const (
	// DefaultOverFetch is the multiple of top_k fetched when filters are applied client-side.
	DefaultOverFetch = 3

	// maxKNN is the largest k sqlite-vec accepts in a KNN query.
	maxKNN = 4096

	// maxParams bounds the number of bound parameters per IN (...) list.
	maxParams = 500
)

// Config configures the embedded store.
type Config struct {
	// Path is the database file, or ":memory:".
	Path string
	// Dimensions is the fixed vector width of the vec0 table.
	Dimensions int
	// OverFetch multiplies top_k for filtered queries. Zero means DefaultOverFetch.
	OverFetch int
}

// Option configures optional Store behavior.
type Option func(*Store)

// WithMetrics sets the metrics hook.
func WithMetrics(m store.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Store implements store.Store using SQLite and sqlite-vec.
type Store struct {
	db         *sql.DB
	w          *worker
	dimensions int
	overFetch  int
	metrics    store.Metrics
}

var _ store.Store = (*Store)(nil)

// New opens (or creates) the database at cfg.Path.
func New(cfg Config, opts ...Option) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	if cfg.OverFetch <= 0 {
		cfg.OverFetch = DefaultOverFetch
	}

	dsn := cfg.Path
	if cfg.Path != ":memory:" {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = cfg.Path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One handle: concurrent calls are serialized by the engine connection,
	// and :memory: databases exist per connection.
	db.SetMaxOpenConns(1)

	if err := initSchema(db, cfg.Dimensions); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{
		db:         db,
		w:          newWorker(db),
		dimensions: cfg.Dimensions,
		overFetch:  cfg.OverFetch,
		metrics:    store.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}

	log.Debug("Opened SQLite vector store", "path", cfg.Path, "dimensions", cfg.Dimensions)
	return s, nil
}

// Close stops the worker and closes the database.
func (s *Store) Close() error {
	s.w.stop()
	return s.db.Close()
}

// ScoreFromDistance converts sqlite-vec cosine distance, in [0, 2], to a
// similarity score in [0, 1].
func ScoreFromDistance(distance float64) float64 {
	return 1.0 - distance/2.0
}

// checkNamespace rejects namespaces containing the composite key separator.
// Without this, ("a:b", "c") and ("a", "b:c") would share a primary key.
func checkNamespace(ns string) error {
	if strings.Contains(ns, ":") {
		return fmt.Errorf("%w: %q contains ':'", store.ErrInvalidNamespace, ns)
	}
	return nil
}

// Upsert replaces items by deleting any existing rows for their composite
// keys and inserting the new rows. vec0 has no UPDATE or ON CONFLICT, so
// both steps run in one SQLite transaction on the worker.
func (s *Store) Upsert(ctx context.Context, namespace string, items []store.VectorItem) (err error) {
	if len(items) == 0 {
		return nil
	}
	ns := store.Namespace(namespace)
	if err := checkNamespace(ns); err != nil {
		return err
	}
	if err := store.CheckDimensions(s.dimensions, store.ItemVectors(items)...); err != nil {
		return err
	}
	defer store.Observe(s.metrics, backendName, "upsert", time.Now(), &err)

	items = store.DedupeItems(items)
	type row struct {
		key, id  string
		blob     []byte
		metadata string
	}
	rows := make([]row, len(items))
	keys := make([]string, len(items))
	for i, item := range items {
		blob, err := sqlite_vec.SerializeFloat32(item.Vector)
		if err != nil {
			return fmt.Errorf("failed to serialize vector %s: %w", item.ID, err)
		}
		metadata, err := json.Marshal(store.CopyMetadata(item.Metadata))
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", item.ID, err)
		}
		keys[i] = store.CompositeKey(ns, item.ID)
		rows[i] = row{key: keys[i], id: item.ID, blob: blob, metadata: string(metadata)}
	}

	err = s.w.do(ctx, func(ctx context.Context, db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		// Step 1: remove existing rows for these keys.
		if _, err := deleteKeys(ctx, tx, ns, keys); err != nil {
			return fmt.Errorf("failed to delete existing rows: %w", err)
		}

		// Step 2: insert replacements.
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO vec_items (composite_id, namespace, embedding, metadata, item_id)
			VALUES (?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.key, ns, r.blob, r.metadata, r.id); err != nil {
				return fmt.Errorf("failed to insert %s: %w", r.id, err)
			}
		}

		return tx.Commit()
	})
	if err != nil {
		return store.WrapError(backendName, "upsert", err)
	}

	log.Debug("Upserted vectors", "backend", backendName, "namespace", ns, "count", len(rows))
	return nil
}

// candidate is one KNN row before filtering.
type candidate struct {
	id       string
	distance float64
	metadata map[string]any
}

// Query runs a KNN match scoped to the namespace partition. Metadata filters
// cannot be pushed into the KNN match, so filtered queries over-fetch and
// filter client-side, doubling k until top_k matches are found, the
// partition is exhausted, or k reaches the sqlite-vec ceiling. Past the
// ceiling the result may be shorter than top_k.
func (s *Store) Query(ctx context.Context, namespace string, vector []float32, topK int, filters store.Filters) (results []store.QueryResult, err error) {
	if err := store.ValidateQuery(topK); err != nil {
		return nil, err
	}
	if err := store.CheckDimensions(s.dimensions, vector); err != nil {
		return nil, err
	}
	ns := store.Namespace(namespace)
	defer store.Observe(s.metrics, backendName, "query", time.Now(), &err)

	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query vector: %w", err)
	}

	fetchK := fetchSize(topK, len(filters) > 0, s.overFetch)

	// The job may outlive a cancelled caller, so it only touches locals.
	var found []store.QueryResult
	err = s.w.do(ctx, func(ctx context.Context, db *sql.DB) error {
		for {
			rows, err := knn(ctx, db, ns, blob, fetchK)
			if err != nil {
				return err
			}

			found = found[:0]
			for _, c := range rows {
				if len(filters) > 0 && !store.MatchFilters(c.metadata, filters) {
					continue
				}
				found = append(found, store.QueryResult{
					ID:       c.id,
					Score:    ScoreFromDistance(c.distance),
					Metadata: c.metadata,
				})
				if len(found) >= topK {
					return nil
				}
			}

			exhausted := len(rows) < fetchK
			if len(filters) == 0 || exhausted || fetchK >= maxKNN {
				return nil
			}
			fetchK = min(fetchK*2, maxKNN)
			log.Debug("Refetching filtered candidates", "namespace", ns, "k", fetchK, "matched", len(found))
		}
	})
	if err != nil {
		return nil, store.WrapError(backendName, "query", err)
	}

	if found == nil {
		found = []store.QueryResult{}
	}
	return found, nil
}

// fetchSize is the first k of a KNN match. topK is clamped before the
// over-fetch multiplication so a huge topK cannot overflow.
func fetchSize(topK int, filtered bool, overFetch int) int {
	k := min(topK, maxKNN)
	if filtered {
		k = min(k*overFetch, maxKNN)
	}
	return k
}

func knn(ctx context.Context, db *sql.DB, ns string, blob []byte, k int) ([]candidate, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT item_id, distance, metadata
		FROM vec_items
		WHERE embedding MATCH ?
			AND k = ?
			AND namespace = ?
		ORDER BY distance ASC
	`, blob, k, ns)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var out []candidate
	for rows.Next() {
		var c candidate
		var metadata sql.NullString
		if err := rows.Scan(&c.id, &c.distance, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		if c.metadata, err = decodeMetadata(metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", c.id, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Delete removes matching items. An id-only delete counts and deletes the
// composite keys in one transaction. When filters are present every row in
// the namespace is read and matched client-side.
func (s *Store) Delete(ctx context.Context, namespace string, ids []string, filters store.Filters) (deleted int, err error) {
	if err := store.ValidateDelete(ids, filters); err != nil {
		return 0, err
	}
	ns := store.Namespace(namespace)
	ids = store.DedupeIDs(ids)
	defer store.Observe(s.metrics, backendName, "delete", time.Now(), &err)

	var n int
	err = s.w.do(ctx, func(ctx context.Context, db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		var keys []string
		if len(filters) == 0 {
			keys = make([]string, len(ids))
			for i, id := range ids {
				keys[i] = store.CompositeKey(ns, id)
			}
			if n, err = countKeys(ctx, tx, ns, keys); err != nil {
				return err
			}
		} else {
			if keys, err = matchingKeys(ctx, tx, ns, ids, filters); err != nil {
				return err
			}
			n = len(keys)
		}

		if n == 0 {
			return nil
		}
		if _, err := deleteKeys(ctx, tx, ns, keys); err != nil {
			return fmt.Errorf("failed to delete: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, store.WrapError(backendName, "delete", err)
	}

	log.Debug("Deleted vectors", "backend", backendName, "namespace", ns, "count", n)
	return n, nil
}

// matchingKeys scans the namespace and returns composite keys of rows whose
// metadata matches filters and, if ids is non-empty, whose id is in ids.
func matchingKeys(ctx context.Context, tx *sql.Tx, ns string, ids []string, filters store.Filters) ([]string, error) {
	var idSet map[string]bool
	if len(ids) > 0 {
		idSet = make(map[string]bool, len(ids))
		for _, id := range ids {
			idSet[id] = true
		}
	}

	rows, err := tx.QueryContext(ctx, "SELECT item_id, metadata FROM vec_items WHERE namespace = ?", ns)
	if err != nil {
		return nil, fmt.Errorf("failed to scan namespace: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var id string
		var raw sql.NullString
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if idSet != nil && !idSet[id] {
			continue
		}
		metadata, err := decodeMetadata(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", id, err)
		}
		if store.MatchFilters(metadata, filters) {
			keys = append(keys, store.CompositeKey(ns, id))
		}
	}
	return keys, rows.Err()
}

// Get returns the stored items for ids in the namespace. Missing ids are skipped.
func (s *Store) Get(ctx context.Context, namespace string, ids []string) ([]store.VectorItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ns := store.Namespace(namespace)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = store.CompositeKey(ns, id)
	}

	var items []store.VectorItem
	err := s.w.do(ctx, func(ctx context.Context, db *sql.DB) error {
		for _, batch := range batches(keys) {
			args := append([]any{ns}, stringArgs(batch)...)
			rows, err := db.QueryContext(ctx, fmt.Sprintf(`
				SELECT item_id, vec_to_json(embedding), metadata
				FROM vec_items
				WHERE namespace = ? AND composite_id IN (%s)
			`, placeholders(len(batch))), args...)
			if err != nil {
				return fmt.Errorf("failed to get items: %w", err)
			}

			for rows.Next() {
				var item store.VectorItem
				var vecJSON string
				var raw sql.NullString
				if err := rows.Scan(&item.ID, &vecJSON, &raw); err != nil {
					rows.Close()
					return fmt.Errorf("failed to scan item: %w", err)
				}
				if err := json.Unmarshal([]byte(vecJSON), &item.Vector); err != nil {
					rows.Close()
					return fmt.Errorf("failed to decode vector for %s: %w", item.ID, err)
				}
				if item.Metadata, err = decodeMetadata(raw); err != nil {
					rows.Close()
					return fmt.Errorf("failed to decode metadata for %s: %w", item.ID, err)
				}
				items = append(items, item)
			}
			if err := rows.Close(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, store.WrapError(backendName, "get", err)
	}
	return items, nil
}

// Count returns the number of items in the namespace.
func (s *Store) Count(ctx context.Context, namespace string) (int, error) {
	ns := store.Namespace(namespace)

	var count int
	err := s.w.do(ctx, func(ctx context.Context, db *sql.DB) error {
		return db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vec_items WHERE namespace = ?", ns).Scan(&count)
	})
	if err != nil {
		return 0, store.WrapError(backendName, "count", err)
	}
	return count, nil
}

func countKeys(ctx context.Context, tx *sql.Tx, ns string, keys []string) (int, error) {
	total := 0
	for _, batch := range batches(keys) {
		var n int
		args := append([]any{ns}, stringArgs(batch)...)
		err := tx.QueryRowContext(ctx, fmt.Sprintf(`
			SELECT COUNT(*) FROM vec_items
			WHERE namespace = ? AND composite_id IN (%s)
		`, placeholders(len(batch))), args...).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("failed to count existing rows: %w", err)
		}
		total += n
	}
	return total, nil
}

func deleteKeys(ctx context.Context, tx *sql.Tx, ns string, keys []string) (int64, error) {
	var total int64
	for _, batch := range batches(keys) {
		args := append([]any{ns}, stringArgs(batch)...)
		res, err := tx.ExecContext(ctx, fmt.Sprintf(`
			DELETE FROM vec_items
			WHERE namespace = ? AND composite_id IN (%s)
		`, placeholders(len(batch))), args...)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func decodeMetadata(raw sql.NullString) (map[string]any, error) {
	metadata := map[string]any{}
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return metadata, nil
	}
	if err := json.Unmarshal([]byte(raw.String), &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

// batches splits keys so no statement exceeds maxParams bound values.
func batches(keys []string) [][]string {
	var out [][]string
	for len(keys) > maxParams {
		out = append(out, keys[:maxParams])
		keys = keys[maxParams:]
	}
	if len(keys) > 0 {
		out = append(out, keys)
	}
	return out
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

package store

import "context"

// Store defines the vector storage contract. Callers hold a Store and never a
// concrete adapter.
type Store interface {
	// Upsert inserts or fully replaces items keyed by (namespace, id).
	// An empty batch performs no I/O.
	Upsert(ctx context.Context, namespace string, items []VectorItem) error

	// Query returns at most topK results in the namespace, ordered by
	// descending score. Non-nil filters restrict results to items whose
	// metadata matches every key exactly.
	Query(ctx context.Context, namespace string, vector []float32, topK int, filters Filters) ([]QueryResult, error)

	// Delete removes items in the namespace matching ids, filters, or both,
	// and returns how many were removed. At least one of ids or filters must
	// be supplied.
	Delete(ctx context.Context, namespace string, ids []string, filters Filters) (int, error)

	// Close releases the underlying connection pool or client.
	Close() error
}

// ValidateQuery checks query arguments before any engine I/O.
func ValidateQuery(topK int) error {
	if topK < 1 {
		return ErrInvalidTopK
	}
	return nil
}

// ValidateDelete rejects an unscoped delete before any engine I/O.
func ValidateDelete(ids []string, filters Filters) error {
	if len(ids) == 0 && len(filters) == 0 {
		return ErrUnscopedDelete
	}
	return nil
}

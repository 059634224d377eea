package pgstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/nickcecere/vectorkit/internal/store"
)

// maxUpsertRows keeps one INSERT under the protocol limit of 65535 bound
// parameters (four per row).
const maxUpsertRows = 10000

// quoteTable sanitizes a table name, allowing an optional schema prefix.
func quoteTable(table string) (string, error) {
	if table == "" {
		return "", fmt.Errorf("table name is required")
	}
	parts := strings.Split(table, ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("invalid table name %q", table)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}

// filterClauses builds one typed JSONB equality predicate per filter key,
// numbering parameters from next. Keys are sorted so the SQL is stable.
func filterClauses(filters store.Filters, next int) ([]string, []any, error) {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		raw, err := json.Marshal(filters[k])
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", store.ErrUnsupportedFilter, k, err)
		}
		clauses = append(clauses, fmt.Sprintf("metadata -> $%d::text = $%d::jsonb", next, next+1))
		args = append(args, k, string(raw))
		next += 2
	}
	return clauses, args, nil
}

// buildUpsert returns one multi-row INSERT with an ON CONFLICT replace.
func buildUpsert(table, ns string, items []store.VectorItem) (string, []any, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (namespace, id, embedding, metadata) VALUES ", table)

	args := make([]any, 0, len(items)*4)
	for i, item := range items {
		metadata, err := json.Marshal(store.CopyMetadata(item.Metadata))
		if err != nil {
			return "", nil, fmt.Errorf("failed to encode metadata for %s: %w", item.ID, err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 4
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d::jsonb)", n+1, n+2, n+3, n+4)
		vec := make([]float32, len(item.Vector))
		copy(vec, item.Vector)
		args = append(args, ns, item.ID, pgvector.NewVector(vec), string(metadata))
	}

	sb.WriteString(" ON CONFLICT (namespace, id) DO UPDATE SET embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata")
	return sb.String(), args, nil
}

// buildQuery returns a similarity search ordered by cosine distance. The
// selected score is 1 - distance.
func buildQuery(table, ns string, vector []float32, topK int, filters store.Filters) (string, []any, error) {
	args := []any{pgvector.NewVector(vector), ns}
	where := []string{"namespace = $2"}

	clauses, fargs, err := filterClauses(filters, 3)
	if err != nil {
		return "", nil, err
	}
	where = append(where, clauses...)
	args = append(args, fargs...)
	args = append(args, topK)

	sql := fmt.Sprintf(`SELECT id, 1 - (embedding <=> $1) AS score, metadata FROM %s WHERE %s ORDER BY embedding <=> $1 LIMIT $%d`,
		table, strings.Join(where, " AND "), len(args))
	return sql, args, nil
}

// buildDelete returns a single scoped DELETE.
func buildDelete(table, ns string, ids []string, filters store.Filters) (string, []any, error) {
	args := []any{ns}
	where := []string{"namespace = $1"}

	if len(ids) > 0 {
		args = append(args, ids)
		where = append(where, fmt.Sprintf("id = ANY($%d)", len(args)))
	}

	clauses, fargs, err := filterClauses(filters, len(args)+1)
	if err != nil {
		return "", nil, err
	}
	where = append(where, clauses...)
	args = append(args, fargs...)

	return fmt.Sprintf("DELETE FROM %s WHERE %s", table, strings.Join(where, " AND ")), args, nil
}

// chunkItems splits items into INSERT-sized batches.
func chunkItems(items []store.VectorItem, size int) [][]store.VectorItem {
	var out [][]store.VectorItem
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

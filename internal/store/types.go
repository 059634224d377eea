// Package store defines the vector store contract shared by every backend
// adapter: namespaced upsert, similarity query and scoped delete.
package store

// DefaultNamespace is used when a caller passes an empty namespace.
const DefaultNamespace = "__global__"

// VectorItem is a single vector with its metadata, keyed by (namespace, ID).
type VectorItem struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QueryResult is one ranked match. Score is normalized so that higher means
// more similar and 1.0 is the maximum for cosine-family metrics.
type QueryResult struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// Filters is a set of exact-match metadata constraints combined with AND.
type Filters map[string]any

// Namespace returns ns, or DefaultNamespace when ns is empty.
func Namespace(ns string) string {
	if ns == "" {
		return DefaultNamespace
	}
	return ns
}

// CompositeKey joins a namespace and item ID for engines that need a single
// globally unique primary key.
func CompositeKey(namespace, id string) string {
	return namespace + ":" + id
}

// DedupeItems drops earlier occurrences of a repeated ID so the last write in
// a batch wins. Order of the surviving items is preserved.
func DedupeItems(items []VectorItem) []VectorItem {
	last := make(map[string]int, len(items))
	for i, item := range items {
		last[item.ID] = i
	}
	if len(last) == len(items) {
		return items
	}

	out := make([]VectorItem, 0, len(last))
	for i, item := range items {
		if last[item.ID] == i {
			out = append(out, item)
		}
	}
	return out
}

// DedupeIDs drops repeated ids, keeping the first occurrence of each.
func DedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// CopyMetadata returns a shallow copy of m, never nil.
func CopyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

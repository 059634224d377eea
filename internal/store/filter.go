package store

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// MatchFilters reports whether metadata satisfies every filter by exact
// equality. Values are compared in their JSON form, so an int filter matches
// a metadata number decoded as float64. A missing key never matches.
func MatchFilters(metadata map[string]any, filters Filters) bool {
	for key, want := range filters {
		got, ok := metadata[key]
		if !ok {
			return false
		}
		if !jsonEqual(got, want) {
			return false
		}
	}
	return true
}

// NormalizeJSON converts v to the value encoding/json would decode from its
// serialized form (numbers become float64, structs become maps, etc.).
func NormalizeJSON(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return out, nil
}

func jsonEqual(a, b any) bool {
	na, err := NormalizeJSON(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeJSON(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}

// CheckDimensions verifies every vector has exactly dims components.
// A dims of zero disables the check.
func CheckDimensions(dims int, vectors ...[]float32) error {
	if dims <= 0 {
		return nil
	}
	for _, v := range vectors {
		if len(v) != dims {
			return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dims)
		}
	}
	return nil
}

// ItemVectors returns the vectors of items in order.
func ItemVectors(items []VectorItem) [][]float32 {
	out := make([][]float32, len(items))
	for i, item := range items {
		out[i] = item.Vector
	}
	return out
}

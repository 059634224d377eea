package qdrantstore

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/nickcecere/vectorkit/internal/store"
)

// Hidden payload fields. They are never returned as metadata.
const (
	namespaceField = "_namespace"
	idField        = "_id"
)

// pointNamespace seeds the UUIDv5 derivation of point ids.
var pointNamespace = uuid.MustParse("6f1f5c3e-8a47-4c2e-9d0b-3a1e5e7b2c90")

// PointID derives the Qdrant point id for an item. Qdrant only accepts UUIDs
// or integers, and the same caller id may exist in several namespaces.
func PointID(namespace, id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(store.CompositeKey(namespace, id))).String()
}

func pointIDs(namespace string, ids []string) []*qdrant.PointId {
	ids = store.DedupeIDs(ids)
	out := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		out[i] = qdrant.NewID(PointID(namespace, id))
	}
	return out
}

func checkReserved(metadata map[string]any) error {
	for _, k := range []string{namespaceField, idField} {
		if _, ok := metadata[k]; ok {
			return fmt.Errorf("%w: %s", store.ErrReservedKey, k)
		}
	}
	return nil
}

// buildPayload merges metadata with the hidden fields. Metadata is normalized
// through JSON first so nested slices and maps have types the client accepts.
func buildPayload(namespace string, item store.VectorItem) (map[string]*qdrant.Value, error) {
	if err := checkReserved(item.Metadata); err != nil {
		return nil, err
	}

	normalized, err := store.NormalizeJSON(store.CopyMetadata(item.Metadata))
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata for %s: %w", item.ID, err)
	}
	fields, _ := normalized.(map[string]any)
	if fields == nil {
		fields = map[string]any{}
	}
	fields[namespaceField] = namespace
	fields[idField] = item.ID

	payload, err := qdrant.TryValueMap(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload for %s: %w", item.ID, err)
	}
	return payload, nil
}

// splitPayload returns the caller id, namespace and metadata of a stored point.
func splitPayload(payload map[string]*qdrant.Value) (id, namespace string, metadata map[string]any) {
	metadata = make(map[string]any, len(payload))
	for k, v := range payload {
		switch k {
		case idField:
			id = v.GetStringValue()
		case namespaceField:
			namespace = v.GetStringValue()
		default:
			metadata[k] = valueToAny(v)
		}
	}
	return id, namespace, metadata
}

// valueToAny converts a payload value to the shape encoding/json would decode.
func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_IntegerValue:
		return float64(kind.IntegerValue)
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		out := make([]any, len(values))
		for i, item := range values {
			out[i] = valueToAny(item)
		}
		return out
	case *qdrant.Value_StructValue:
		fields := kind.StructValue.GetFields()
		out := make(map[string]any, len(fields))
		for k, item := range fields {
			out[k] = valueToAny(item)
		}
		return out
	default:
		return nil
	}
}

// buildFilter scopes a request to a namespace and ANDs the metadata filters.
// Keys are sorted so the filter is deterministic.
func buildFilter(namespace string, filters store.Filters, ids []*qdrant.PointId) (*qdrant.Filter, error) {
	must := []*qdrant.Condition{qdrant.NewMatch(namespaceField, namespace)}
	if len(ids) > 0 {
		must = append(must, qdrant.NewHasID(ids...))
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k == namespaceField || k == idField {
			return nil, fmt.Errorf("%w: %s", store.ErrReservedKey, k)
		}
		cond, err := condition(k, filters[k])
		if err != nil {
			return nil, err
		}
		must = append(must, cond)
	}
	return &qdrant.Filter{Must: must}, nil
}

func condition(key string, value any) (*qdrant.Condition, error) {
	switch v := value.(type) {
	case nil:
		return qdrant.NewIsNull(key), nil
	case string:
		return qdrant.NewMatch(key, v), nil
	case bool:
		return qdrant.NewMatchBool(key, v), nil
	}

	if f, ok := toFloat(value); ok {
		// A closed range matches integer and double payloads alike.
		return qdrant.NewRange(key, &qdrant.Range{
			Gte: qdrant.PtrOf(f),
			Lte: qdrant.PtrOf(f),
		}), nil
	}
	return nil, fmt.Errorf("%w: %s has type %T", store.ErrUnsupportedFilter, key, value)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// ScoreFromDistance converts a Qdrant score to the similarity convention.
// Cosine and dot scores are similarities and pass through. Euclid and
// manhattan scores are distances, mapped to 1/(1+d) in (0, 1].
func ScoreFromDistance(score float64, distance qdrant.Distance) float64 {
	switch distance {
	case qdrant.Distance_Euclid, qdrant.Distance_Manhattan:
		return 1 / (1 + score)
	default:
		return score
	}
}

// ParseDistance maps a configured metric name to the Qdrant enum.
func ParseDistance(name string) (qdrant.Distance, error) {
	switch strings.ToLower(name) {
	case "", "cosine":
		return qdrant.Distance_Cosine, nil
	case "dot":
		return qdrant.Distance_Dot, nil
	case "euclid", "euclidean":
		return qdrant.Distance_Euclid, nil
	case "manhattan":
		return qdrant.Distance_Manhattan, nil
	default:
		return 0, fmt.Errorf("unknown distance %q (use cosine, dot, euclid or manhattan)", name)
	}
}

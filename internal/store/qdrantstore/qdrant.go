// Package qdrantstore implements store.Store on a remote Qdrant service over
// gRPC. Namespaces are a hidden payload field within a single collection.
package qdrantstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"

	"github.com/nickcecere/vectorkit/internal/store"
)

const backendName = "qdrant"

// Connection defaults.
const (
	DefaultHost       = "localhost"
	DefaultPort       = 6334
	DefaultCollection = "vectorkit"
	DefaultKeepalive  = 30 * time.Second
)

// Config configures the Qdrant store.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool

	Collection string
	VectorSize int
	// Distance is one of cosine, dot, euclid or manhattan.
	Distance string
	OnDisk   bool

	// Keepalive is the gRPC ping interval. Zero uses DefaultKeepalive and a
	// negative value disables pings.
	Keepalive time.Duration
}

// Option configures optional Store behavior.
type Option func(*Store)

// WithMetrics sets the metrics hook.
func WithMetrics(m store.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Store implements store.Store on a Qdrant collection.
type Store struct {
	client     *qdrant.Client
	collection string
	vectorSize int
	distance   qdrant.Distance
	onDisk     bool
	metrics    store.Metrics
}

var _ store.Store = (*Store)(nil)

// New creates the gRPC client. Every operation creates the collection if it
// does not exist.
func New(cfg Config, opts ...Option) (*Store, error) {
	if cfg.VectorSize <= 0 {
		return nil, fmt.Errorf("vector size must be positive, got %d", cfg.VectorSize)
	}
	distance, err := ParseDistance(cfg.Distance)
	if err != nil {
		return nil, err
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		APIKey:      cfg.APIKey,
		UseTLS:      cfg.UseTLS,
		GrpcOptions: dialOptions(cfg.Keepalive),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &Store{
		client:     client,
		collection: cfg.Collection,
		vectorSize: cfg.VectorSize,
		distance:   distance,
		onDisk:     cfg.OnDisk,
		metrics:    store.NoopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}

	log.Debug("Created Qdrant client", "host", cfg.Host, "port", cfg.Port, "collection", cfg.Collection)
	return s, nil
}

func dialOptions(interval time.Duration) []grpc.DialOption {
	if interval < 0 {
		return nil
	}
	if interval == 0 {
		interval = DefaultKeepalive
	}
	return []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                interval,
			Timeout:             interval / 3,
			PermitWithoutStream: true,
		}),
	}
}

// Close closes the gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// ensureCollection creates the collection and its namespace index when the
// collection is missing. It runs before every operation, so a collection
// dropped out of band is recreated. A concurrent create counts as success.
func (s *Store) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	log.Info("Creating Qdrant collection", "collection", s.collection, "size", s.vectorSize, "distance", s.distance)
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.vectorSize),
			Distance: s.distance,
			OnDisk:   qdrant.PtrOf(s.onDisk),
		}),
	})
	if isAlreadyExists(err) {
		log.Debug("Collection created concurrently", "collection", s.collection)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      namespaceField,
		FieldType:      qdrant.PtrOf(qdrant.FieldType_FieldTypeKeyword),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		log.Warn("Failed to index namespace field", "collection", s.collection, "error", err)
	}
	return nil
}

// isAlreadyExists reports whether err is Qdrant rejecting a create for a
// collection that exists. Some server versions answer with InvalidArgument.
func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.AlreadyExists:
		return true
	case codes.InvalidArgument:
		return strings.Contains(strings.ToLower(err.Error()), "already exists")
	}
	return false
}

// Upsert writes points keyed by the derived point id and waits for the
// write to be applied.
func (s *Store) Upsert(ctx context.Context, namespace string, items []store.VectorItem) (err error) {
	if len(items) == 0 {
		return nil
	}
	if err := store.CheckDimensions(s.vectorSize, store.ItemVectors(items)...); err != nil {
		return err
	}
	ns := store.Namespace(namespace)

	items = store.DedupeItems(items)
	points := make([]*qdrant.PointStruct, len(items))
	for i, item := range items {
		payload, err := buildPayload(ns, item)
		if err != nil {
			return err
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(ns, item.ID)),
			Vectors: qdrant.NewVectors(item.Vector...),
			Payload: payload,
		}
	}

	defer store.Observe(s.metrics, backendName, "upsert", time.Now(), &err)
	if err := s.ensureCollection(ctx); err != nil {
		return store.WrapError(backendName, "upsert", err)
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return store.WrapError(backendName, "upsert", err)
	}

	log.Debug("Upserted vectors", "backend", backendName, "namespace", ns, "count", len(points))
	return nil
}

// Query runs a filtered similarity search. Scores are mapped by
// ScoreFromDistance so higher always means closer.
func (s *Store) Query(ctx context.Context, namespace string, vector []float32, topK int, filters store.Filters) (results []store.QueryResult, err error) {
	if err := store.ValidateQuery(topK); err != nil {
		return nil, err
	}
	if err := store.CheckDimensions(s.vectorSize, vector); err != nil {
		return nil, err
	}
	ns := store.Namespace(namespace)

	filter, err := buildFilter(ns, filters, nil)
	if err != nil {
		return nil, err
	}

	defer store.Observe(s.metrics, backendName, "query", time.Now(), &err)
	if err := s.ensureCollection(ctx); err != nil {
		return nil, store.WrapError(backendName, "query", err)
	}

	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, store.WrapError(backendName, "query", err)
	}

	return toResults(hits, s.distance), nil
}

// toResults converts scored points, which Qdrant returns best first.
func toResults(hits []*qdrant.ScoredPoint, distance qdrant.Distance) []store.QueryResult {
	results := make([]store.QueryResult, 0, len(hits))
	for _, hit := range hits {
		id, _, metadata := splitPayload(hit.GetPayload())
		results = append(results, store.QueryResult{
			ID:       id,
			Score:    ScoreFromDistance(float64(hit.GetScore()), distance),
			Metadata: metadata,
		})
	}
	return results
}

// Delete counts the matching points with the same filter the delete uses,
// then removes them with one filtered delete. The count and the delete are
// separate requests, so a concurrent write in between can make the returned
// count inexact. Filters follow Qdrant's match semantics: a scalar filter
// also matches an array payload containing that value.
func (s *Store) Delete(ctx context.Context, namespace string, ids []string, filters store.Filters) (deleted int, err error) {
	if err := store.ValidateDelete(ids, filters); err != nil {
		return 0, err
	}
	ns := store.Namespace(namespace)

	var pids []*qdrant.PointId
	if len(ids) > 0 {
		pids = pointIDs(ns, ids)
	}
	filter, err := buildFilter(ns, filters, pids)
	if err != nil {
		return 0, err
	}

	defer store.Observe(s.metrics, backendName, "delete", time.Now(), &err)
	if err := s.ensureCollection(ctx); err != nil {
		return 0, store.WrapError(backendName, "delete", err)
	}

	deleted, err = s.countByFilter(ctx, filter)
	if err != nil {
		return 0, store.WrapError(backendName, "delete", err)
	}
	if deleted == 0 {
		return 0, nil
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return 0, store.WrapError(backendName, "delete", err)
	}

	log.Debug("Deleted vectors", "backend", backendName, "namespace", ns, "count", deleted)
	return deleted, nil
}

func (s *Store) countByFilter(ctx context.Context, filter *qdrant.Filter) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int(n), nil
}

package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/vectorindex"
	"github.com/qdrant/go-client/qdrant"
)

// Config describes how to reach Qdrant.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// client is the subset of *qdrant.Client the index uses.
type client interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, request *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Scroll(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	Close() error
}

// Index is a vectorindex.Index backed by a Qdrant collection.
type Index struct {
	client     client
	collection string
	batchSize  int
	logger     *slog.Logger

	ensureMu sync.Mutex
	ensured  bool
}

var _ vectorindex.Index = (*Index)(nil)

// Option configures an Index.
type Option func(*Index) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) error {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger
		return nil
	}
}

// WithCollection sets the collection name.
// Default is vectorindex.DefaultCollection.
func WithCollection(name string) Option {
	return func(i *Index) error {
		if name == "" {
			return vectorindex.ErrCollectionRequired
		}
		i.collection = name
		return nil
	}
}

// WithUpsertBatchSize sets the number of points per upsert request.
func WithUpsertBatchSize(size int) Option {
	return func(i *Index) error {
		if size <= 0 {
			return fmt.Errorf("upsert batch size must be positive, got %d", size)
		}
		i.batchSize = size
		return nil
	}
}

// New connects to Qdrant. The connection is lazy; use Health to probe it.
func New(cfg Config, opts ...Option) (vectorindex.Index, error) {
	c, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, vectorindex.Wrap("connect", err)
	}
	idx, err := newIndex(c, opts...)
	if err != nil {
		c.Close()
		return nil, err
	}
	return idx, nil
}

func newIndex(c client, opts ...Option) (*Index, error) {
	i := &Index{
		client:     c,
		collection: vectorindex.DefaultCollection,
		batchSize:  vectorindex.DefaultUpsertBatchSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, err
		}
	}
	i.logger = i.logger.With("component", "qdrant-vector-index", "collection", i.collection)
	return i, nil
}

// Collection returns the collection name.
func (i *Index) Collection() string {
	return i.collection
}

// EnsureCollection creates the collection and its payload indexes if missing.
func (i *Index) EnsureCollection(ctx context.Context, dim int) error {
	i.ensureMu.Lock()
	defer i.ensureMu.Unlock()
	if i.ensured {
		return nil
	}

	exists, err := i.client.CollectionExists(ctx, i.collection)
	if err != nil {
		return vectorindex.Wrap("ensure collection", err)
	}
	if !exists {
		if dim <= 0 {
			return vectorindex.Wrap("ensure collection", fmt.Errorf("%w: %d", vectorindex.ErrDimensionMismatch, dim))
		}
		i.logger.Info("creating collection", "dimensions", dim)
		err := i.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: i.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return vectorindex.Wrap("create collection", err)
		}
		for _, field := range []string{vectorindex.FieldDocumentID, vectorindex.FieldOwnerID} {
			_, err := i.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: i.collection,
				FieldName:      field,
				FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
				Wait:           qdrant.PtrOf(true),
			})
			if err != nil {
				return vectorindex.Wrap("create payload index "+field, err)
			}
		}
	}
	i.ensured = true
	return nil
}

// Upsert writes points in sub-batches and waits for each to be applied.
func (i *Index) Upsert(ctx context.Context, points []vectorindex.Point) error {
	if len(points) == 0 {
		return nil
	}
	return vectorindex.UpsertInBatches(ctx, points, i.batchSize, func(ctx context.Context, batch []vectorindex.Point) error {
		structs := make([]*qdrant.PointStruct, 0, len(batch))
		for _, p := range batch {
			payload, err := qdrant.TryValueMap(p.Payload.Map())
			if err != nil {
				return fmt.Errorf("point %s payload: %w", p.ID, err)
			}
			structs = append(structs, &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(string(p.ID)),
				Vectors: qdrant.NewVectorsDense(p.Vector),
				Payload: payload,
			})
		}
		_, err := i.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: i.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         structs,
		})
		return err
	})
}

// Search queries the collection with the server-side score threshold.
func (i *Index) Search(ctx context.Context, vector []float32, limit int, threshold float32, filter vectorindex.Filter) ([]vectorindex.Hit, error) {
	if limit <= 0 {
		return []vectorindex.Hit{}, nil
	}
	points, err := i.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: i.collection,
		Query:          qdrant.NewQueryDense(vector),
		Filter:         toQdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint64(limit)),
		ScoreThreshold: qdrant.PtrOf(threshold),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, vectorindex.Wrap("search", err)
	}

	hits := make([]vectorindex.Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, vectorindex.Hit{
			ID:      core.ID(p.GetId().GetUuid()),
			Score:   p.GetScore(),
			Payload: vectorindex.PayloadFromMap(valueMapToAny(p.GetPayload())),
		})
	}
	return hits, nil
}

// Scroll lists matching points without vectors.
func (i *Index) Scroll(ctx context.Context, filter vectorindex.Filter, limit int) ([]vectorindex.Hit, error) {
	if limit <= 0 {
		return []vectorindex.Hit{}, nil
	}
	points, err := i.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: i.collection,
		Filter:         toQdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, vectorindex.Wrap("scroll", err)
	}

	hits := make([]vectorindex.Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, vectorindex.Hit{
			ID:      core.ID(p.GetId().GetUuid()),
			Payload: vectorindex.PayloadFromMap(valueMapToAny(p.GetPayload())),
		})
	}
	return hits, nil
}

// DeleteByFilter removes matching points and waits for the deletion.
func (i *Index) DeleteByFilter(ctx context.Context, filter vectorindex.Filter) error {
	if filter.IsEmpty() {
		return vectorindex.Wrap("delete", vectorindex.ErrEmptyFilter)
	}
	_, err := i.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: i.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(toQdrantFilter(filter)),
	})
	if err != nil {
		return vectorindex.Wrap("delete", err)
	}
	return nil
}

// Health calls the Qdrant health check endpoint.
func (i *Index) Health(ctx context.Context) error {
	if _, err := i.client.HealthCheck(ctx); err != nil {
		return vectorindex.Wrap("health", err)
	}
	return nil
}

// Close closes the gRPC connection.
func (i *Index) Close() error {
	return i.client.Close()
}

// toQdrantFilter converts a filter into must conditions. Nil means no filter.
func toQdrantFilter(f vectorindex.Filter) *qdrant.Filter {
	if f.IsEmpty() {
		return nil
	}
	var must []*qdrant.Condition
	if f.DocumentID != "" {
		must = append(must, qdrant.NewMatchKeyword(vectorindex.FieldDocumentID, string(f.DocumentID)))
	}
	if f.OwnerID != "" {
		must = append(must, qdrant.NewMatchKeyword(vectorindex.FieldOwnerID, f.OwnerID))
	}
	if f.ChunkIndex != nil {
		must = append(must, qdrant.NewMatchInt(vectorindex.FieldChunkIndex, int64(*f.ChunkIndex)))
	}
	return &qdrant.Filter{Must: must}
}

// valueMapToAny converts a Qdrant payload back into plain Go values.
func valueMapToAny(m map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = valueToAny(v)
	}
	return out
}

func valueToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		return valueMapToAny(kind.StructValue.GetFields())
	case *qdrant.Value_ListValue:
		values := kind.ListValue.GetValues()
		list := make([]any, len(values))
		for i, item := range values {
			list[i] = valueToAny(item)
		}
		return list
	}
	return nil
}

// Package badger implements vectorindex.Index as an embedded brute-force
// cosine index stored in badger.
//
// Vectors are normalized on write so a query is a dot product against every
// matching point. Points are keyed by document and chunk index, so filtering
// by document reads only that document's keys.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/lectern/core"
	store "github.com/poiesic/lectern/storage/badger"
	"github.com/poiesic/lectern/vectorindex"
)

const vectorPrefix = "vec:"

// Index is a vectorindex.Index on a shared badger backend.
type Index struct {
	backend    *store.Backend
	collection string
	batchSize  int
	logger     *slog.Logger

	mu  sync.RWMutex
	dim int
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

// WithUpsertBatchSize sets the number of points written per transaction.
func WithUpsertBatchSize(size int) Option {
	return func(i *Index) error {
		if size <= 0 {
			return fmt.Errorf("upsert batch size must be positive, got %d", size)
		}
		i.batchSize = size
		return nil
	}
}

// New creates an index on backend. The caller owns the backend.
func New(backend *store.Backend, opts ...Option) (vectorindex.Index, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: badger backend required", core.ErrVectorIndex)
	}
	i := &Index{
		backend:    backend,
		collection: vectorindex.DefaultCollection,
		batchSize:  vectorindex.DefaultUpsertBatchSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, err
		}
	}
	i.logger = i.logger.With("component", "badger-vector-index", "collection", i.collection)
	return i, nil
}

func (i *Index) metaKey() []byte {
	return []byte(vectorPrefix + i.collection + ":meta")
}

func (i *Index) pointPrefix() []byte {
	return []byte(vectorPrefix + i.collection + ":pt:")
}

func (i *Index) documentPrefix(id core.ID) []byte {
	return append(i.pointPrefix(), []byte(string(id)+":")...)
}

func (i *Index) pointKey(p vectorindex.Payload) []byte {
	return append(i.documentPrefix(p.DocumentID), []byte(fmt.Sprintf("%08d", p.ChunkIndex))...)
}

// scanPrefix narrows a scan to one document when the filter names it.
func (i *Index) scanPrefix(filter vectorindex.Filter) []byte {
	if filter.DocumentID != "" {
		return i.documentPrefix(filter.DocumentID)
	}
	return i.pointPrefix()
}

type collectionMeta struct {
	Dimensions int `json:"dimensions"`
}

type pointRecord struct {
	ID      string         `json:"id"`
	Vector  []byte         `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func encodePoint(p vectorindex.Point) ([]byte, error) {
	vec, err := pgvector.NewVector(vectorindex.NormalizeVector(p.Vector)).EncodeBinary(nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(pointRecord{ID: string(p.ID), Vector: vec, Payload: p.Payload.Map()})
}

func decodePoint(data []byte) (vectorindex.Point, error) {
	var rec pointRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return vectorindex.Point{}, err
	}
	var vec pgvector.Vector
	if err := vec.DecodeBinary(rec.Vector); err != nil {
		return vectorindex.Point{}, err
	}
	return vectorindex.Point{
		ID:      core.ID(rec.ID),
		Vector:  vec.Slice(),
		Payload: vectorindex.PayloadFromMap(rec.Payload),
	}, nil
}

// Collection returns the collection name.
func (i *Index) Collection() string {
	return i.collection
}

// EnsureCollection records the collection dimension on first use and checks
// it on later calls.
func (i *Index) EnsureCollection(ctx context.Context, dim int) error {
	if dim <= 0 {
		return vectorindex.Wrap("ensure collection", fmt.Errorf("%w: %d", vectorindex.ErrDimensionMismatch, dim))
	}

	err := i.backend.Update(func(tx *badgerdb.Txn) error {
		item, err := tx.Get(i.metaKey())
		switch {
		case err == nil:
			var meta collectionMeta
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &meta) }); err != nil {
				return err
			}
			if meta.Dimensions != dim {
				return fmt.Errorf("%w: collection has %d dimensions, requested %d", vectorindex.ErrDimensionMismatch, meta.Dimensions, dim)
			}
			return nil
		case errors.Is(err, badgerdb.ErrKeyNotFound):
			data, err := json.Marshal(collectionMeta{Dimensions: dim})
			if err != nil {
				return err
			}
			i.logger.Info("creating collection", "dimensions", dim)
			return tx.Set(i.metaKey(), data)
		default:
			return err
		}
	})
	if err != nil {
		return vectorindex.Wrap("ensure collection", err)
	}

	i.mu.Lock()
	i.dim = dim
	i.mu.Unlock()
	return nil
}

// dimensions returns the collection dimension, loading it once from storage.
// Zero means the collection does not exist yet.
func (i *Index) dimensions() (int, error) {
	i.mu.RLock()
	dim := i.dim
	i.mu.RUnlock()
	if dim > 0 {
		return dim, nil
	}

	err := i.backend.View(func(tx *badgerdb.Txn) error {
		item, err := tx.Get(i.metaKey())
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var meta collectionMeta
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &meta) }); err != nil {
			return err
		}
		dim = meta.Dimensions
		return nil
	})
	if err != nil {
		return 0, err
	}
	if dim > 0 {
		i.mu.Lock()
		i.dim = dim
		i.mu.Unlock()
	}
	return dim, nil
}

// Upsert writes points one transaction per sub-batch.
func (i *Index) Upsert(ctx context.Context, points []vectorindex.Point) error {
	if len(points) == 0 {
		return nil
	}
	dim, err := i.dimensions()
	if err != nil {
		return vectorindex.Wrap("upsert", err)
	}
	if dim == 0 {
		dim = len(points[0].Vector)
		if err := i.EnsureCollection(ctx, dim); err != nil {
			return err
		}
	}
	if err := vectorindex.CheckDimensions(points, dim); err != nil {
		return vectorindex.Wrap("upsert", err)
	}

	return vectorindex.UpsertInBatches(ctx, points, i.batchSize, func(_ context.Context, batch []vectorindex.Point) error {
		return i.backend.Update(func(tx *badgerdb.Txn) error {
			for _, p := range batch {
				data, err := encodePoint(p)
				if err != nil {
					return err
				}
				if err := tx.Set(i.pointKey(p.Payload), data); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// scan calls fn for every stored point matching filter.
func (i *Index) scan(filter vectorindex.Filter, fn func(p vectorindex.Point) error) error {
	return i.backend.View(func(tx *badgerdb.Txn) error {
		return store.ScanPrefix(tx, i.scanPrefix(filter), func(_, val []byte) error {
			p, err := decodePoint(val)
			if err != nil {
				return err
			}
			if !filter.Matches(p.Payload) {
				return nil
			}
			return fn(p)
		})
	})
}

// Search scores every matching point against the query vector.
func (i *Index) Search(ctx context.Context, vector []float32, limit int, threshold float32, filter vectorindex.Filter) ([]vectorindex.Hit, error) {
	if limit <= 0 {
		return []vectorindex.Hit{}, nil
	}
	query := vectorindex.NormalizeVector(vector)

	var hits []vectorindex.Hit
	err := i.scan(filter, func(p vectorindex.Point) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(p.Vector) != len(query) {
			return fmt.Errorf("%w: query has %d dimensions, point %s has %d", vectorindex.ErrDimensionMismatch, len(query), p.ID, len(p.Vector))
		}
		score := vectorindex.DotProduct(query, p.Vector)
		if score >= threshold {
			hits = append(hits, vectorindex.Hit{ID: p.ID, Score: score, Payload: p.Payload})
		}
		return nil
	})
	if err != nil {
		return nil, vectorindex.Wrap("search", err)
	}

	// Sort by similarity descending
	slices.SortStableFunc(hits, func(a, b vectorindex.Hit) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Scroll returns matching points in key order.
func (i *Index) Scroll(ctx context.Context, filter vectorindex.Filter, limit int) ([]vectorindex.Hit, error) {
	hits := []vectorindex.Hit{}
	if limit <= 0 {
		return hits, nil
	}
	err := i.scan(filter, func(p vectorindex.Point) error {
		hits = append(hits, vectorindex.Hit{ID: p.ID, Payload: p.Payload})
		if len(hits) >= limit {
			return store.ErrStopScan
		}
		return ctx.Err()
	})
	if err != nil {
		return nil, vectorindex.Wrap("scroll", err)
	}
	return hits, nil
}

// DeleteByFilter removes matching points.
func (i *Index) DeleteByFilter(ctx context.Context, filter vectorindex.Filter) error {
	if filter.IsEmpty() {
		return vectorindex.Wrap("delete", vectorindex.ErrEmptyFilter)
	}

	var keys [][]byte
	err := i.scan(filter, func(p vectorindex.Point) error {
		keys = append(keys, i.pointKey(p.Payload))
		return nil
	})
	if err != nil {
		return vectorindex.Wrap("delete", err)
	}
	if len(keys) == 0 {
		return nil
	}

	err = i.backend.WriteBatch(func(wb *badgerdb.WriteBatch) error {
		for _, key := range keys {
			if err := wb.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return vectorindex.Wrap("delete", err)
	}
	i.logger.Debug("deleted points", "count", len(keys), "document_id", filter.DocumentID, "owner_id", filter.OwnerID)
	return nil
}

// Health reports whether the backend is open.
func (i *Index) Health(ctx context.Context) error {
	return vectorindex.Wrap("health", i.backend.Health(ctx))
}

// Close is a no-op; the backend is owned by the caller.
func (i *Index) Close() error {
	return nil
}

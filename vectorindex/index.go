package vectorindex

import (
	"context"
	"fmt"

	"github.com/poiesic/lectern/core"
)

// DefaultCollection is the collection name used when none is configured.
const DefaultCollection = "lectern_passages"

// DefaultUpsertBatchSize is the number of points sent per upsert request.
const DefaultUpsertBatchSize = 100

// Payload field names, shared by every adapter.
const (
	FieldDocumentID = "document_id"
	FieldOwnerID    = "owner_id"
	FieldChunkIndex = "chunk_index"
	FieldText       = "text"
	FieldMetadata   = "metadata"
)

// Payload is the data stored alongside a vector.
type Payload struct {
	DocumentID core.ID
	OwnerID    string
	ChunkIndex int
	Text       string
	Metadata   map[string]any
}

// Map returns the payload as a generic map keyed by the payload field names.
func (p Payload) Map() map[string]any {
	m := map[string]any{
		FieldDocumentID: string(p.DocumentID),
		FieldOwnerID:    p.OwnerID,
		FieldChunkIndex: int64(p.ChunkIndex),
		FieldText:       p.Text,
	}
	if len(p.Metadata) > 0 {
		m[FieldMetadata] = p.Metadata
	}
	return m
}

// PayloadFromMap is the inverse of Payload.Map. Numbers may arrive as any
// integer or float type.
func PayloadFromMap(m map[string]any) Payload {
	p := Payload{}
	if v, ok := m[FieldDocumentID].(string); ok {
		p.DocumentID = core.ID(v)
	}
	if v, ok := m[FieldOwnerID].(string); ok {
		p.OwnerID = v
	}
	if v, ok := m[FieldText].(string); ok {
		p.Text = v
	}
	switch v := m[FieldChunkIndex].(type) {
	case int:
		p.ChunkIndex = v
	case int64:
		p.ChunkIndex = int(v)
	case float64:
		p.ChunkIndex = int(v)
	}
	if v, ok := m[FieldMetadata].(map[string]any); ok {
		p.Metadata = v
	}
	return p
}

// Point is a vector with its identifier and payload, as written to the index.
type Point struct {
	ID      core.ID
	Vector  []float32
	Payload Payload
}

// PointFromPassage converts a passage into an index point.
func PointFromPassage(p *core.Passage) Point {
	return Point{
		ID:     p.ID,
		Vector: p.Vector,
		Payload: Payload{
			DocumentID: p.DocumentID,
			OwnerID:    p.OwnerID,
			ChunkIndex: p.ChunkIndex,
			Text:       p.Text,
			Metadata:   p.Metadata,
		},
	}
}

// Hit is a point returned by Search or Scroll. Score is zero for Scroll.
type Hit struct {
	ID      core.ID
	Score   float32
	Payload Payload
}

// Filter holds exact-match conditions. Zero-valued fields are ignored; an
// empty Filter matches every point.
type Filter struct {
	DocumentID core.ID
	OwnerID    string
	ChunkIndex *int
}

// IsEmpty reports whether the filter sets no condition.
func (f Filter) IsEmpty() bool {
	return f.DocumentID == "" && f.OwnerID == "" && f.ChunkIndex == nil
}

// Matches reports whether a payload satisfies every condition of the filter.
func (f Filter) Matches(p Payload) bool {
	if f.DocumentID != "" && p.DocumentID != f.DocumentID {
		return false
	}
	if f.OwnerID != "" && p.OwnerID != f.OwnerID {
		return false
	}
	if f.ChunkIndex != nil && p.ChunkIndex != *f.ChunkIndex {
		return false
	}
	return true
}

// ForDocument returns a filter matching one document's passages.
func ForDocument(id core.ID) Filter {
	return Filter{DocumentID: id}
}

// ForPassage returns a filter matching a single passage.
func ForPassage(id core.ID, chunkIndex int) Filter {
	return Filter{DocumentID: id, ChunkIndex: &chunkIndex}
}

// FilterForScope converts a search scope into a filter.
func FilterForScope(scope core.Scope) Filter {
	switch scope.Kind {
	case core.ScopeOwner:
		return Filter{OwnerID: scope.OwnerID}
	case core.ScopeDocument:
		return Filter{DocumentID: scope.DocumentID}
	}
	return Filter{}
}

// Index stores passage vectors in one collection and answers similarity queries.
// Implementations must be safe for concurrent use.
type Index interface {
	// Collection returns the name of the collection the index works on.
	Collection() string

	// EnsureCollection creates the collection for vectors of size dim if it
	// does not exist yet. Calling it again is a no-op.
	EnsureCollection(ctx context.Context, dim int) error

	// Upsert writes points in sub-batches, replacing points with the same ID.
	// The first failing sub-batch aborts the call.
	Upsert(ctx context.Context, points []Point) error

	// Search returns up to limit hits with a score of at least threshold,
	// best first.
	Search(ctx context.Context, vector []float32, limit int, threshold float32, filter Filter) ([]Hit, error)

	// Scroll returns up to limit points matching filter without scoring them.
	Scroll(ctx context.Context, filter Filter, limit int) ([]Hit, error)

	// DeleteByFilter removes every point matching filter. An empty filter is
	// rejected with ErrEmptyFilter.
	DeleteByFilter(ctx context.Context, filter Filter) error

	// Health reports whether the backing store is reachable.
	Health(ctx context.Context) error

	// Close releases resources held by the index.
	Close() error
}

// Wrap annotates err as a vector index failure for op.
// A nil err stays nil and errors already wrapping core.ErrVectorIndex only gain context.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", core.ErrVectorIndex, op, err)
}

// UpsertInBatches calls write with consecutive slices of at most size points.
// The first error aborts and is returned wrapped with core.ErrVectorIndex.
func UpsertInBatches(ctx context.Context, points []Point, size int, write func(context.Context, []Point) error) error {
	if size <= 0 {
		size = DefaultUpsertBatchSize
	}
	batches := (len(points) + size - 1) / size
	for b := 0; b < batches; b++ {
		if err := ctx.Err(); err != nil {
			return Wrap("upsert", err)
		}
		start := b * size
		end := min(start+size, len(points))
		if err := write(ctx, points[start:end]); err != nil {
			return Wrap(fmt.Sprintf("upsert batch %d of %d", b+1, batches), err)
		}
	}
	return nil
}

// CheckDimensions verifies every point carries a vector of size dim.
func CheckDimensions(points []Point, dim int) error {
	for _, p := range points {
		if len(p.Vector) != dim {
			return fmt.Errorf("%w: point %s has %d dimensions, collection has %d", ErrDimensionMismatch, p.ID, len(p.Vector), dim)
		}
	}
	return nil
}

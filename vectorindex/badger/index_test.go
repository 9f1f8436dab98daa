package badger

import (
	"context"
	"testing"

	"github.com/poiesic/lectern/core"
	store "github.com/poiesic/lectern/storage/badger"
	"github.com/poiesic/lectern/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, opts ...Option) vectorindex.Index {
	t.Helper()
	backend, err := store.OpenBackend("", true)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	idx, err := New(backend, opts...)
	require.NoError(t, err)
	return idx
}

func point(doc core.ID, owner string, index int, vector ...float32) vectorindex.Point {
	return vectorindex.Point{
		ID:     core.PassageID(doc, index),
		Vector: vector,
		Payload: vectorindex.Payload{
			DocumentID: doc,
			OwnerID:    owner,
			ChunkIndex: index,
			Text:       string(doc) + " passage",
			Metadata:   map[string]any{"chunking_strategy": "section"},
		},
	}
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, core.ErrVectorIndex)

	idx := newTestIndex(t, WithCollection("custom"))
	assert.Equal(t, "custom", idx.Collection())

	backend, err := store.OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()
	_, err = New(backend, WithCollection(""))
	assert.ErrorIs(t, err, vectorindex.ErrCollectionRequired)
	_, err = New(backend, WithUpsertBatchSize(0))
	assert.Error(t, err)
}

func TestEnsureCollection(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	require.NoError(t, idx.EnsureCollection(ctx, 3))
	require.NoError(t, idx.EnsureCollection(ctx, 3), "second call is a no-op")

	err := idx.EnsureCollection(ctx, 4)
	assert.ErrorIs(t, err, core.ErrVectorIndex)
	assert.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)

	assert.Error(t, idx.EnsureCollection(ctx, 0))
}

func TestUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t, WithUpsertBatchSize(2))
	require.NoError(t, idx.EnsureCollection(ctx, 2))

	points := []vectorindex.Point{
		point("d1", "u1", 0, 1, 0),
		point("d1", "u1", 1, 0.8, 0.6),
		point("d2", "u2", 0, 0, 1),
		point("d2", "u2", 1, -1, 0),
		point("d3", "u1", 0, 2, 0), // normalized on write
	}
	require.NoError(t, idx.Upsert(ctx, points))

	t.Run("ranked by cosine", func(t *testing.T) {
		hits, err := idx.Search(ctx, []float32{1, 0}, 10, -1, vectorindex.Filter{})
		require.NoError(t, err)
		require.Len(t, hits, 5)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
		assert.InDelta(t, 1.0, hits[1].Score, 1e-6)
		assert.InDelta(t, 0.8, hits[2].Score, 1e-6)
		assert.InDelta(t, -1.0, hits[4].Score, 1e-6)
		assert.Equal(t, "d1 passage", hits[0].Payload.Text)
	})

	t.Run("threshold and limit", func(t *testing.T) {
		hits, err := idx.Search(ctx, []float32{1, 0}, 2, 0.5, vectorindex.Filter{})
		require.NoError(t, err)
		assert.Len(t, hits, 2)

		hits, err = idx.Search(ctx, []float32{1, 0}, 10, 0.5, vectorindex.Filter{})
		require.NoError(t, err)
		assert.Len(t, hits, 3)
	})

	t.Run("filtered", func(t *testing.T) {
		hits, err := idx.Search(ctx, []float32{1, 0}, 10, -1, vectorindex.Filter{OwnerID: "u2"})
		require.NoError(t, err)
		require.Len(t, hits, 2)
		for _, h := range hits {
			assert.Equal(t, "u2", h.Payload.OwnerID)
		}

		hits, err = idx.Search(ctx, []float32{1, 0}, 10, -1, vectorindex.ForDocument("d1"))
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})

	t.Run("payload survives", func(t *testing.T) {
		hits, err := idx.Scroll(ctx, vectorindex.ForPassage("d1", 1), 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, core.PassageID("d1", 1), hits[0].ID)
		assert.Equal(t, 1, hits[0].Payload.ChunkIndex)
		assert.Equal(t, "section", hits[0].Payload.Metadata["chunking_strategy"])
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		err := idx.Upsert(ctx, []vectorindex.Point{point("d9", "u1", 0, 1, 0, 0)})
		assert.ErrorIs(t, err, core.ErrVectorIndex)
		assert.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)
	})
}

func TestUpsertReplacesSamePassage(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	require.NoError(t, idx.Upsert(ctx, []vectorindex.Point{point("d1", "u1", 0, 1, 0)}))
	require.NoError(t, idx.Upsert(ctx, []vectorindex.Point{point("d1", "u1", 0, 0, 1)}))

	hits, err := idx.Scroll(ctx, vectorindex.ForDocument("d1"), 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	results, err := idx.Search(ctx, []float32{0, 1}, 1, 0, vectorindex.Filter{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestScroll(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	var points []vectorindex.Point
	for i := 0; i < 5; i++ {
		points = append(points, point("d1", "u1", i, 1, float32(i)))
	}
	require.NoError(t, idx.Upsert(ctx, points))

	hits, err := idx.Scroll(ctx, vectorindex.ForDocument("d1"), 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for i, h := range hits {
		assert.Equal(t, i, h.Payload.ChunkIndex, "key order follows chunk index")
		assert.Zero(t, h.Score)
	}

	hits, err = idx.Scroll(ctx, vectorindex.ForDocument("d1"), 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDeleteByFilter(t *testing.T) {
	ctx := context.Background()
	idx := newTestIndex(t)

	require.NoError(t, idx.Upsert(ctx, []vectorindex.Point{
		point("d1", "u1", 0, 1, 0),
		point("d1", "u1", 1, 1, 0),
		point("d10", "u1", 0, 1, 0),
		point("d2", "u2", 0, 1, 0),
	}))

	err := idx.DeleteByFilter(ctx, vectorindex.Filter{})
	assert.ErrorIs(t, err, core.ErrVectorIndex)
	assert.ErrorIs(t, err, vectorindex.ErrEmptyFilter)

	require.NoError(t, idx.DeleteByFilter(ctx, vectorindex.ForDocument("d1")))

	hits, err := idx.Scroll(ctx, vectorindex.Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2, "d10 shares a prefix with d1 but must survive")

	require.NoError(t, idx.DeleteByFilter(ctx, vectorindex.Filter{OwnerID: "u2"}))
	hits, err = idx.Scroll(ctx, vectorindex.Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, core.ID("d10"), hits[0].Payload.DocumentID)

	// Deleting nothing is fine.
	require.NoError(t, idx.DeleteByFilter(ctx, vectorindex.ForDocument("missing")))
}

func TestHealth(t *testing.T) {
	backend, err := store.OpenBackend("", true)
	require.NoError(t, err)
	idx, err := New(backend)
	require.NoError(t, err)

	require.NoError(t, idx.Health(context.Background()))
	require.NoError(t, backend.Close())
	assert.ErrorIs(t, idx.Health(context.Background()), core.ErrVectorIndex)
}

package reindex

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
	store "github.com/poiesic/lectern/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRepo(t *testing.T) (storage.DocumentRepository, *store.Backend) {
	t.Helper()
	documents, _, backend, err := store.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return documents, backend
}

// addDocuments creates n documents with the given status.
func addDocuments(t *testing.T, repo storage.DocumentRepository, n int, status core.Status, chunks int) []*core.Document {
	t.Helper()
	ctx := context.Background()
	docs := make([]*core.Document, n)
	for i := range docs {
		doc, err := repo.Create(ctx, &core.Document{
			OwnerID:     "u1",
			Filename:    fmt.Sprintf("%s-%d.txt", status, i),
			ContentType: ".txt",
			ContentHash: fmt.Sprintf("%s-%d", status, i),
			Status:      core.StatusProcessing,
			Collection:  "old",
		})
		require.NoError(t, err)
		switch status {
		case core.StatusDone:
			doc, err = repo.MarkDone(ctx, doc.ID, chunks)
		case core.StatusFailed:
			doc, err = repo.MarkFailed(ctx, doc.ID, "boom")
		}
		require.NoError(t, err)
		docs[i] = doc
	}
	return docs
}

func TestDocumentIterator_Pages(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()
	addDocuments(t, repo, 5, core.StatusDone, 1)
	addDocuments(t, repo, 2, core.StatusFailed, 0)
	addDocuments(t, repo, 1, core.StatusProcessing, 0)

	iter := NewDocumentIterator(repo, 2)
	total, err := iter.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	var pages []int
	seen := map[core.ID]bool{}
	err = iter.ForEach(ctx, func(docs []*core.Document) error {
		pages = append(pages, len(docs))
		for _, d := range docs {
			assert.Equal(t, core.StatusDone, d.Status)
			seen[d.ID] = true
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, pages)
	assert.Len(t, seen, 5, "every finished document is visited once")
}

func TestDocumentIterator_Empty(t *testing.T) {
	repo, _ := setupTestRepo(t)

	called := false
	err := NewDocumentIterator(repo, 0).ForEach(context.Background(), func([]*core.Document) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestDocumentIterator_StopsOnError(t *testing.T) {
	repo, _ := setupTestRepo(t)
	addDocuments(t, repo, 4, core.StatusDone, 1)

	boom := errors.New("boom")
	calls := 0
	err := NewDocumentIterator(repo, 1).ForEach(context.Background(), func([]*core.Document) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDocumentIterator_Canceled(t *testing.T) {
	repo, _ := setupTestRepo(t)
	addDocuments(t, repo, 3, core.StatusDone, 1)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := NewDocumentIterator(repo, 1).ForEach(ctx, func([]*core.Document) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

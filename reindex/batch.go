package reindex

import (
	"context"
	"fmt"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/embedding"
	"github.com/poiesic/lectern/storage"
	"github.com/poiesic/lectern/vectorindex"
)

// BatchProcessor re-embeds the passages of one document.
type BatchProcessor struct {
	repo      storage.DocumentRepository
	source    vectorindex.Index
	target    vectorindex.Index
	generator *embedding.Generator
}

// NewBatchProcessor creates a new batch processor.
func NewBatchProcessor(repo storage.DocumentRepository, source, target vectorindex.Index, generator *embedding.Generator) *BatchProcessor {
	return &BatchProcessor{
		repo:      repo,
		source:    source,
		target:    target,
		generator: generator,
	}
}

// Process reads the document's passages from the source index, embeds their
// text again and writes them to the target index. The document is then moved
// to the target collection. It returns the number of passages written.
func (bp *BatchProcessor) Process(ctx context.Context, doc *core.Document) (int, error) {
	if doc.ChunkCount == 0 {
		return 0, nil
	}

	hits, err := bp.source.Scroll(ctx, vectorindex.ForDocument(doc.ID), doc.ChunkCount)
	if err != nil {
		return 0, fmt.Errorf("read passages of %s: %w", doc.ID, err)
	}
	if len(hits) != doc.ChunkCount {
		return 0, fmt.Errorf("document %s: expected %d passages in %s, found %d",
			doc.ID, doc.ChunkCount, bp.source.Collection(), len(hits))
	}

	texts := make([]string, len(hits))
	for i, hit := range hits {
		texts[i] = hit.Payload.Text
	}
	vectors, err := bp.generator.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed passages of %s: %w", doc.ID, err)
	}

	if err := bp.target.EnsureCollection(ctx, len(vectors[0])); err != nil {
		return 0, err
	}
	points := make([]vectorindex.Point, len(hits))
	for i, hit := range hits {
		points[i] = vectorindex.Point{ID: hit.ID, Vector: vectors[i], Payload: hit.Payload}
	}
	if err := bp.target.Upsert(ctx, points); err != nil {
		return 0, fmt.Errorf("write passages of %s: %w", doc.ID, err)
	}

	if doc.Collection != bp.target.Collection() {
		moved := doc.Clone()
		moved.Collection = bp.target.Collection()
		if _, err := bp.repo.Update(ctx, moved); err != nil {
			return 0, fmt.Errorf("move %s to %s: %w", doc.ID, bp.target.Collection(), err)
		}
	}
	return len(points), nil
}

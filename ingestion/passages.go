package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/lectern/chunk"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/embedding"
	"github.com/poiesic/lectern/extract"
	"github.com/poiesic/lectern/vectorindex"
)

// Passage metadata keys copied from the document.
const (
	MetaTitle    = "title"
	MetaFilename = "filename"
)

// passageProcessor extracts, chunks, embeds and stores a document's passages.
type passageProcessor struct {
	registry  *extract.Registry
	chunker   *chunk.Chunker
	generator *embedding.Generator
	index     vectorindex.Index
	logger    *slog.Logger
}

var _ processor = (*passageProcessor)(nil)

func newPassageProcessor(registry *extract.Registry, chunker *chunk.Chunker, generator *embedding.Generator, index vectorindex.Index, logger *slog.Logger) *passageProcessor {
	return &passageProcessor{
		registry:  registry,
		chunker:   chunker,
		generator: generator,
		index:     index,
		logger:    logger.With("processor", "passages"),
	}
}

func (pp *passageProcessor) process(ctx context.Context, doc *core.Document, content []byte, cfg chunk.Config) (int, error) {
	span := trace.SpanFromContext(ctx)
	logger := pp.logger.With("document_id", doc.ID)

	text, err := pp.registry.Extract(ctx, doc.Filename, content)
	if err != nil {
		return 0, err
	}
	span.AddEvent("extracted", trace.WithAttributes(attribute.Int("chars", len(text))))

	chunks, err := pp.chunker.Split(text, cfg)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("%w: %w from %s", core.ErrParseFailure, ErrNoText, doc.Filename)
	}
	span.AddEvent("chunked", trace.WithAttributes(attribute.Int("passages", len(chunks))))
	logger.Debug("document chunked", "strategy", cfg.Strategy, "passages", len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := pp.generator.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}
	span.AddEvent("embedded")

	if err := pp.index.EnsureCollection(ctx, len(vectors[0])); err != nil {
		return 0, err
	}

	points := make([]vectorindex.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vectorindex.PointFromPassage(&core.Passage{
			ID:         core.PassageID(doc.ID, c.Index),
			DocumentID: doc.ID,
			OwnerID:    doc.OwnerID,
			ChunkIndex: c.Index,
			Text:       c.Text,
			Vector:     vectors[i],
			Metadata:   passageMetadata(doc, c),
		})
	}
	if err := pp.index.Upsert(ctx, points); err != nil {
		return 0, err
	}
	logger.Debug("passages stored", "passages", len(points), "collection", pp.index.Collection())
	return len(points), nil
}

func passageMetadata(doc *core.Document, c chunk.Chunk) map[string]any {
	metadata := make(map[string]any, len(c.Metadata)+2)
	maps.Copy(metadata, c.Metadata)
	metadata[MetaTitle] = doc.Title
	metadata[MetaFilename] = doc.Filename
	return metadata
}

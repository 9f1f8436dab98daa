package reindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/embedding"
	"github.com/poiesic/lectern/storage"
	"github.com/poiesic/lectern/vectorindex"
)

// Config holds configuration for a reindex run.
type Config struct {
	// PageSize is the number of documents fetched per page
	PageSize int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// PruneSource deletes a document's passages from the source index after
	// they were written to a different target collection.
	PruneSource bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PageSize:       DefaultPageSize,
		ReportInterval: 10,
	}
}

// Result summarizes a reindex run.
type Result struct {
	Documents int
	Skipped   int
	Passages  int
	Elapsed   time.Duration
}

// Reindexer re-embeds the passages of every finished document.
type Reindexer struct {
	repo      storage.DocumentRepository
	source    vectorindex.Index
	target    vectorindex.Index
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *DocumentIterator
	logger    *slog.Logger
}

// NewReindexer creates a new reindexer. source and target may be the same index.
// progress: where to write progress output (typically os.Stderr)
func NewReindexer(repo storage.DocumentRepository, source, target vectorindex.Index, generator *embedding.Generator, config *Config, progress io.Writer) (*Reindexer, error) {
	if repo == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if source == nil || target == nil {
		return nil, ErrIndexRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reindexer{
		repo:      repo,
		source:    source,
		target:    target,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(repo, source, target, generator),
		iterator:  NewDocumentIterator(repo, config.PageSize),
		logger:    slog.Default().With("component", "reindexer"),
	}, nil
}

// moving reports whether passages change collection.
func (r *Reindexer) moving() bool {
	return r.source.Collection() != r.target.Collection()
}

// Run re-embeds every finished document. Progress is reported to the
// configured writer.
func (r *Reindexer) Run(ctx context.Context) (*Result, error) {
	total, err := r.iterator.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	result := &Result{}
	if total == 0 {
		fmt.Fprintf(r.progress, "No finished documents found (0 documents)\n")
		return result, nil
	}

	fmt.Fprintf(r.progress, "Starting reindex of %d documents from %s into %s\n",
		total, r.source.Collection(), r.target.Collection())

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	err = r.iterator.ForEach(ctx, func(docs []*core.Document) error {
		for _, doc := range docs {
			if r.moving() && doc.Collection == r.target.Collection() {
				result.Skipped++
				tracker.Document(0)
				continue
			}

			passages, err := r.processor.Process(ctx, doc)
			if err != nil {
				return fmt.Errorf("failed to reindex document: %w", err)
			}
			if r.moving() && r.config.PruneSource && passages > 0 {
				if err := r.source.DeleteByFilter(ctx, vectorindex.ForDocument(doc.ID)); err != nil {
					r.logger.Warn("failed to prune source passages", "document_id", doc.ID, "err", err)
				}
			}

			result.Documents++
			tracker.Document(passages)
		}
		return nil
	})
	result.Passages = tracker.Passages()
	result.Elapsed = tracker.Elapsed()
	if err != nil {
		return result, err
	}

	tracker.Finish()
	fmt.Fprintf(r.progress, "Reindex complete. Processed %d documents (%d passages, %d skipped) in %v\n",
		result.Documents, result.Passages, result.Skipped, result.Elapsed.Round(time.Millisecond))
	return result, nil
}

package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/embedding"
	"github.com/poiesic/lectern/storage"
	"github.com/poiesic/lectern/vectorindex"
)

const (
	// DefaultLimit is the number of results returned when Request.Limit is unset.
	DefaultLimit = 5
	// DefaultScoreThreshold is the minimum semantic score used by DefaultRequest.
	DefaultScoreThreshold float32 = 0.5

	semanticWeight float32 = 0.7
	lexicalWeight  float32 = 0.3

	// candidateFactor widens the vector search when reranking.
	candidateFactor = 2
)

var tracer = otel.Tracer("github.com/poiesic/lectern/search")

// Request describes one search.
type Request struct {
	Scope          core.Scope
	Limit          int
	ScoreThreshold float32
	Rerank         bool
}

// DefaultRequest returns a global, reranked request for DefaultLimit results.
func DefaultRequest() Request {
	return Request{
		Scope:          core.Global(),
		Limit:          DefaultLimit,
		ScoreThreshold: DefaultScoreThreshold,
		Rerank:         true,
	}
}

// Observer receives completed searches. Implementations must be safe for
// concurrent use.
type Observer interface {
	SearchCompleted(scope core.ScopeKind, results int, elapsed time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) SearchCompleted(core.ScopeKind, int, time.Duration, error) {}

// Engine answers natural-language queries over stored passages.
// An Engine is read-only and safe for concurrent use.
type Engine struct {
	generator *embedding.Generator
	index     vectorindex.Index
	documents storage.DocumentRepository
	observer  Observer
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithObserver registers an observer notified after every search.
func WithObserver(observer Observer) Option {
	return func(e *Engine) error {
		if observer == nil {
			observer = noopObserver{}
		}
		e.observer = observer
		return nil
	}
}

// NewEngine creates a search engine.
func NewEngine(generator *embedding.Generator, index vectorindex.Index, documents storage.DocumentRepository, opts ...Option) (*Engine, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}

	e := &Engine{
		generator: generator,
		index:     index,
		documents: documents,
		observer:  noopObserver{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "search-engine")
	return e, nil
}

// Search returns the passages most relevant to query.
func (e *Engine) Search(ctx context.Context, query string, req Request) ([]*core.SearchResult, error) {
	return e.SearchWithMonitor(ctx, query, req, nil)
}

// SearchWithMonitor is Search with hooks into each stage. A nil monitor is allowed.
func (e *Engine) SearchWithMonitor(ctx context.Context, query string, req Request, monitor SearchMonitor) (results []*core.SearchResult, err error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	start := time.Now()

	ctx, span := tracer.Start(ctx, "search.Search", trace.WithAttributes(
		attribute.String("scope", req.Scope.Kind.String()),
		attribute.Int("limit", req.Limit),
		attribute.Bool("rerank", req.Rerank),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("results", len(results)))
		span.End()
		e.observer.SearchCompleted(req.Scope.Kind, len(results), time.Since(start), err)
	}()

	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", core.ErrInvalidQuery)
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	monitor.Start(query, req)

	vector, err := e.generator.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates := req.Limit
	if req.Rerank {
		candidates = req.Limit * candidateFactor
	}
	hits, err := e.index.Search(ctx, vector, candidates, req.ScoreThreshold, vectorindex.FilterForScope(req.Scope))
	if err != nil {
		return nil, err
	}
	monitor.AfterVectorSearch(hits)
	span.AddEvent("candidates", trace.WithAttributes(attribute.Int("count", len(hits))))

	kept, err := e.gate(ctx, hits)
	if err != nil {
		return nil, err
	}
	monitor.AfterStatusGate(kept, len(hits)-len(kept))

	results = rank(query, kept, req.Rerank)
	monitor.AfterRanking(results)

	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	monitor.Finish(results)

	e.logger.Debug("search completed",
		"scope", req.Scope.Kind.String(),
		"candidates", len(hits),
		"gated", len(hits)-len(kept),
		"results", len(results),
		"elapsed", time.Since(start))
	return results, nil
}

// SearchDocument searches the passages of one document.
// Returns core.ErrNotFound if the document does not exist.
func (e *Engine) SearchDocument(ctx context.Context, id core.ID, query string, limit int) ([]*core.SearchResult, error) {
	if _, err := e.documents.Get(ctx, id); err != nil {
		return nil, translateNotFound(id, err)
	}
	req := DefaultRequest()
	req.Scope = core.ByDocument(id)
	req.Limit = limit
	return e.Search(ctx, query, req)
}

// SearchOwner searches the passages of one owner's documents.
func (e *Engine) SearchOwner(ctx context.Context, ownerID, query string, limit int) ([]*core.SearchResult, error) {
	req := DefaultRequest()
	req.Scope = core.ByOwner(ownerID)
	req.Limit = limit
	return e.Search(ctx, query, req)
}

// Similar returns the passages of the same document closest to the passage
// at chunkIndex, excluding that passage.
func (e *Engine) Similar(ctx context.Context, id core.ID, chunkIndex int, limit int) ([]*core.SearchResult, error) {
	if _, err := e.documents.Get(ctx, id); err != nil {
		return nil, translateNotFound(id, err)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	refs, err := e.index.Scroll(ctx, vectorindex.ForPassage(id, chunkIndex), 1)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: passage %d of document %s", core.ErrNotFound, chunkIndex, id)
	}
	reference := refs[0].Payload

	req := Request{
		Scope:  core.ByDocument(id),
		Limit:  limit + 1,
		Rerank: true,
	}
	results, err := e.Search(ctx, reference.Text, req)
	if err != nil {
		return nil, err
	}

	similar := make([]*core.SearchResult, 0, len(results))
	for _, r := range results {
		if r.ChunkIndex == chunkIndex {
			continue
		}
		similar = append(similar, r)
	}
	if len(similar) > limit {
		similar = similar[:limit]
	}
	return similar, nil
}

// gate drops hits whose document is missing or not done processing.
func (e *Engine) gate(ctx context.Context, hits []vectorindex.Hit) ([]vectorindex.Hit, error) {
	searchable := make(map[core.ID]bool)
	kept := make([]vectorindex.Hit, 0, len(hits))
	for _, hit := range hits {
		id := hit.Payload.DocumentID
		ok, seen := searchable[id]
		if !seen {
			doc, err := e.documents.Get(ctx, id)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				ok = false
			case err != nil:
				return nil, fmt.Errorf("check document %s: %w", id, err)
			default:
				ok = doc.Status == core.StatusDone
			}
			searchable[id] = ok
		}
		if ok {
			kept = append(kept, hit)
		}
	}
	return kept, nil
}

// rank converts hits into results, reranking them when requested.
// Hits must arrive in descending semantic order; ties keep that order.
func rank(query string, hits []vectorindex.Hit, rerank bool) []*core.SearchResult {
	results := make([]*core.SearchResult, 0, len(hits))
	for _, hit := range hits {
		r := &core.SearchResult{
			DocumentID:    hit.Payload.DocumentID,
			ChunkIndex:    hit.Payload.ChunkIndex,
			Text:          hit.Payload.Text,
			SemanticScore: hit.Score,
			Metadata:      hit.Payload.Metadata,
		}
		if rerank {
			combined := semanticWeight*hit.Score + lexicalWeight*lexicalOverlap(query, hit.Payload.Text)
			r.RerankedScore = &combined
		}
		results = append(results, r)
	}
	if !rerank {
		return results
	}

	slices.SortStableFunc(results, func(a, b *core.SearchResult) int {
		if *a.RerankedScore > *b.RerankedScore {
			return -1
		}
		if *a.RerankedScore < *b.RerankedScore {
			return 1
		}
		return 0
	})
	return results
}

func translateNotFound(id core.ID, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: document %s", core.ErrNotFound, id)
	}
	return err
}

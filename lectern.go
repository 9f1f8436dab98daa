// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package lectern

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/poiesic/lectern/ai"
	"github.com/poiesic/lectern/chunk"
	"github.com/poiesic/lectern/config"
	"github.com/poiesic/lectern/embedding"
	"github.com/poiesic/lectern/extract"
	"github.com/poiesic/lectern/ingestion"
	"github.com/poiesic/lectern/metrics"
	"github.com/poiesic/lectern/reindex"
	"github.com/poiesic/lectern/search"
	"github.com/poiesic/lectern/storage"
	"github.com/poiesic/lectern/storage/badger"
	"github.com/poiesic/lectern/storage/postgres"
	"github.com/poiesic/lectern/storage/s3"
	"github.com/poiesic/lectern/vectorindex"
	vbadger "github.com/poiesic/lectern/vectorindex/badger"
	"github.com/poiesic/lectern/vectorindex/pgvector"
	"github.com/poiesic/lectern/vectorindex/qdrant"
)

// Lectern owns every store and service of one process.
type Lectern struct {
	config *config.Config

	backend   *badger.Backend
	db        *sql.DB
	documents storage.DocumentRepository
	blobs     storage.BlobStore
	index     vectorindex.Index
	provider  ai.AIProvider
	metrics   *metrics.Metrics

	generator    *embedding.Generator
	chunker      *chunk.Chunker
	orchestrator *ingestion.Orchestrator
	engine       *search.Engine

	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

// Option configures Open.
type Option func(*options) error

type options struct {
	logger     *slog.Logger
	registerer prometheus.Registerer
	provider   ai.AIProvider
	tokenizer  chunk.Tokenizer
	inMemory   bool
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithRegisterer enables Prometheus metrics registered with reg.
// Metrics are disabled by default.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithProvider uses provider instead of building one from the configuration.
// Lectern takes ownership and closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) error {
		if provider == nil {
			return errors.New("provider must not be nil")
		}
		o.provider = provider
		return nil
	}
}

// WithTokenizer replaces the cl100k_base tokenizer used by the chunker.
func WithTokenizer(tokenizer chunk.Tokenizer) Option {
	return func(o *options) error {
		if tokenizer == nil {
			return errors.New("tokenizer must not be nil")
		}
		o.tokenizer = tokenizer
		return nil
	}
}

// WithInMemory keeps the embedded database in memory. DataDir is ignored.
func WithInMemory() Option {
	return func(o *options) error {
		o.inMemory = true
		return nil
	}
}

// Open builds every component described by cfg. On failure, whatever was
// already opened is closed again.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Lectern, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	l := &Lectern{
		config:   cfg,
		provider: o.provider,
		logger:   o.logger.With("component", "lectern"),
	}
	if err := l.open(ctx, o); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

func (l *Lectern) open(ctx context.Context, o *options) error {
	cfg := l.config
	var err error

	if cfg.UsesBadger() {
		if l.backend, err = badger.OpenBackend(cfg.DataDir, o.inMemory); err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
	}
	if cfg.UsesPostgres() {
		if l.db, err = postgres.Open(ctx, cfg.Storage.PostgresURL); err != nil {
			return err
		}
	}

	if err := l.openStores(ctx); err != nil {
		return err
	}

	if l.index, err = l.OpenIndex(cfg.Vectors.Collection); err != nil {
		return fmt.Errorf("failed to open vector index: %w", err)
	}

	if l.provider == nil {
		if l.provider, err = newProvider(ctx, cfg.AIConfig(), o.logger); err != nil {
			return fmt.Errorf("failed to create AI provider: %w", err)
		}
	}

	if o.registerer != nil {
		if l.metrics, err = metrics.New(o.registerer); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	genOpts := []embedding.Option{
		embedding.WithLogger(o.logger),
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithPacing(cfg.Embedding.Pacing.Duration),
		embedding.WithRetryPolicy(cfg.RetryPolicy()),
	}
	if l.metrics != nil {
		genOpts = append(genOpts, embedding.WithObserver(l.metrics))
	}
	if l.generator, err = embedding.New(l.provider.Embedder(), genOpts...); err != nil {
		return err
	}

	registry, err := extract.NewRegistry(
		extract.WithLogger(o.logger),
		extract.WithMaxExpandedSize(cfg.Ingestion.MaxUploadSize))
	if err != nil {
		return err
	}

	tokenizer := o.tokenizer
	if tokenizer == nil {
		if tokenizer, err = chunk.NewTiktokenTokenizer(chunk.DefaultEncoding); err != nil {
			return fmt.Errorf("failed to load tokenizer: %w", err)
		}
	}
	if l.chunker, err = chunk.New(tokenizer, chunk.WithLogger(o.logger), chunk.WithConfig(cfg.ChunkConfig())); err != nil {
		return err
	}

	ingestOpts := []ingestion.Option{
		ingestion.WithLogger(o.logger),
		ingestion.WithMaxUploadSize(cfg.Ingestion.MaxUploadSize),
		ingestion.WithProcessingTimeout(cfg.Ingestion.ProcessingTimeout.Duration),
		ingestion.WithIndexOpener(l.OpenIndex),
	}
	if cfg.Ingestion.PoolSize > 0 {
		ingestOpts = append(ingestOpts, ingestion.WithPoolSize(cfg.Ingestion.PoolSize))
	}
	if l.blobs != nil {
		ingestOpts = append(ingestOpts, ingestion.WithBlobStore(l.blobs))
	}
	if l.metrics != nil {
		ingestOpts = append(ingestOpts, ingestion.WithObserver(l.metrics))
	}
	if l.orchestrator, err = ingestion.NewOrchestrator(l.documents, registry, l.chunker, l.generator, l.index, ingestOpts...); err != nil {
		return err
	}

	searchOpts := []search.Option{search.WithLogger(o.logger)}
	if l.metrics != nil {
		searchOpts = append(searchOpts, search.WithObserver(l.metrics))
	}
	if l.engine, err = search.NewEngine(l.generator, l.index, l.documents, searchOpts...); err != nil {
		return err
	}

	l.logger.Info("lectern opened",
		"storage", cfg.Storage.Backend,
		"blobs", cfg.Blobs.Backend,
		"vectors", cfg.Vectors.Backend,
		"collection", cfg.Vectors.Collection,
		"provider", l.provider.Name())
	return nil
}

func (l *Lectern) openStores(ctx context.Context) error {
	cfg := l.config
	var err error

	switch cfg.Storage.Backend {
	case config.BackendBadger:
		l.documents, err = badger.NewDocumentRepository(l.backend)
	case config.BackendPostgres:
		l.documents, err = postgres.NewDocumentRepository(ctx, l.db, postgres.WithLogger(l.logger))
	}
	if err != nil {
		return fmt.Errorf("failed to create document repository: %w", err)
	}

	switch cfg.Blobs.Backend {
	case config.BackendBadger:
		l.blobs, err = badger.NewBlobStore(l.backend)
	case config.BackendS3:
		l.blobs, err = s3.NewBlobStore(ctx, s3.Config{
			Region:    cfg.Blobs.S3Region,
			Bucket:    cfg.Blobs.S3Bucket,
			Prefix:    cfg.Blobs.S3Prefix,
			AccessKey: cfg.Blobs.S3AccessKey,
			SecretKey: cfg.Blobs.S3SecretKey,
			Endpoint:  cfg.Blobs.S3Endpoint,
		}, l.logger)
	}
	if err != nil {
		return fmt.Errorf("failed to create blob store: %w", err)
	}
	return nil
}

// OpenIndex opens the configured vector backend on another collection.
// The caller closes the returned index; the underlying stores stay owned by Lectern.
func (l *Lectern) OpenIndex(collection string) (vectorindex.Index, error) {
	v := l.config.Vectors
	switch v.Backend {
	case config.BackendBadger:
		return vbadger.New(l.backend,
			vbadger.WithLogger(l.logger),
			vbadger.WithCollection(collection),
			vbadger.WithUpsertBatchSize(v.UpsertBatchSize))
	case config.BackendPgvector:
		return pgvector.New(l.db,
			pgvector.WithLogger(l.logger),
			pgvector.WithCollection(collection),
			pgvector.WithUpsertBatchSize(v.UpsertBatchSize))
	case config.BackendQdrant:
		return qdrant.New(qdrant.Config{
			Host:   v.QdrantHost,
			Port:   v.QdrantPort,
			APIKey: v.QdrantAPIKey,
			UseTLS: v.QdrantTLS,
		},
			qdrant.WithLogger(l.logger),
			qdrant.WithCollection(collection),
			qdrant.WithUpsertBatchSize(v.UpsertBatchSize))
	default:
		return nil, fmt.Errorf("%w: vectors %q", config.ErrUnknownBackend, v.Backend)
	}
}

// Config returns the configuration Lectern was opened with.
func (l *Lectern) Config() *config.Config {
	return l.config
}

// Documents returns the document repository.
func (l *Lectern) Documents() storage.DocumentRepository {
	return l.documents
}

// Blobs returns the upload archive, or nil when archiving is disabled.
func (l *Lectern) Blobs() storage.BlobStore {
	return l.blobs
}

// Index returns the vector index of the configured collection.
func (l *Lectern) Index() vectorindex.Index {
	return l.index
}

// Generator returns the embedding generator.
func (l *Lectern) Generator() *embedding.Generator {
	return l.generator
}

// Chunker returns the chunker configured with the default chunking settings.
func (l *Lectern) Chunker() *chunk.Chunker {
	return l.chunker
}

// Orchestrator returns the ingestion orchestrator.
func (l *Lectern) Orchestrator() *ingestion.Orchestrator {
	return l.orchestrator
}

// Engine returns the retrieval engine.
func (l *Lectern) Engine() *search.Engine {
	return l.engine
}

// NewReindexer re-embeds finished documents from source into the configured
// index. A nil source re-embeds in place.
func (l *Lectern) NewReindexer(source vectorindex.Index, cfg *reindex.Config, progress io.Writer) (*reindex.Reindexer, error) {
	if source == nil {
		source = l.index
	}
	return reindex.NewReindexer(l.documents, source, l.index, l.generator, cfg, progress)
}

// ComponentHealth is the result of one health probe.
type ComponentHealth struct {
	Name string
	Err  error
}

// Health probes every component concurrently. It returns one entry per
// component, in a fixed order, and the joined errors of the failing ones.
func (l *Lectern) Health(ctx context.Context) ([]ComponentHealth, error) {
	type probe struct {
		name  string
		check func(context.Context) error
	}
	probes := []probe{
		{"documents", l.documents.Health},
		{"vectors", l.index.Health},
		{"embedder", l.generator.Health},
	}
	if l.blobs != nil {
		probes = append(probes, probe{"blobs", l.blobs.Health})
	}

	results := make([]ComponentHealth, len(probes))
	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			results[i] = ComponentHealth{Name: p.name, Err: p.check(ctx)}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, r.Err))
		}
	}
	return results, errors.Join(errs...)
}

// Close waits for in-flight processing, then releases every component in
// reverse order of creation. Calling Close again returns the first result.
func (l *Lectern) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.close()
	})
	return l.closeErr
}

func (l *Lectern) close() error {
	var errs []error
	closeWith := func(what string, fn func() error) {
		if err := fn(); err != nil {
			l.logger.Error("error closing "+what, "err", err)
			errs = append(errs, fmt.Errorf("close %s: %w", what, err))
		}
	}

	if l.orchestrator != nil {
		l.orchestrator.Release()
	}
	if l.provider != nil {
		closeWith("AI provider", l.provider.Close)
	}
	if l.index != nil {
		closeWith("vector index", l.index.Close)
	}
	if l.blobs != nil {
		closeWith("blob store", l.blobs.Close)
	}
	if l.documents != nil {
		closeWith("document repository", l.documents.Close)
	}
	if l.db != nil {
		closeWith("postgres", l.db.Close)
	}
	if l.backend != nil {
		closeWith("backend storage", l.backend.Close)
	}
	return errors.Join(errs...)
}

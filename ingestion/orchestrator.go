package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/lectern/chunk"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/embedding"
	"github.com/poiesic/lectern/extract"
	"github.com/poiesic/lectern/storage"
	"github.com/poiesic/lectern/vectorindex"
)

const (
	// DefaultProcessingTimeout bounds one processing job.
	DefaultProcessingTimeout = 10 * time.Minute

	// finalizeTimeout bounds the status update and cleanup after a job.
	finalizeTimeout = 30 * time.Second
)

var tracer = otel.Tracer("github.com/poiesic/lectern/ingestion")

// Observer receives ingestion activity. Implementations must be safe for
// concurrent use.
type Observer interface {
	DocumentUploaded(duplicate bool)
	DocumentFinished(status core.Status, passages int, elapsed time.Duration)
}

type noopObserver struct{}

func (noopObserver) DocumentUploaded(bool)                            {}
func (noopObserver) DocumentFinished(core.Status, int, time.Duration) {}

// UploadRequest describes one file to ingest.
type UploadRequest struct {
	OwnerID  string
	Title    string // defaults to the filename without its extension
	Filename string
	Content  []byte
	Metadata map[string]any
	Chunking *chunk.Config // overrides the chunker defaults for this document
}

// UploadResult is returned by Upload.
type UploadResult struct {
	Document *core.Document
	// Duplicate is set when the owner already uploaded identical bytes.
	// Document is then the existing record, no processing is scheduled and
	// Handle is already complete.
	Duplicate bool
	Handle    *Handle
}

// IndexOpener opens the vector index of a named collection.
type IndexOpener func(collection string) (vectorindex.Index, error)

// job is one document waiting for, or holding, a worker.
type job struct {
	doc     *core.Document
	content []byte
	cfg     chunk.Config
	handle  *Handle
}

// Orchestrator accepts uploads and builds their passages in the background.
type Orchestrator struct {
	documents     storage.DocumentRepository
	blobs         storage.BlobStore
	index         vectorindex.Index
	openIndex     IndexOpener
	chunker       *chunk.Chunker
	proc          processor
	pool          *ants.Pool
	maxUploadSize int64
	timeout       time.Duration
	observer      Observer
	logger        *slog.Logger

	mu         sync.Mutex
	inFlight   map[core.ID]struct{}
	queue      []job
	others     map[string]vectorindex.Index
	released   bool
	jobs       sync.WaitGroup
	wake       chan struct{}
	dispatched chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(o *Orchestrator) error {
		if size < 1 {
			size = 1
		}

		if o.pool != nil {
			o.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		o.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithBlobStore archives raw uploads so documents can be reprocessed.
func WithBlobStore(blobs storage.BlobStore) Option {
	return func(o *Orchestrator) error {
		o.blobs = blobs
		return nil
	}
}

// WithMaxUploadSize sets the upload size ceiling in bytes.
// Default is core.DefaultMaxUploadSize.
func WithMaxUploadSize(size int64) Option {
	return func(o *Orchestrator) error {
		if size <= 0 {
			return fmt.Errorf("max upload size must be positive, got %d", size)
		}
		o.maxUploadSize = size
		return nil
	}
}

// WithProcessingTimeout bounds a single processing job.
// Default is DefaultProcessingTimeout.
func WithProcessingTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) error {
		if timeout <= 0 {
			return fmt.Errorf("processing timeout must be positive, got %s", timeout)
		}
		o.timeout = timeout
		return nil
	}
}

// WithIndexOpener lets the orchestrator remove passages that live in a
// collection other than the active one, as left behind when the configured
// collection changes before a reindex. Without it such documents cannot be
// deleted or reprocessed.
func WithIndexOpener(open IndexOpener) Option {
	return func(o *Orchestrator) error {
		o.openIndex = open
		return nil
	}
}

// WithObserver registers an observer for uploads and finished jobs.
func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) error {
		if observer == nil {
			observer = noopObserver{}
		}
		o.observer = observer
		return nil
	}
}

// NewOrchestrator creates an ingestion orchestrator.
func NewOrchestrator(
	documents storage.DocumentRepository,
	registry *extract.Registry,
	chunker *chunk.Chunker,
	generator *embedding.Generator,
	index vectorindex.Index,
	opts ...Option,
) (*Orchestrator, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if registry == nil {
		return nil, ErrExtractorRequired
	}
	if chunker == nil {
		return nil, ErrChunkerRequired
	}
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		documents:     documents,
		index:         index,
		chunker:       chunker,
		pool:          pool,
		maxUploadSize: core.DefaultMaxUploadSize,
		timeout:       DefaultProcessingTimeout,
		observer:      noopObserver{},
		logger:        slog.Default(),
		inFlight:      make(map[core.ID]struct{}),
		others:        make(map[string]vectorindex.Index),
		wake:          make(chan struct{}, 1),
		dispatched:    make(chan struct{}),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(o); optErr != nil {
			o.pool.Release()
			return nil, optErr
		}
	}

	o.logger = o.logger.With("component", "ingestion")
	o.proc = newPassageProcessor(registry, chunker, generator, index, o.logger)
	go o.dispatch()
	return o, nil
}

// Upload validates and records a file, then schedules its processing.
// Validation errors wrap core.ErrValidation and leave nothing behind.
func (o *Orchestrator) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if err := core.ValidateUpload(req.OwnerID, req.Filename, int64(len(req.Content)), o.maxUploadSize); err != nil {
		return nil, err
	}
	cfg := o.chunker.Config().Merge(req.Chunking)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	hash := core.ContentHash(req.Content)
	existing, err := o.documents.FindByHash(ctx, req.OwnerID, hash)
	switch {
	case err == nil:
		return o.duplicate(existing), nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("look up duplicate: %w", err)
	}

	filename := filepath.Base(req.Filename)
	title := req.Title
	if title == "" {
		title = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	metadata := make(map[string]any, len(req.Metadata)+3)
	maps.Copy(metadata, req.Metadata)
	maps.Copy(metadata, cfg.Metadata())

	doc, err := o.documents.Create(ctx, &core.Document{
		OwnerID:     req.OwnerID,
		Title:       title,
		Filename:    filename,
		ContentType: core.ContentTypeOf(filename),
		ByteSize:    int64(len(req.Content)),
		ContentHash: hash,
		Status:      core.StatusProcessing,
		Collection:  o.index.Collection(),
		Metadata:    metadata,
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		// A concurrent upload of the same bytes won the race.
		existing, err = o.documents.FindByHash(ctx, req.OwnerID, hash)
		if err != nil {
			return nil, fmt.Errorf("look up duplicate: %w", err)
		}
		return o.duplicate(existing), nil
	}
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	o.observer.DocumentUploaded(false)

	logger := o.logger.With("document_id", doc.ID, "owner_id", doc.OwnerID)
	logger.Info("document uploaded", "filename", doc.Filename, "bytes", doc.ByteSize)

	o.archive(ctx, doc, req.Content)

	if !o.claim(doc.ID) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessing, doc.ID)
	}
	handle, err := o.submit(doc, req.Content, cfg)
	if err != nil {
		return nil, err
	}
	return &UploadResult{Document: doc, Handle: handle}, nil
}

func (o *Orchestrator) duplicate(doc *core.Document) *UploadResult {
	o.observer.DocumentUploaded(true)
	o.logger.Info("duplicate upload", "document_id", doc.ID, "owner_id", doc.OwnerID)
	return &UploadResult{Document: doc, Duplicate: true, Handle: completedHandle(doc, nil)}
}

// archive stores the raw bytes when a blob store is configured. Failures only
// cost the ability to reprocess, so they are logged.
func (o *Orchestrator) archive(ctx context.Context, doc *core.Document, content []byte) {
	if o.blobs == nil {
		return
	}
	contentType := "application/octet-stream"
	if format, err := extract.FormatFor(doc.Filename); err == nil {
		contentType = format.MIMEType()
	}
	if err := o.blobs.Put(ctx, storage.BlobKey(doc), content, contentType); err != nil {
		o.logger.Warn("failed to archive upload", "document_id", doc.ID, "err", err)
	}
}

// claim marks id as having a job in flight. It reports false when one already is.
func (o *Orchestrator) claim(id core.ID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.inFlight[id]; ok {
		return false
	}
	o.inFlight[id] = struct{}{}
	return true
}

func (o *Orchestrator) unclaim(id core.ID) {
	o.mu.Lock()
	delete(o.inFlight, id)
	o.mu.Unlock()
}

func (o *Orchestrator) processing(id core.ID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inFlight[id]
	return ok
}

// submit queues a claimed document for processing. It never waits for a
// free worker.
func (o *Orchestrator) submit(doc *core.Document, content []byte, cfg chunk.Config) (*Handle, error) {
	handle := newHandle(doc.ID)

	o.mu.Lock()
	if o.released {
		o.mu.Unlock()
		return nil, o.abandon(doc, ErrReleased)
	}
	o.jobs.Add(1)
	o.queue = append(o.queue, job{doc: doc, content: content, cfg: cfg, handle: handle})
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return handle, nil
}

// dispatch feeds queued jobs to the pool until Release empties the queue.
// Submitting blocks while every worker is busy.
func (o *Orchestrator) dispatch() {
	defer close(o.dispatched)
	for {
		j, ok := o.next()
		if !ok {
			return
		}
		err := o.pool.Submit(func() {
			defer o.jobs.Done()
			o.run(j)
		})
		if err != nil {
			j.handle.complete(nil, o.abandon(j.doc, err))
			o.jobs.Done()
		}
	}
}

// next pops the oldest queued job, waiting for one. It reports false once
// the orchestrator is released and the queue is empty.
func (o *Orchestrator) next() (job, bool) {
	for {
		o.mu.Lock()
		if len(o.queue) > 0 {
			j := o.queue[0]
			o.queue[0] = job{}
			o.queue = o.queue[1:]
			o.mu.Unlock()
			return j, true
		}
		released := o.released
		o.mu.Unlock()
		if released {
			return job{}, false
		}
		<-o.wake
	}
}

// abandon records a job that never started.
func (o *Orchestrator) abandon(doc *core.Document, cause error) error {
	defer o.unclaim(doc.ID)
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	if _, err := o.documents.MarkFailed(ctx, doc.ID, cause.Error()); err != nil {
		o.logger.Error("failed to record unscheduled job", "document_id", doc.ID, "err", err)
	}
	return fmt.Errorf("schedule processing of %s: %w", doc.ID, cause)
}

// run executes one job and records its terminal status.
func (o *Orchestrator) run(j job) {
	doc := j.doc
	defer o.unclaim(doc.ID)
	start := time.Now()
	logger := o.logger.With("document_id", doc.ID)

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "ingestion.Process", trace.WithAttributes(
		attribute.String("document_id", doc.ID.String()),
		attribute.String("content_type", doc.ContentType),
		attribute.Int64("bytes", doc.ByteSize),
	))
	defer span.End()

	passages, err := o.safeProcess(ctx, doc, j.content, j.cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("passages", passages))

	// The job context may already be expired; finish on a fresh deadline.
	finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer finishCancel()

	final, err := o.finish(finishCtx, doc, passages, err)
	status := core.StatusFailed
	if final != nil {
		status = final.Status
	}
	elapsed := time.Since(start)
	o.observer.DocumentFinished(status, passages, elapsed)

	if err != nil {
		logger.Error("document processing failed", "err", err, "elapsed", elapsed)
	} else {
		logger.Info("document processed", "passages", passages, "elapsed", elapsed)
	}
	j.handle.complete(final, err)
}

// safeProcess runs the processor, converting a panic into an error.
func (o *Orchestrator) safeProcess(ctx context.Context, doc *core.Document, content []byte, cfg chunk.Config) (passages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			passages = 0
			err = fmt.Errorf("%w: %v", ErrJobPanic, r)
		}
	}()
	return o.proc.process(ctx, doc, content, cfg)
}

// finish publishes a successful job or cleans up after a failed one.
// The returned error is the processing failure, if any.
func (o *Orchestrator) finish(ctx context.Context, doc *core.Document, passages int, procErr error) (*core.Document, error) {
	if procErr == nil {
		done, err := o.documents.MarkDone(ctx, doc.ID, passages)
		if err == nil {
			return done, nil
		}
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted while processing.
			o.removePassages(ctx, doc)
			return nil, fmt.Errorf("%w: document %s deleted during processing", core.ErrNotFound, doc.ID)
		}
		procErr = fmt.Errorf("mark done: %w", err)
	}

	o.removePassages(ctx, doc)
	failed, err := o.documents.MarkFailed(ctx, doc.ID, procErr.Error())
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			o.logger.Error("failed to record processing failure", "document_id", doc.ID, "cause", procErr, "err", err)
		}
		return nil, procErr
	}
	return failed, procErr
}

// indexFor returns the index holding the passages of doc.
func (o *Orchestrator) indexFor(doc *core.Document) (vectorindex.Index, error) {
	active := o.index.Collection()
	if doc.Collection == "" || doc.Collection == active {
		return o.index, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if idx, ok := o.others[doc.Collection]; ok {
		return idx, nil
	}
	if o.openIndex == nil {
		return nil, fmt.Errorf("%w: document %s is in %q, active collection is %q",
			ErrForeignCollection, doc.ID, doc.Collection, active)
	}
	idx, err := o.openIndex(doc.Collection)
	if err != nil {
		return nil, fmt.Errorf("open collection %q: %w", doc.Collection, err)
	}
	o.others[doc.Collection] = idx
	return idx, nil
}

// deletePassages removes every passage of doc from the collection it lives in.
func (o *Orchestrator) deletePassages(ctx context.Context, doc *core.Document) error {
	idx, err := o.indexFor(doc)
	if err != nil {
		return err
	}
	if err := idx.DeleteByFilter(ctx, vectorindex.ForDocument(doc.ID)); err != nil {
		return fmt.Errorf("delete passages of %s: %w", doc.ID, err)
	}
	return nil
}

// removePassages is deletePassages for cleanup paths; failures are logged.
func (o *Orchestrator) removePassages(ctx context.Context, doc *core.Document) {
	if err := o.deletePassages(ctx, doc); err != nil {
		o.logger.Warn("failed to remove passages", "document_id", doc.ID, "err", err)
	}
}

// Get returns a document by ID.
// Returns core.ErrNotFound if the document does not exist.
func (o *Orchestrator) Get(ctx context.Context, id core.ID) (*core.Document, error) {
	doc, err := o.documents.Get(ctx, id)
	if err != nil {
		return nil, translateNotFound(id, err)
	}
	return doc, nil
}

// List returns one page of documents and the total number of matches.
func (o *Orchestrator) List(ctx context.Context, opts storage.ListOptions) ([]*core.Document, int, error) {
	return o.documents.List(ctx, opts)
}

// Stats summarizes the owner's documents, or all documents when ownerID is empty.
func (o *Orchestrator) Stats(ctx context.Context, ownerID string) (*core.Stats, error) {
	return o.documents.Stats(ctx, ownerID)
}

// UpdateMetadata changes a document's title and merges metadata into its
// existing metadata. An empty title keeps the current one; a nil value
// removes its key.
func (o *Orchestrator) UpdateMetadata(ctx context.Context, id core.ID, title string, metadata map[string]any) (*core.Document, error) {
	doc, err := o.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if title != "" {
		doc.Title = title
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any, len(metadata))
	}
	for k, v := range metadata {
		if v == nil {
			delete(doc.Metadata, k)
			continue
		}
		doc.Metadata[k] = v
	}

	updated, err := o.documents.Update(ctx, doc)
	if err != nil {
		return nil, translateNotFound(id, err)
	}
	return updated, nil
}

// Delete removes a document's passages, then its record, then its archived
// upload. If the passages cannot be removed the record is kept.
func (o *Orchestrator) Delete(ctx context.Context, id core.ID) error {
	doc, err := o.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := o.deletePassages(ctx, doc); err != nil {
		return err
	}
	if err := o.documents.Delete(ctx, id); err != nil {
		return translateNotFound(id, err)
	}
	if o.blobs != nil {
		if err := o.blobs.Delete(ctx, storage.BlobKey(doc)); err != nil {
			o.logger.Warn("failed to delete archived upload", "document_id", id, "err", err)
		}
	}

	o.logger.Info("document deleted", "document_id", id)
	return nil
}

// Reprocess rebuilds the passages of a failed or stale document from its
// archived upload.
func (o *Orchestrator) Reprocess(ctx context.Context, id core.ID) (*Handle, error) {
	if o.blobs == nil {
		return nil, ErrArchiveUnavailable
	}
	doc, err := o.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Status == core.StatusDone {
		return nil, fmt.Errorf("%w: %s", ErrNotReprocessable, id)
	}
	if !o.claim(id) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessing, id)
	}

	content, err := o.blobs.Get(ctx, storage.BlobKey(doc))
	if err != nil {
		o.unclaim(id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: no archived upload for %s", ErrArchiveUnavailable, id)
		}
		return nil, fmt.Errorf("load archived upload: %w", err)
	}
	cfg := o.chunker.Config().Merge(chunk.ConfigFromMetadata(doc.Metadata))

	// Clear passages of an earlier run, which may have produced more chunks.
	if err := o.deletePassages(ctx, doc); err != nil {
		o.unclaim(id)
		return nil, err
	}
	// The new passages go to the active collection.
	if active := o.index.Collection(); doc.Collection != active {
		doc.Collection = active
		if _, err := o.documents.Update(ctx, doc); err != nil {
			o.unclaim(id)
			return nil, translateNotFound(id, err)
		}
	}
	doc, err = o.documents.MarkProcessing(ctx, id)
	if err != nil {
		o.unclaim(id)
		return nil, translateNotFound(id, err)
	}

	o.logger.Info("reprocessing document", "document_id", id)
	return o.submit(doc, content, cfg)
}

// RecoverStale marks documents that have been processing for longer than
// olderThan, and have no job in flight here, as failed. It returns the
// documents it marked.
func (o *Orchestrator) RecoverStale(ctx context.Context, olderThan time.Duration) ([]*core.Document, error) {
	stale, err := o.documents.ListStale(ctx, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return nil, fmt.Errorf("list stale documents: %w", err)
	}

	recovered := make([]*core.Document, 0, len(stale))
	for _, doc := range stale {
		if o.processing(doc.ID) {
			continue
		}
		o.removePassages(ctx, doc)
		cause := fmt.Sprintf("processing did not finish within %s", olderThan)
		failed, err := o.documents.MarkFailed(ctx, doc.ID, cause)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return recovered, fmt.Errorf("mark %s failed: %w", doc.ID, err)
		}
		o.observer.DocumentFinished(core.StatusFailed, 0, time.Since(doc.CreatedAt))
		o.logger.Warn("recovered stale document", "document_id", doc.ID, "updated_at", doc.UpdatedAt)
		recovered = append(recovered, failed)
	}
	return recovered, nil
}

// Release runs every queued job to completion and releases the worker pool.
// The orchestrator should not be used after calling Release.
func (o *Orchestrator) Release() {
	o.mu.Lock()
	if o.released {
		o.mu.Unlock()
		return
	}
	o.released = true
	o.mu.Unlock()
	select {
	case o.wake <- struct{}{}:
	default:
	}

	<-o.dispatched
	o.jobs.Wait()
	if o.pool != nil {
		o.pool.Release()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for name, idx := range o.others {
		if err := idx.Close(); err != nil {
			o.logger.Warn("failed to close collection", "collection", name, "err", err)
		}
	}
	clear(o.others)
}

func translateNotFound(id core.ID, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: document %s", core.ErrNotFound, id)
	}
	return err
}

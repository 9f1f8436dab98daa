package ingestion

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrExtractorRequired is returned when an extractor registry is not provided.
	ErrExtractorRequired = errors.New("extractor registry required")

	// ErrChunkerRequired is returned when a chunker is not provided.
	ErrChunkerRequired = errors.New("chunker required")

	// ErrGeneratorRequired is returned when an embedding generator is not provided.
	ErrGeneratorRequired = errors.New("embedding generator required")

	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrArchiveUnavailable is returned by Reprocess when raw uploads are not archived.
	ErrArchiveUnavailable = errors.New("raw upload archive not configured")

	// ErrNotReprocessable is returned by Reprocess for documents that are done.
	ErrNotReprocessable = errors.New("document is not failed or stale")

	// ErrAlreadyProcessing is returned when a document already has a job in flight.
	ErrAlreadyProcessing = errors.New("document is already being processed")

	// ErrForeignCollection is returned when a document's passages live in a
	// collection the orchestrator cannot open.
	ErrForeignCollection = errors.New("document passages are in another collection")

	// ErrReleased is returned when work is submitted after Release.
	ErrReleased = errors.New("orchestrator released")

	// ErrNoText is returned when a file yields no passages.
	ErrNoText = errors.New("no text extracted")

	// ErrJobPanic marks a processing job that panicked.
	ErrJobPanic = errors.New("processing job panicked")
)

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/lectern/core"
)

// Repository provides common operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Health reports whether the backing store is reachable.
	Health(ctx context.Context) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// SortField names a column documents can be ordered by.
type SortField string

const (
	SortByCreatedAt SortField = "created_at"
	SortByUpdatedAt SortField = "updated_at"
	SortByTitle     SortField = "title"
	SortByFilename  SortField = "filename"
	SortByByteSize  SortField = "byte_size"
)

// Valid reports whether f is a known sort field.
func (f SortField) Valid() bool {
	switch f {
	case SortByCreatedAt, SortByUpdatedAt, SortByTitle, SortByFilename, SortByByteSize:
		return true
	}
	return false
}

// ListOptions filters, orders and pages a document listing.
// Zero values mean "no filter"; an empty OwnerID lists every owner.
type ListOptions struct {
	OwnerID     string
	Status      core.Status
	ContentType string
	Search      string // case-insensitive substring of title or filename
	Offset      int
	Limit       int // <= 0 means DefaultListLimit
	SortBy      SortField
	Descending  bool
}

// DefaultListLimit is the page size used when ListOptions.Limit is unset.
const DefaultListLimit = 100

// Validate rejects options no store can satisfy: an unknown status or sort
// field, or a negative offset.
func (o ListOptions) Validate() error {
	if o.Status != "" && !o.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidQuery, o.Status)
	}
	if o.SortBy != "" && !o.SortBy.Valid() {
		return fmt.Errorf("%w: unknown sort field %q", ErrInvalidQuery, o.SortBy)
	}
	if o.Offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrInvalidQuery, o.Offset)
	}
	return nil
}

// Normalize fills defaults: page size, sort field and descending order for
// creation time.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	if !o.SortBy.Valid() {
		o.SortBy = SortByCreatedAt
		o.Descending = true
	}
	return o
}

// DocumentRepository persists Document records.
type DocumentRepository interface {
	Repository

	// Create stores a new document. Generates an ID when empty and sets
	// CreatedAt/UpdatedAt. Returns ErrDuplicateKey if the owner already has a
	// document with the same content hash.
	Create(ctx context.Context, doc *core.Document) (*core.Document, error)

	// Get retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	Get(ctx context.Context, id core.ID) (*core.Document, error)

	// FindByHash returns the owner's document with the given content hash.
	// Returns ErrNotFound if there is none.
	FindByHash(ctx context.Context, ownerID, contentHash string) (*core.Document, error)

	// List returns one page of documents matching opts and the total number of matches.
	List(ctx context.Context, opts ListOptions) ([]*core.Document, int, error)

	// Update replaces the mutable descriptive fields (title, metadata) and
	// moves the document to another collection when Collection is set.
	// Status and chunk count only change through the Mark methods.
	// Returns ErrNotFound if the document doesn't exist.
	Update(ctx context.Context, doc *core.Document) (*core.Document, error)

	// MarkProcessing moves a document back to processing with a zero chunk count.
	MarkProcessing(ctx context.Context, id core.ID) (*core.Document, error)

	// MarkDone sets status done and the chunk count in one atomic update.
	MarkDone(ctx context.Context, id core.ID, chunkCount int) (*core.Document, error)

	// MarkFailed sets status failed, resets the chunk count and records the cause.
	MarkFailed(ctx context.Context, id core.ID, cause string) (*core.Document, error)

	// Delete removes a document.
	// Returns ErrNotFound if the document doesn't exist.
	Delete(ctx context.Context, id core.ID) error

	// Stats summarizes the owner's documents, or all documents when ownerID is empty.
	Stats(ctx context.Context, ownerID string) (*core.Stats, error)

	// ListStale returns processing documents last updated before cutoff.
	ListStale(ctx context.Context, cutoff time.Time) ([]*core.Document, error)
}

// BlobStore archives raw upload bytes so documents can be reprocessed.
type BlobStore interface {
	Repository

	// Put stores data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get returns the data stored under key.
	// Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// BlobKey returns the archive key of a document's raw upload.
func BlobKey(doc *core.Document) string {
	return doc.OwnerID + "/" + string(doc.ID) + "/" + doc.Filename
}

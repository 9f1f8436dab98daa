package badger

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (storage.DocumentRepository, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	return &DocumentRepository{backend: backend}, nil
}

// Health delegates to the backend.
func (r *DocumentRepository) Health(ctx context.Context) error {
	return r.backend.Health(ctx)
}

// Close is a no-op; the backend is owned and closed by the caller.
func (r *DocumentRepository) Close() error {
	return nil
}

// Create stores a new document together with its (owner, hash) uniqueness key.
func (r *DocumentRepository) Create(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}

	stored := doc.Clone()
	if stored.ID == "" {
		stored.ID = core.NewID()
	}
	stored.CreatedAt = time.Now().UTC()
	stored.UpdatedAt = stored.CreatedAt

	err := r.backend.Update(func(tx *badger.Txn) error {
		hashKey := makeDocumentHashKey(stored.OwnerID, stored.ContentHash)
		if _, err := tx.Get(hashKey); err == nil {
			return storage.ErrDuplicateKey
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		key := makeDocumentKey(stored.ID)
		if _, err := tx.Get(key); err == nil {
			return storage.ErrDuplicateKey
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		value, err := storage.MarshalDocument(stored)
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Set(hashKey, []byte(stored.ID))
	})
	if err != nil {
		return nil, err
	}
	return stored.Clone(), nil
}

// Get retrieves a document by ID.
func (r *DocumentRepository) Get(ctx context.Context, id core.ID) (*core.Document, error) {
	var result *core.Document
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		result, err = readDocument(tx, makeDocumentKey(id))
		return err
	})
	return result, err
}

// FindByHash resolves the uniqueness key and loads the document it points at.
func (r *DocumentRepository) FindByHash(ctx context.Context, ownerID, contentHash string) (*core.Document, error) {
	var result *core.Document
	err := r.backend.View(func(tx *badger.Txn) error {
		item, err := tx.Get(makeDocumentHashKey(ownerID, contentHash))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		result, err = readDocument(tx, makeDocumentKey(core.ID(id)))
		return err
	})
	return result, err
}

// List scans all documents, then filters, sorts and pages them in memory.
func (r *DocumentRepository) List(ctx context.Context, opts storage.ListOptions) ([]*core.Document, int, error) {
	if err := opts.Validate(); err != nil {
		return nil, 0, err
	}
	opts = opts.Normalize()
	search := strings.ToLower(opts.Search)

	var matches []*core.Document
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanDocuments(tx, func(doc *core.Document) error {
			if opts.OwnerID != "" && doc.OwnerID != opts.OwnerID {
				return nil
			}
			if opts.Status != "" && doc.Status != opts.Status {
				return nil
			}
			if opts.ContentType != "" && doc.ContentType != opts.ContentType {
				return nil
			}
			if search != "" &&
				!strings.Contains(strings.ToLower(doc.Title), search) &&
				!strings.Contains(strings.ToLower(doc.Filename), search) {
				return nil
			}
			matches = append(matches, doc)
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}

	slices.SortStableFunc(matches, documentComparator(opts.SortBy, opts.Descending))

	total := len(matches)
	if opts.Offset >= total {
		return []*core.Document{}, total, nil
	}
	end := min(opts.Offset+opts.Limit, total)
	return matches[opts.Offset:end], total, nil
}

// documentComparator orders documents by field, breaking ties by ID.
func documentComparator(field storage.SortField, descending bool) func(a, b *core.Document) int {
	return func(a, b *core.Document) int {
		var c int
		switch field {
		case storage.SortByUpdatedAt:
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		case storage.SortByTitle:
			c = cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		case storage.SortByFilename:
			c = cmp.Compare(strings.ToLower(a.Filename), strings.ToLower(b.Filename))
		case storage.SortByByteSize:
			c = cmp.Compare(a.ByteSize, b.ByteSize)
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if descending {
			return -c
		}
		return c
	}
}

// Update replaces the title and metadata of an existing document.
func (r *DocumentRepository) Update(ctx context.Context, doc *core.Document) (*core.Document, error) {
	return r.mutate(doc.ID, func(stored *core.Document) error {
		if doc.Title != "" {
			stored.Title = doc.Title
		}
		if doc.Collection != "" {
			stored.Collection = doc.Collection
		}
		stored.Metadata = doc.Clone().Metadata
		return nil
	})
}

// MarkProcessing resets a document for another processing run.
func (r *DocumentRepository) MarkProcessing(ctx context.Context, id core.ID) (*core.Document, error) {
	return r.mutate(id, func(stored *core.Document) error {
		stored.Status = core.StatusProcessing
		stored.ChunkCount = 0
		stored.Error = ""
		return nil
	})
}

// MarkDone publishes the final chunk count with the done status.
func (r *DocumentRepository) MarkDone(ctx context.Context, id core.ID, chunkCount int) (*core.Document, error) {
	return r.mutate(id, func(stored *core.Document) error {
		stored.Status = core.StatusDone
		stored.ChunkCount = chunkCount
		stored.Error = ""
		return nil
	})
}

// MarkFailed records the failure cause and clears the chunk count.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id core.ID, cause string) (*core.Document, error) {
	return r.mutate(id, func(stored *core.Document) error {
		stored.Status = core.StatusFailed
		stored.ChunkCount = 0
		stored.Error = cause
		return nil
	})
}

// mutate applies fn to the stored document inside one read-modify-write transaction.
func (r *DocumentRepository) mutate(id core.ID, fn func(stored *core.Document) error) (*core.Document, error) {
	var result *core.Document
	err := r.backend.Update(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		stored, err := readDocument(tx, key)
		if err != nil {
			return err
		}
		if err := fn(stored); err != nil {
			return err
		}
		if err := core.ValidateDocument(stored); err != nil {
			return err
		}
		stored.UpdatedAt = time.Now().UTC()

		value, err := storage.MarshalDocument(stored)
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}
		result = stored
		return nil
	})
	return result, err
}

// Delete removes a document and its uniqueness key.
func (r *DocumentRepository) Delete(ctx context.Context, id core.ID) error {
	return r.backend.Update(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		doc, err := readDocument(tx, key)
		if err != nil {
			return err
		}
		if err := tx.Delete(makeDocumentHashKey(doc.OwnerID, doc.ContentHash)); err != nil {
			return err
		}
		return tx.Delete(key)
	})
}

// Stats aggregates counts, sizes and chunk totals.
func (r *DocumentRepository) Stats(ctx context.Context, ownerID string) (*core.Stats, error) {
	stats := &core.Stats{
		ByContentType: make(map[string]int),
		ByStatus:      make(map[core.Status]int),
	}
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanDocuments(tx, func(doc *core.Document) error {
			if ownerID != "" && doc.OwnerID != ownerID {
				return nil
			}
			stats.TotalDocuments++
			stats.TotalBytes += doc.ByteSize
			stats.TotalChunks += doc.ChunkCount
			stats.ByContentType[doc.ContentType]++
			stats.ByStatus[doc.Status]++
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ListStale returns processing documents not touched since cutoff.
func (r *DocumentRepository) ListStale(ctx context.Context, cutoff time.Time) ([]*core.Document, error) {
	var stale []*core.Document
	err := r.backend.View(func(tx *badger.Txn) error {
		return scanDocuments(tx, func(doc *core.Document) error {
			if doc.Status == core.StatusProcessing && doc.UpdatedAt.Before(cutoff) {
				stale = append(stale, doc)
			}
			return nil
		})
	})
	return stale, err
}

// Helper methods

// readDocument reads a document from the transaction.
func readDocument(tx *badger.Txn, key []byte) (*core.Document, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	var doc *core.Document
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		doc, unmarshalErr = storage.UnmarshalDocument(val)
		return unmarshalErr
	})
	return doc, err
}

// scanDocuments decodes every stored document in key order.
func scanDocuments(tx *badger.Txn, fn func(doc *core.Document) error) error {
	return ScanPrefix(tx, []byte(documentPrefix), func(_, val []byte) error {
		doc, err := storage.UnmarshalDocument(val)
		if err != nil {
			return err
		}
		return fn(doc)
	})
}

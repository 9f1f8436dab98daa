package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/lectern/storage"
)

// blobPartSize bounds the value size of a single blob part.
var blobPartSize = 1 << 20

type blobManifest struct {
	Parts       int    `json:"parts"`
	Size        int    `json:"size"`
	ContentType string `json:"content_type"`
}

// BlobStore implements storage.BlobStore on the embedded database.
// Blobs are split into fixed-size parts and published by a manifest key
// written after all parts.
type BlobStore struct {
	backend *Backend
}

var _ storage.BlobStore = (*BlobStore)(nil)

// NewBlobStore creates a BlobStore sharing the given backend.
func NewBlobStore(backend *Backend) (storage.BlobStore, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	return &BlobStore{backend: backend}, nil
}

// Health delegates to the backend.
func (s *BlobStore) Health(ctx context.Context) error {
	return s.backend.Health(ctx)
}

// Close is a no-op; the backend is owned and closed by the caller.
func (s *BlobStore) Close() error {
	return nil
}

// Put stores data under key, replacing any previous blob.
func (s *BlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := s.Delete(ctx, key); err != nil {
		return err
	}

	manifest := blobManifest{Size: len(data), ContentType: contentType}
	err := s.backend.WriteBatch(func(wb *badger.WriteBatch) error {
		for offset := 0; offset < len(data); offset += blobPartSize {
			end := min(offset+blobPartSize, len(data))
			if err := wb.Set(makeBlobPartKey(key, manifest.Parts), data[offset:end]); err != nil {
				return err
			}
			manifest.Parts++
		}
		return nil
	})
	if err != nil {
		return err
	}

	value, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	return s.backend.Update(func(tx *badger.Txn) error {
		return tx.Set(makeBlobManifestKey(key), value)
	})
}

// Get reassembles the blob stored under key.
func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var buf bytes.Buffer
	err := s.backend.View(func(tx *badger.Txn) error {
		manifest, err := readBlobManifest(tx, key)
		if err != nil {
			return err
		}
		buf.Grow(manifest.Size)
		for part := 0; part < manifest.Parts; part++ {
			item, err := tx.Get(makeBlobPartKey(key, part))
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				buf.Write(val)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Delete removes the manifest first so readers never see a partial blob.
func (s *BlobStore) Delete(ctx context.Context, key string) error {
	var partKeys [][]byte
	err := s.backend.Update(func(tx *badger.Txn) error {
		partKeys = partKeys[:0]
		if err := tx.Delete(makeBlobManifestKey(key)); err != nil {
			return err
		}
		return ScanPrefix(tx, makeBlobPartPrefix(key), func(k, _ []byte) error {
			partKeys = append(partKeys, k)
			return nil
		})
	})
	if err != nil || len(partKeys) == 0 {
		return err
	}
	return s.backend.WriteBatch(func(wb *badger.WriteBatch) error {
		for _, k := range partKeys {
			if err := wb.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func readBlobManifest(tx *badger.Txn, key string) (*blobManifest, error) {
	item, err := tx.Get(makeBlobManifestKey(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	var manifest blobManifest
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &manifest)
	})
	return &manifest, err
}

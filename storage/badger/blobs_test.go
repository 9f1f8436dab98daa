package badger

import (
	"bytes"
	"context"
	"testing"

	"github.com/poiesic/lectern/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStore(t *testing.T) {
	_, blobs, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	saved := blobPartSize
	blobPartSize = 16
	defer func() { blobPartSize = saved }()

	t.Run("round trip across parts", func(t *testing.T) {
		data := bytes.Repeat([]byte("0123456789"), 5)
		require.NoError(t, blobs.Put(ctx, "u1/doc/a.txt", data, "text/plain"))

		got, err := blobs.Get(ctx, "u1/doc/a.txt")
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("overwrite with fewer parts", func(t *testing.T) {
		require.NoError(t, blobs.Put(ctx, "u1/doc/a.txt", []byte("short"), "text/plain"))

		got, err := blobs.Get(ctx, "u1/doc/a.txt")
		require.NoError(t, err)
		assert.Equal(t, []byte("short"), got)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, blobs.Delete(ctx, "u1/doc/a.txt"))
		_, err := blobs.Get(ctx, "u1/doc/a.txt")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		// Deleting a missing key is fine.
		assert.NoError(t, blobs.Delete(ctx, "u1/doc/a.txt"))
	})

	t.Run("missing", func(t *testing.T) {
		_, err := blobs.Get(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

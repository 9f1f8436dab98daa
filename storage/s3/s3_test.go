package s3

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBlobStore_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewBlobStore(ctx, Config{Region: "us-east-1"}, nil)
	assert.Error(t, err)

	_, err = NewBlobStore(ctx, Config{Bucket: "docs"}, nil)
	assert.Error(t, err)
}

func TestObjectKey(t *testing.T) {
	store, err := NewBlobStore(context.Background(), Config{
		Region:    "us-east-1",
		Bucket:    "docs",
		AccessKey: "key",
		SecretKey: "secret",
		Endpoint:  "http://localhost:9000",
	}, nil)
	require.NoError(t, err)

	bs := store.(*BlobStore)
	assert.Equal(t, "u1/doc/a.txt", bs.objectKey("u1/doc/a.txt"))

	bs.prefix = "uploads"
	assert.Equal(t, "uploads/u1/doc/a.txt", bs.objectKey("u1/doc/a.txt"))
}

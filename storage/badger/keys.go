package badger

import (
	"fmt"

	"github.com/poiesic/lectern/core"
)

// Key prefixes for different data types
const (
	documentPrefix     = "docrec:"
	documentHashPrefix = "dochash:"
	blobManifestPrefix = "blobm:"
	blobPartPrefix     = "blobp:"
)

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	return []byte(documentPrefix + string(id))
}

// makeDocumentHashKey generates the uniqueness key for an owner's content hash.
// Format: prefix:ownerID:hash
func makeDocumentHashKey(ownerID, contentHash string) []byte {
	return []byte(documentHashPrefix + ownerID + ":" + contentHash)
}

// makeBlobManifestKey generates the key holding a blob's part count and content type.
func makeBlobManifestKey(key string) []byte {
	return []byte(blobManifestPrefix + key)
}

// makeBlobPartKey generates the key of one part of a blob.
// Format: prefix:key:part (part zero-padded so parts sort in order)
func makeBlobPartKey(key string, part int) []byte {
	return []byte(fmt.Sprintf("%s%s:%08d", blobPartPrefix, key, part))
}

// makeBlobPartPrefix generates the prefix shared by all parts of a blob.
func makeBlobPartPrefix(key string) []byte {
	return []byte(blobPartPrefix + key + ":")
}

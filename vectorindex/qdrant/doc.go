// Package qdrant implements vectorindex.Index on a Qdrant server over gRPC.
//
// The collection is created on first use with cosine distance, and keyword
// payload indexes are added on document_id and owner_id so filtered search
// and deletion stay cheap. Point IDs are the passage UUIDs.
package qdrant

// Package vectorindex defines the contract lectern uses to store and query
// passage vectors, plus helpers shared by the adapters.
//
// # Adapters
//
//   - vectorindex/badger: embedded brute-force cosine index on badger
//   - vectorindex/qdrant: Qdrant over gRPC
//   - vectorindex/pgvector: PostgreSQL with the pgvector extension
//
// All adapters use cosine similarity; a Hit's Score is in [-1, 1] and higher
// is more similar. Every error an adapter returns wraps core.ErrVectorIndex.
package vectorindex

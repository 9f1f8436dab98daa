// Package pgvector implements vectorindex.Index on PostgreSQL with the
// pgvector extension.
//
// Each collection is a table holding one row per passage. Similarity uses the
// cosine distance operator <=>, and a hit's score is 1 - distance. The index
// shares the *sql.DB opened by storage/postgres and does not close it.
package pgvector

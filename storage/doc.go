// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package storage provides the persistence abstraction layer for lectern.
//
// This package defines repository interfaces that decouple storage implementation
// from the ingestion and retrieval logic. Two backends implement them:
//
//   - storage/badger: embedded BadgerDB store, used for local runs and tests
//   - storage/postgres: PostgreSQL store over pgx
//
// Raw uploads are archived through BlobStore, implemented by storage/badger
// and storage/s3.
//
// # Constructor Return Type Pattern
//
// Public constructors return the interface rather than the concrete type:
//
//	repo, err := badger.NewDocumentRepository(backend) // returns storage.DocumentRepository
//
// Internal constructors may return concrete types since they're only used
// within the implementation package.
//
// # Uniqueness
//
// Every DocumentRepository enforces a unique (owner, content hash) pair and
// reports violations as ErrDuplicateKey, which the ingestion layer turns into
// a duplicate upload result.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage

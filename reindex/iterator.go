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


package reindex

import (
	"context"

	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/storage"
)

const (
	// DefaultPageSize is the default number of documents fetched per page
	DefaultPageSize = 100
)

// DocumentIterator pages through finished documents in creation order.
type DocumentIterator struct {
	repo     storage.DocumentRepository
	pageSize int
}

// NewDocumentIterator creates a new document iterator.
// pageSize: number of documents to fetch per page (<= 0 means DefaultPageSize)
func NewDocumentIterator(repo storage.DocumentRepository, pageSize int) *DocumentIterator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &DocumentIterator{
		repo:     repo,
		pageSize: pageSize,
	}
}

func (it *DocumentIterator) options(offset, limit int) storage.ListOptions {
	return storage.ListOptions{
		Status: core.StatusDone,
		Offset: offset,
		Limit:  limit,
		SortBy: storage.SortByCreatedAt,
	}
}

// Count returns the number of finished documents.
func (it *DocumentIterator) Count(ctx context.Context) (int, error) {
	_, total, err := it.repo.List(ctx, it.options(0, 1))
	return total, err
}

// ForEach calls fn for each page of finished documents.
// Iteration stops on first error from fn or when all documents are visited.
// Context cancellation is checked between pages.
func (it *DocumentIterator) ForEach(ctx context.Context, fn func([]*core.Document) error) error {
	offset := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		docs, total, err := it.repo.List(ctx, it.options(offset, it.pageSize))
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return nil
		}

		if err := fn(docs); err != nil {
			return err
		}

		offset += len(docs)
		if offset >= total {
			return nil
		}
	}
}

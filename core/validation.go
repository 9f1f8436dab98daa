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


package core

import (
	"fmt"
	"slices"
)

// DefaultMaxUploadSize is the default upload size ceiling (50 MiB).
const DefaultMaxUploadSize int64 = 50 * 1024 * 1024

// SupportedContentTypes lists the extensions accepted for upload.
var SupportedContentTypes = []string{".pdf", ".txt", ".docx", ".doc", ".md", ".markdown"}

// IsSupportedContentType reports whether the extension is accepted for upload.
func IsSupportedContentType(contentType string) bool {
	return slices.Contains(SupportedContentTypes, contentType)
}

// ValidateUpload checks an upload before anything is persisted.
//
// Validation rules:
//   - OwnerID must not be empty
//   - the filename extension must be supported
//   - content must not exceed maxSize bytes (maxSize <= 0 means DefaultMaxUploadSize)
//   - content must not be empty
func ValidateUpload(ownerID, filename string, size int64, maxSize int64) error {
	if ownerID == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrMissingOwner)
	}

	contentType := ContentTypeOf(filename)
	if !IsSupportedContentType(contentType) {
		return fmt.Errorf("%w: %w: %q (supported: %v)", ErrValidation, ErrUnsupportedType, contentType, SupportedContentTypes)
	}

	if maxSize <= 0 {
		maxSize = DefaultMaxUploadSize
	}
	if size > maxSize {
		return fmt.Errorf("%w: %w: %d bytes exceeds %d", ErrValidation, ErrFileTooLarge, size, maxSize)
	}

	if size == 0 {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyFile)
	}

	return nil
}

// ValidateDocument checks the invariants of a stored Document.
//
// Validation rules:
//   - Status must be known
//   - ChunkCount must be 0 unless Status is StatusDone
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrValidation)
	}
	if !doc.Status.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrValidation, ErrInvalidStatus, doc.Status)
	}
	if doc.Status != StatusDone && doc.ChunkCount != 0 {
		return fmt.Errorf("%w: chunk count %d on %s document", ErrValidation, doc.ChunkCount, doc.Status)
	}
	return nil
}

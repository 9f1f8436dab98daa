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

import "errors"

// Error kinds shared across the pipeline. Packages wrap these with
// fmt.Errorf("%w: ...") so callers can test them with errors.Is.
var (
	// ErrValidation indicates bad input rejected before any work is done:
	// unsupported file type, oversized or empty upload, bad chunking settings.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates the referenced document does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidQuery indicates an empty or otherwise unusable search query.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrUnsupportedFormat indicates a file extension no extractor handles.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrParseFailure indicates content that could not be parsed.
	ErrParseFailure = errors.New("parse failure")

	// ErrEmbeddingProvider wraps failures of the embedding provider.
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrVectorIndex wraps failures of the vector index service.
	ErrVectorIndex = errors.New("vector index error")
)

// Validation details
var (
	// ErrEmptyFile indicates an upload with no content.
	ErrEmptyFile = errors.New("file is empty")

	// ErrFileTooLarge indicates an upload above the size ceiling.
	ErrFileTooLarge = errors.New("file too large")

	// ErrUnsupportedType indicates an upload whose extension is not accepted.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrMissingOwner indicates an upload without an owner.
	ErrMissingOwner = errors.New("owner is required")

	// ErrInvalidStatus indicates an unknown document status value.
	ErrInvalidStatus = errors.New("invalid status")
)

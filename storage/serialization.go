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


package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/poiesic/lectern/core"
)

// documentRecord is the stored form of a core.Document.
type documentRecord struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id"`
	Title       string         `json:"title"`
	Filename    string         `json:"filename"`
	ContentType string         `json:"content_type"`
	ByteSize    int64          `json:"byte_size"`
	ContentHash string         `json:"content_hash"`
	Status      string         `json:"status"`
	ChunkCount  int            `json:"chunk_count"`
	Collection  string         `json:"collection,omitempty"`
	Error       string         `json:"error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) ([]byte, error) {
	data, err := json.Marshal(documentRecord{
		ID:          string(doc.ID),
		OwnerID:     doc.OwnerID,
		Title:       doc.Title,
		Filename:    doc.Filename,
		ContentType: doc.ContentType,
		ByteSize:    doc.ByteSize,
		ContentHash: doc.ContentHash,
		Status:      string(doc.Status),
		ChunkCount:  doc.ChunkCount,
		Collection:  doc.Collection,
		Error:       doc.Error,
		Metadata:    doc.Metadata,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	var rec documentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &core.Document{
		ID:          core.ID(rec.ID),
		OwnerID:     rec.OwnerID,
		Title:       rec.Title,
		Filename:    rec.Filename,
		ContentType: rec.ContentType,
		ByteSize:    rec.ByteSize,
		ContentHash: rec.ContentHash,
		Status:      core.Status(rec.Status),
		ChunkCount:  rec.ChunkCount,
		Collection:  rec.Collection,
		Error:       rec.Error,
		Metadata:    rec.Metadata,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}, nil
}

// MarshalMetadata serializes an open metadata map.
func MarshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalMetadata deserializes an open metadata map.
// Numbers come back as float64.
func UnmarshalMetadata(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return metadata, nil
}

// MetadataInt reads an integer stored in metadata, tolerating the float64
// values produced by JSON decoding.
func MetadataInt(metadata map[string]any, key string) (int, bool) {
	switch v := metadata[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// MetadataString reads a string stored in metadata.
func MetadataString(metadata map[string]any, key string) (string, bool) {
	s, ok := metadata[key].(string)
	return s, ok
}

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


package ingestion

import (
	"context"

	"github.com/poiesic/lectern/chunk"
	"github.com/poiesic/lectern/core"
)

// processor is an internal interface for building a document's passages.
type processor interface {
	// process stores the passages of doc built from its raw content and
	// returns how many were stored. It must leave nothing behind that a
	// later cleanup by document ID cannot remove.
	process(ctx context.Context, doc *core.Document, content []byte, cfg chunk.Config) (int, error)
}

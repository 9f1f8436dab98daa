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


// Package search provides two-stage passage retrieval: vector similarity
// followed by an optional lexical rerank.
//
// The Engine embeds the query, fetches candidates from the vector index
// (twice the requested limit when reranking), drops passages whose document
// is not done processing, and then ranks by
//
//	combined = 0.7 * semantic + 0.3 * lexical
//
// where lexical is the share of distinct query words (lowercased, split on
// whitespace) that also appear in the passage. Ties keep the vector order.
package search

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


// Package ai provides abstractions for the embedding services used by lectern.
//
// The package defines the Embedder interface and an AIProvider that owns an
// Embedder together with its client resources. Ingestion and retrieval depend
// on these abstractions rather than on any concrete vendor SDK.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI and OpenAI-compatible servers (Ollama, LocalAI, vLLM) via langchaingo
//   - ai/gemini: Google Gemini embedding models
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, gemini.NewProvider, openai.NewEmbedder)
// return INTERFACE types to enforce abstraction and prevent accidental coupling
// to concrete implementations.
//
//	provider, err := openai.NewProvider(config)  // returns ai.AIProvider
//
// Test utility constructors (mock.NewMockEmbedder) return CONCRETE types to
// enable test assertions and behavior injection via function fields and
// CallCount.
//
// # Transient Errors
//
// Providers wrap errors the caller may retry (rate limits, timeouts,
// connection failures) with ErrTransient. IsTransient also recognizes common
// untyped forms of these failures, and is what the embedding package's retry
// loop consults.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithEmbeddingModel("nomic-embed-text"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vectors, err := provider.Embedder().EmbedTexts(ctx, []string{"hello", "world"})
package ai

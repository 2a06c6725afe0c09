// Copyright 2026 Scrivano Systems
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


// Package ai provides abstractions for the external model capabilities the
// extraction engine depends on.
//
// The engine treats embedding and extraction models as capabilities with a
// narrow request/response contract, not as implementation details. This
// package defines those contracts and lets the pipeline depend on
// abstractions rather than concrete services.
//
// # Design Principles
//
// The package is designed around three interfaces:
//
//   - Embedder: generates vector embeddings from text
//   - Extractor: extracts one schema-constrained JSON value from text
//   - Provider: aggregates both for initialization and lifecycle management
//
// # Implementation Packages
//
//   - ai/openai: production implementation using OpenAI-compatible APIs
//   - ai/mock: deterministic test doubles with injectable behavior
//
// Public constructors (openai.NewProvider, openai.NewEmbedder, ...) return
// interface types to enforce abstraction. Mock constructors return concrete
// types so tests can inject behavior and assert call counts.
//
// # Error Contract
//
// Capability failures are classified into ErrCapabilityUnavailable,
// ErrCapabilityTimeout and ErrMalformedOutput. Only the first two are
// retryable; see Retryable. Extractors additionally distinguish "the field
// is not present here" (Extraction.Absent) from failure; an absent field
// is a normal, expected outcome on most chunks.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithHost("http://localhost:11434"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "begindatum van het document")
//	res, err := provider.Extractor().Extract(ctx, chunkText, subSchema)
package ai

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


package mock

import "github.com/scrivano/scrivano/ai"

// MockProvider is a test double for ai.Provider.
// It aggregates mock embedder and extractor instances.
type MockProvider struct {
	embedder  *MockEmbedder
	extractor *MockExtractor
}

// NewMockProvider creates a new mock provider with default mock services.
//
// Returns ai.Provider interface for consistency with production constructors.
func NewMockProvider() ai.Provider {
	return &MockProvider{
		embedder:  NewMockEmbedder(),
		extractor: NewMockExtractor(),
	}
}

// Embedder returns the mock embedding capability.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// Extractor returns the mock extraction capability.
func (p *MockProvider) Extractor() ai.Extractor {
	return p.extractor
}

// Close is a no-op for mocks.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder returns the concrete mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockExtractor returns the concrete mock extractor for test assertions.
func (p *MockProvider) GetMockExtractor() *MockExtractor {
	return p.extractor
}

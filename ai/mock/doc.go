// Package mock provides test double implementations of the capability interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Extractor,
// and ai.Provider for use in unit tests. The mocks allow tests to run
// without external model services and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	provider := mock.NewMockProvider()
//	vec, err := provider.Embedder().EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	extractor := mock.NewMockExtractor()
//	extractor.ExtractFunc = func(ctx context.Context, content string, subSchema []byte) (*ai.Extraction, error) {
//	    return &ai.Extraction{Value: "1990-04-12", Confidence: 0.9}, nil
//	}
//
//	// Check call counts
//	count := extractor.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: returns deterministic vectors based on text hash
//   - MockExtractor: reports every field absent and records all calls
//   - MockProvider: aggregates mock embedder and extractor
package mock

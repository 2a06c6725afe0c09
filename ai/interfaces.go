package ai

import "context"

// Embedder generates vector embeddings from text for semantic retrieval.
// Implementations must be thread-safe for concurrent use and deterministic
// for a fixed model given identical text.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Extraction is the result of one constrained extraction request.
type Extraction struct {
	// Value is the extracted JSON value. It is nil when Absent is true.
	Value any

	// Absent reports that the capability judged the field not present in
	// the given content. An absent result is not an error.
	Absent bool

	// Confidence is the capability-reported score in [0,1], or -1 when the
	// capability did not report one. Callers derive a default in that case.
	Confidence float64
}

// Extractor extracts a single schema-constrained value from text.
// Implementations must be thread-safe for concurrent use.
type Extractor interface {
	// Extract asks the capability for the value described by the JSON
	// Schema fragment subSchema, using content as the only context.
	// The capability must return absent rather than fabricate a value.
	Extract(ctx context.Context, content string, subSchema []byte) (*Extraction, error)
}

// Provider aggregates the external capabilities for convenient
// initialization and lifecycle management. A provider creates and manages
// Embedder and Extractor instances, ensuring they share configuration.
type Provider interface {
	// Embedder returns the text embedding capability.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Extractor returns the structured extraction capability.
	// The returned Extractor is safe for concurrent use.
	Extractor() Extractor

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}

package reindex

import (
	"context"
	"fmt"
	"time"

	"github.com/scrivano/scrivano/ai"
	"github.com/scrivano/scrivano/core"
	"github.com/scrivano/scrivano/index"
	"github.com/scrivano/scrivano/storage"
)

// BatchProcessor embeds batches of chunks and upserts the resulting
// vectors under the target model id.
type BatchProcessor struct {
	vectors        storage.VectorRepository
	embedder       ai.Embedder
	modelId        string
	maxAttempts    int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxAttempts: maximum number of attempts for embedding calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(vectors storage.VectorRepository, embedder ai.Embedder, modelId string, maxAttempts int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		vectors:        vectors,
		embedder:       embedder,
		modelId:        modelId,
		maxAttempts:    maxAttempts,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds a batch of chunks and stores the vectors.
// Vectors are normalized before storage so cosine similarity reduces to a
// dot product at query time.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	var embeddings [][]float32
	err := ai.RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxAttempts, bp.retryBaseDelay)

	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxAttempts, err)
	}

	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(embeddings))
	}

	for i, chunk := range chunks {
		vector := &core.EmbeddingVector{
			ChunkId: chunk.Id,
			ModelId: bp.modelId,
			Vector:  index.NormalizeVector(embeddings[i]),
		}
		if err := bp.vectors.PutVector(ctx, vector); err != nil {
			return fmt.Errorf("failed to store vector for chunk %d: %w", chunk.Id, err)
		}
	}

	return nil
}

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


package reindex

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/scrivano/scrivano/ai"
	"github.com/scrivano/scrivano/core"
	"github.com/scrivano/scrivano/storage"
)

// Config holds configuration for a reindexing operation.
type Config struct {
	// BatchSize is the number of chunks to embed in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxAttempts is the maximum number of attempts for embedding calls
	MaxAttempts int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxAttempts:    3,
		RetryDelay:     1 * time.Second,
	}
}

// Reindexer orchestrates recomputing the stored vectors for every small
// chunk under a new embedding model.
type Reindexer struct {
	chunks    storage.ChunkRepository
	modelId   string
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *ChunkIterator
}

// NewReindexer creates a new reindexer targeting modelId.
// progress: where to write progress output (typically os.Stderr)
func NewReindexer(chunks storage.ChunkRepository, vectors storage.VectorRepository, embedder ai.Embedder, modelId string, config *Config, progress io.Writer) *Reindexer {
	if config == nil {
		config = DefaultConfig()
	}

	processor := NewBatchProcessor(vectors, embedder, modelId, config.MaxAttempts, config.RetryDelay)
	iterator := NewChunkIterator(chunks, config.BatchSize)

	return &Reindexer{
		chunks:    chunks,
		modelId:   modelId,
		config:    config,
		progress:  progress,
		processor: processor,
		iterator:  iterator,
	}
}

// Run executes the reindexing operation. Every stored small chunk is
// embedded with the target model and its vector upserted. Progress is
// reported to the configured writer.
func (r *Reindexer) Run(ctx context.Context) error {
	allChunks, err := r.chunks.GetAllChunks(ctx, core.ChunkKindSmall)
	if err != nil {
		return fmt.Errorf("failed to query chunks: %w", err)
	}

	totalChunks := len(allChunks)
	if totalChunks == 0 {
		fmt.Fprintf(r.progress, "No chunks found in store (0 chunks)\n")
		return nil
	}

	fmt.Fprintf(r.progress, "Starting reindex of %d chunks with model %q (batch size: %d)\n",
		totalChunks, r.modelId, r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, totalChunks, r.config.ReportInterval)
	tracker.Start()

	processed := 0

	err = r.iterator.ForEach(ctx, func(chunks []*core.Chunk) error {
		if err := r.processor.Process(ctx, chunks); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}

		processed += len(chunks)
		tracker.Update(processed)

		return nil
	})

	if err != nil {
		return err
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reindex complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		totalChunks, elapsed.Round(time.Second), float64(totalChunks)/elapsed.Seconds())

	return nil
}

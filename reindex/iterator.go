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

	"github.com/scrivano/scrivano/core"
	"github.com/scrivano/scrivano/storage"
)

const (
	// DefaultBatchSize is the default number of chunks to embed per batch.
	DefaultBatchSize = 100
)

// ChunkIterator iterates over all stored small chunks in batches.
type ChunkIterator struct {
	repo      storage.ChunkRepository
	batchSize int
}

// NewChunkIterator creates a new chunk iterator.
// batchSize: number of chunks handed to fn per call (must be > 0)
func NewChunkIterator(repo storage.ChunkRepository, batchSize int) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &ChunkIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ForEach iterates over all small chunks, calling fn for each batch.
// Iteration stops on the first error from fn or when all chunks are
// processed. Context cancellation is checked between batches.
func (it *ChunkIterator) ForEach(ctx context.Context, fn func([]*core.Chunk) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	chunks, err := it.repo.GetAllChunks(ctx, core.ChunkKindSmall)
	if err != nil {
		return err
	}

	if len(chunks) == 0 {
		return nil
	}

	for i := 0; i < len(chunks); i += it.batchSize {
		end := i + it.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		if err := fn(chunks[i:end]); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	return nil
}

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

// Package index builds per-document embedding indexes over small chunks.
// Vectors are cached through the vector repository keyed by (chunk,
// model), so re-running a document embeds nothing that is already stored.
package index

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/scrivano/scrivano/ai"
	"github.com/scrivano/scrivano/core"
	"github.com/scrivano/scrivano/storage"
)

// Retry defaults for embedding calls.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
)

// Builder builds embedding indexes for documents.
type Builder struct {
	embedder    ai.Embedder
	vectors     storage.VectorRepository
	modelId     string
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithRetry overrides the retry policy for embedding calls.
func WithRetry(maxAttempts int, baseDelay time.Duration) BuilderOption {
	return func(b *Builder) {
		b.maxAttempts = maxAttempts
		b.baseDelay = baseDelay
	}
}

// NewBuilder creates a Builder. The modelId keys the vector cache, so
// switching embedding models invalidates nothing and collides with
// nothing.
func NewBuilder(embedder ai.Embedder, vectors storage.VectorRepository, modelId string, opts ...BuilderOption) *Builder {
	b := &Builder{
		embedder:    embedder,
		vectors:     vectors,
		modelId:     modelId,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		logger:      slog.Default().With("component", "index"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// entry pairs a chunk with its normalized vector.
type entry struct {
	chunk  *core.Chunk
	vector []float32
}

// EmbeddingIndex is an immutable in-memory index over one document's
// small chunks. It retains every chunk it was built over, embedded or
// not, so retrieval fallbacks can always reach the full document. Safe
// for concurrent queries after Build returns.
type EmbeddingIndex struct {
	chunks    []*core.Chunk
	entries   []entry
	unindexed []*core.Chunk
	degraded  bool
}

// Match is one query result.
type Match struct {
	Chunk *core.Chunk
	Score float32
}

// Build creates an index over the given chunks. Cached vectors are used
// where present; misses are embedded, normalized, and persisted. A chunk
// whose embedding persistently fails is recorded as unindexed and skipped;
// only every chunk failing marks the index degraded.
func (b *Builder) Build(ctx context.Context, chunks []*core.Chunk) (*EmbeddingIndex, error) {
	idx := &EmbeddingIndex{}

	var misses []*core.Chunk
	cached := make(map[core.ID][]float32)

	for _, chunk := range chunks {
		vector, err := b.vectors.GetVector(ctx, chunk.Id, b.modelId)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				misses = append(misses, chunk)
				continue
			}
			return nil, err
		}
		cached[chunk.Id] = vector.Vector
	}

	embedded, err := b.embedMisses(ctx, misses)
	if err != nil {
		return nil, err
	}

	for _, chunk := range chunks {
		vector, ok := cached[chunk.Id]
		if !ok {
			vector, ok = embedded[chunk.Id]
		}
		if !ok {
			idx.unindexed = append(idx.unindexed, chunk)
			continue
		}
		idx.entries = append(idx.entries, entry{chunk: chunk, vector: vector})
	}

	if len(chunks) > 0 && len(idx.entries) == 0 {
		idx.degraded = true
		b.logger.Warn("embedding index degraded, no chunk could be embedded", "chunks", len(chunks))
	}

	byStart := func(x, y *core.Chunk) int { return x.Start - y.Start }
	idx.chunks = slices.Clone(chunks)
	slices.SortFunc(idx.chunks, byStart)
	slices.SortFunc(idx.unindexed, byStart)
	slices.SortFunc(idx.entries, func(x, y entry) int {
		return x.chunk.Start - y.chunk.Start
	})

	return idx, nil
}

// embedMisses embeds uncached chunks, persisting each resulting vector.
// Tries one batch call first, then falls back to per-chunk calls so a
// single bad chunk cannot sink the rest.
func (b *Builder) embedMisses(ctx context.Context, misses []*core.Chunk) (map[core.ID][]float32, error) {
	result := make(map[core.ID][]float32, len(misses))
	if len(misses) == 0 {
		return result, nil
	}

	texts := make([]string, len(misses))
	for i, chunk := range misses {
		texts[i] = chunk.Text
	}

	var batch [][]float32
	err := ai.RetryWithBackoff(ctx, func() error {
		var err error
		batch, err = b.embedder.EmbedTexts(ctx, texts)
		return err
	}, b.maxAttempts, b.baseDelay)

	if err == nil && len(batch) == len(misses) {
		for i, chunk := range misses {
			vector := NormalizeVector(batch[i])
			if err := b.persist(ctx, chunk.Id, vector); err != nil {
				return nil, err
			}
			result[chunk.Id] = vector
		}
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	b.logger.Warn("batch embedding failed, falling back to per-chunk calls", "chunks", len(misses), "error", err)

	for _, chunk := range misses {
		var raw []float32
		err := ai.RetryWithBackoff(ctx, func() error {
			var err error
			raw, err = b.embedder.EmbedText(ctx, chunk.Text)
			return err
		}, b.maxAttempts, b.baseDelay)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			b.logger.Warn("chunk could not be embedded", "chunk", chunk.Id, "error", err)
			continue
		}
		vector := NormalizeVector(raw)
		if err := b.persist(ctx, chunk.Id, vector); err != nil {
			return nil, err
		}
		result[chunk.Id] = vector
	}
	return result, nil
}

func (b *Builder) persist(ctx context.Context, chunkId core.ID, vector []float32) error {
	return b.vectors.PutVector(ctx, &core.EmbeddingVector{
		ChunkId: chunkId,
		ModelId: b.modelId,
		Vector:  vector,
	})
}

// Query returns up to k chunks by descending cosine similarity. Ties
// break by ascending chunk start offset so results are deterministic.
func (idx *EmbeddingIndex) Query(vector []float32, k int) []Match {
	if k <= 0 || len(idx.entries) == 0 {
		return nil
	}

	query := NormalizeVector(vector)
	matches := make([]Match, 0, len(idx.entries))
	for _, e := range idx.entries {
		matches = append(matches, Match{
			Chunk: e.chunk,
			Score: DotProduct(query, e.vector),
		})
	}

	slices.SortFunc(matches, func(a, b Match) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return a.Chunk.Start - b.Chunk.Start
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Len returns the number of chunks with a usable vector.
func (idx *EmbeddingIndex) Len() int {
	return len(idx.entries)
}

// Unindexed returns the IDs of chunks that could not be embedded.
func (idx *EmbeddingIndex) Unindexed() []core.ID {
	ids := make([]core.ID, len(idx.unindexed))
	for i, chunk := range idx.unindexed {
		ids[i] = chunk.Id
	}
	return ids
}

// UnindexedChunks returns the chunks that could not be embedded, in
// start-offset order. They cannot be ranked but must still reach
// extraction.
func (idx *EmbeddingIndex) UnindexedChunks() []*core.Chunk {
	return idx.unindexed
}

// Degraded reports whether the index holds no usable vectors at all.
func (idx *EmbeddingIndex) Degraded() bool {
	return idx.degraded
}

// Chunks returns every chunk the index was built over, embedded or not,
// in start-offset order.
func (idx *EmbeddingIndex) Chunks() []*core.Chunk {
	return idx.chunks
}

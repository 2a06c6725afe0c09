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

// Package retrieve selects the chunks worth extracting a field from.
// Each schema field becomes a similarity query against the document's
// embedding index; small documents and degraded indexes fall back to a
// full scan so retrieval never silently drops content.
package retrieve

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/scrivano/scrivano/ai"
	"github.com/scrivano/scrivano/core"
	"github.com/scrivano/scrivano/index"
	"github.com/scrivano/scrivano/storage"
)

const (
	// DefaultTopK is the number of small chunks retrieved per field.
	DefaultTopK = 6

	// DefaultFullScanThreshold is the small-chunk count below which
	// retrieval skips the index and just takes every chunk.
	DefaultFullScanThreshold = 8
)

// Retriever finds the most relevant chunks for schema fields.
type Retriever struct {
	embedder          ai.Embedder
	chunks            storage.ChunkRepository
	topK              int
	fullScanThreshold int
	maxAttempts       int
	baseDelay         time.Duration
	logger            *slog.Logger

	mu         sync.Mutex
	queryCache map[string][]float32
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTopK overrides the number of small chunks retrieved per field.
func WithTopK(k int) Option {
	return func(r *Retriever) { r.topK = k }
}

// WithFullScanThreshold overrides the full-scan cutoff.
func WithFullScanThreshold(n int) Option {
	return func(r *Retriever) { r.fullScanThreshold = n }
}

// WithRetry overrides the retry policy for query embedding calls.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(r *Retriever) {
		r.maxAttempts = maxAttempts
		r.baseDelay = baseDelay
	}
}

// New creates a Retriever.
func New(embedder ai.Embedder, chunks storage.ChunkRepository, opts ...Option) *Retriever {
	r := &Retriever{
		embedder:          embedder,
		chunks:            chunks,
		topK:              DefaultTopK,
		fullScanThreshold: DefaultFullScanThreshold,
		maxAttempts:       index.DefaultMaxAttempts,
		baseDelay:         index.DefaultBaseDelay,
		logger:            slog.Default().With("component", "retrieve"),
		queryCache:        make(map[string][]float32),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result holds the chunks selected for one field: small chunks for
// extraction plus their deduplicated parent large chunks for context.
// Both slices are ordered by ascending start offset.
type Result struct {
	Small []*core.Chunk
	Large []*core.Chunk
}

// ChunksFor selects chunks for one schema field. The query text is the
// field's description when present, otherwise its humanized path.
// A degraded or small index falls back to every small chunk, and chunks
// that could not be embedded always ride along with the ranked results,
// so extraction is never starved by embedding failures.
func (r *Retriever) ChunksFor(ctx context.Context, node *core.SchemaNode, idx *index.EmbeddingIndex) (*Result, error) {
	if idx.Degraded() || len(idx.Chunks()) < r.fullScanThreshold {
		return r.assemble(ctx, idx.Chunks())
	}

	query, err := r.queryVector(ctx, QueryText(node))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// A field whose query cannot be embedded still gets extracted,
		// just without ranking.
		r.logger.Warn("query embedding failed, falling back to full scan", "path", node.Path, "error", err)
		return r.assemble(ctx, idx.Chunks())
	}

	matches := idx.Query(query, r.topK)
	unranked := idx.UnindexedChunks()
	selected := make([]*core.Chunk, 0, len(matches)+len(unranked))
	for _, match := range matches {
		selected = append(selected, match.Chunk)
	}
	selected = append(selected, unranked...)
	return r.assemble(ctx, selected)
}

// queryVector embeds a query text, memoizing per text for the lifetime
// of the Retriever. One field description is embedded once per run, not
// once per document.
func (r *Retriever) queryVector(ctx context.Context, text string) ([]float32, error) {
	r.mu.Lock()
	cached, ok := r.queryCache[text]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	var raw []float32
	err := ai.RetryWithBackoff(ctx, func() error {
		var err error
		raw, err = r.embedder.EmbedText(ctx, text)
		return err
	}, r.maxAttempts, r.baseDelay)
	if err != nil {
		return nil, err
	}

	vector := index.NormalizeVector(raw)
	r.mu.Lock()
	r.queryCache[text] = vector
	r.mu.Unlock()
	return vector, nil
}

// assemble orders the selected small chunks by offset and resolves their
// deduplicated parent large chunks.
func (r *Retriever) assemble(ctx context.Context, selected []*core.Chunk) (*Result, error) {
	small := slices.Clone(selected)
	slices.SortFunc(small, func(a, b *core.Chunk) int {
		return a.Start - b.Start
	})

	var large []*core.Chunk
	seen := make(map[core.ID]bool)
	for _, chunk := range small {
		if chunk.ParentId == 0 || seen[chunk.ParentId] {
			continue
		}
		seen[chunk.ParentId] = true

		parent, err := r.chunks.GetChunk(ctx, chunk.ParentId)
		if err != nil {
			// A missing parent only costs context, not extraction.
			r.logger.Warn("parent chunk not found", "chunk", chunk.Id, "parent", chunk.ParentId)
			continue
		}
		large = append(large, parent)
	}
	slices.SortFunc(large, func(a, b *core.Chunk) int {
		return a.Start - b.Start
	})

	return &Result{Small: small, Large: large}, nil
}

// QueryText returns the retrieval query for a schema field: its
// description when present, otherwise the path with structure characters
// flattened to spaces.
func QueryText(node *core.SchemaNode) string {
	if strings.TrimSpace(node.Description) != "" {
		return node.Description
	}
	return HumanizePath(node.Path)
}

// HumanizePath turns "addresses[].street_name" into "addresses street name".
func HumanizePath(path string) string {
	replacer := strings.NewReplacer("[]", "", ".", " ", "_", " ", "-", " ")
	return strings.Join(strings.Fields(replacer.Replace(path)), " ")
}

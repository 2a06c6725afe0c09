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

// Package pipeline runs documents through the full chunk → embed →
// retrieve → extract → aggregate → validate sequence and persists the
// resulting records. Documents run in parallel on a worker pool; within
// a document, extraction fans out per (field, chunk) pair.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/scrivano/scrivano/aggregate"
	"github.com/scrivano/scrivano/ai"
	"github.com/scrivano/scrivano/chunker"
	"github.com/scrivano/scrivano/core"
	"github.com/scrivano/scrivano/extract"
	"github.com/scrivano/scrivano/index"
	"github.com/scrivano/scrivano/retrieve"
	"github.com/scrivano/scrivano/storage"
	"github.com/scrivano/scrivano/validate"
)

// Pipeline orchestrates per-document extraction runs.
type Pipeline struct {
	store     storage.Store
	provider  ai.Provider
	chunker   *chunker.Chunker
	builder   *index.Builder
	retriever *retrieve.Retriever
	extractor *extract.Extractor
	docPool   *ants.Pool

	grouping         bool
	strategy         aggregate.Strategy
	overlapThreshold float64
	lowConfidence    float64
	logger           *slog.Logger

	// accumulated before construction
	chunkerConfig  chunker.Config
	embeddingModel string
	indexOpts      []index.BuilderOption
	retrieveOpts   []retrieve.Option
	extractOpts    []extract.Option
	poolSize       int
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithChunkerConfig overrides the chunk sizes.
func WithChunkerConfig(config chunker.Config) Option {
	return func(p *Pipeline) error {
		p.chunkerConfig = config
		return nil
	}
}

// WithDocPoolSize sets the number of documents processed concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithDocPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.poolSize = size
		return nil
	}
}

// WithFieldGrouping folds unconstrained sibling leaves into single
// extraction requests.
func WithFieldGrouping(enabled bool) Option {
	return func(p *Pipeline) error {
		p.grouping = enabled
		return nil
	}
}

// WithStrategy overrides the aggregation scoring strategy.
func WithStrategy(s aggregate.Strategy) Option {
	return func(p *Pipeline) error {
		p.strategy = s
		return nil
	}
}

// WithOverlapThreshold overrides the entity-identity threshold.
func WithOverlapThreshold(t float64) Option {
	return func(p *Pipeline) error {
		p.overlapThreshold = t
		return nil
	}
}

// WithLowConfidenceThreshold overrides the validator's advisory cutoff.
func WithLowConfidenceThreshold(t float64) Option {
	return func(p *Pipeline) error {
		p.lowConfidence = t
		return nil
	}
}

// WithIndexOptions passes options through to the index builder.
func WithIndexOptions(opts ...index.BuilderOption) Option {
	return func(p *Pipeline) error {
		p.indexOpts = append(p.indexOpts, opts...)
		return nil
	}
}

// WithRetrieveOptions passes options through to the retriever.
func WithRetrieveOptions(opts ...retrieve.Option) Option {
	return func(p *Pipeline) error {
		p.retrieveOpts = append(p.retrieveOpts, opts...)
		return nil
	}
}

// WithExtractOptions passes options through to the extraction
// orchestrator.
func WithExtractOptions(opts ...extract.Option) Option {
	return func(p *Pipeline) error {
		p.extractOpts = append(p.extractOpts, opts...)
		return nil
	}
}

// WithEmbeddingModel sets the model id keying the vector cache.
func WithEmbeddingModel(modelId string) Option {
	return func(p *Pipeline) error {
		p.embeddingModel = modelId
		return nil
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// New creates a Pipeline.
func New(store storage.Store, provider ai.Provider, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if provider == nil {
		return nil, ErrProviderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	p := &Pipeline{
		store:            store,
		provider:         provider,
		strategy:         aggregate.StrategySum,
		overlapThreshold: aggregate.DefaultOverlapThreshold,
		lowConfidence:    validate.DefaultLowConfidenceThreshold,
		chunkerConfig:    chunker.DefaultConfig(),
		embeddingModel:   "embeddinggemma",
		poolSize:         poolSize,
		logger:           slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	var err error
	p.chunker, err = chunker.New(p.chunkerConfig)
	if err != nil {
		return nil, err
	}

	p.builder = index.NewBuilder(provider.Embedder(), store.Vectors(), p.embeddingModel, p.indexOpts...)
	p.retriever = retrieve.New(provider.Embedder(), store.Chunks(), p.retrieveOpts...)

	p.extractor, err = extract.New(provider.Extractor(), p.extractOpts...)
	if err != nil {
		return nil, err
	}

	p.docPool, err = ants.NewPool(p.poolSize)
	if err != nil {
		p.extractor.Release()
		return nil, err
	}

	return p, nil
}

// Release releases worker pools. The pipeline must not be used after.
func (p *Pipeline) Release() {
	if p.extractor != nil {
		p.extractor.Release()
	}
	if p.docPool != nil {
		p.docPool.Release()
	}
}

// Run processes one document against a schema and persists the record.
// The record is written only after validation completes; a cancelled run
// leaves no partial record behind.
func (p *Pipeline) Run(ctx context.Context, doc *core.Document, schemaRaw []byte) (*core.Record, error) {
	root, err := core.ParseSchema(schemaRaw)
	if err != nil {
		return nil, err
	}
	schemaId := core.SchemaID(schemaRaw)

	if err := p.store.Documents().PutDocument(ctx, doc); err != nil {
		return nil, err
	}

	set, err := p.ingest(ctx, doc)
	if err != nil {
		return nil, err
	}

	validator := validate.New(root, validate.WithLowConfidenceThreshold(p.lowConfidence))

	// Whitespace-only documents still produce a record: required fields
	// are reported missing, nothing else.
	if len(set.Small) == 0 {
		return p.persistRecord(ctx, &core.Record{
			DocumentId: doc.Id,
			SchemaId:   schemaId,
			RunId:      uuid.NewString(),
			Values:     map[string]core.AggregatedValue{},
			Issues:     validator.Validate(nil),
		})
	}

	idx, err := p.builder.Build(ctx, set.Small)
	if err != nil {
		return nil, err
	}

	candidates, pairs, degraded, err := p.extractAll(ctx, root, idx)
	if err != nil {
		return nil, err
	}

	if pairs > 0 && degraded == pairs {
		return nil, fmt.Errorf("%w: all %d extraction calls degraded", ErrDocumentFailed, pairs)
	}

	aggregator := aggregate.New(root,
		aggregate.WithStrategy(p.strategy),
		aggregate.WithOverlapThreshold(p.overlapThreshold))
	values := aggregator.Aggregate(candidates)
	issues := validator.Validate(values)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return p.persistRecord(ctx, &core.Record{
		DocumentId: doc.Id,
		SchemaId:   schemaId,
		RunId:      uuid.NewString(),
		Values:     values,
		Issues:     issues,
	})
}

// ingest replaces the document's stored chunks with a fresh split.
// Chunk ids are content hashes, so an unchanged document rewrites the
// same chunks and keeps its cached vectors.
func (p *Pipeline) ingest(ctx context.Context, doc *core.Document) (*chunker.ChunkSet, error) {
	set, err := p.chunker.Split(doc)
	if err != nil {
		return nil, err
	}
	if err := p.store.Chunks().DeleteChunks(ctx, doc.Id); err != nil {
		return nil, err
	}
	all := append(append([]*core.Chunk{}, set.Large...), set.Small...)
	if len(all) > 0 {
		if err := p.store.Chunks().PutChunks(ctx, all...); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// extractAll fans extraction out per unit and collects candidates in a
// deterministic order.
func (p *Pipeline) extractAll(ctx context.Context, root *core.SchemaNode, idx *index.EmbeddingIndex) ([]core.ExtractionCandidate, int, int, error) {
	var candidates []core.ExtractionCandidate
	pairs, degraded := 0, 0

	for _, unit := range extract.Units(root, p.grouping) {
		if ctx.Err() != nil {
			return nil, 0, 0, ctx.Err()
		}

		res, err := p.retriever.ChunksFor(ctx, unit.QueryNode(), idx)
		if err != nil {
			return nil, 0, 0, err
		}

		parents := make(map[core.ID]*core.Chunk, len(res.Large))
		for _, large := range res.Large {
			parents[large.Id] = large
		}

		out, err := p.extractor.Run(ctx, unit, res.Small, parents)
		if err != nil {
			return nil, 0, 0, err
		}

		candidates = append(candidates, out.Candidates...)
		pairs += out.Pairs
		degraded += out.DegradedPairs()

		for _, failure := range out.Failures {
			p.logger.Debug("pair produced no candidate",
				"path", failure.Path, "chunk", failure.ChunkId, "reason", failure.Reason)
		}
	}

	return candidates, pairs, degraded, nil
}

func (p *Pipeline) persistRecord(ctx context.Context, record *core.Record) (*core.Record, error) {
	if err := p.store.Records().UpsertRecord(ctx, record); err != nil {
		return nil, err
	}
	p.logger.Info("record persisted",
		"document", record.DocumentId, "values", len(record.Values), "issues", len(record.Issues))
	return record, nil
}

// RunAll processes documents concurrently on the document pool. Failed
// documents are skipped and their errors joined; successful records are
// returned in input order.
func (p *Pipeline) RunAll(ctx context.Context, docs []*core.Document, schemaRaw []byte) ([]*core.Record, error) {
	records := make([]*core.Record, len(docs))
	errs := make([]error, len(docs))

	var wg sync.WaitGroup
	for i, doc := range docs {
		wg.Add(1)
		err := p.docPool.Submit(func() {
			defer wg.Done()
			record, err := p.Run(ctx, doc, schemaRaw)
			if err != nil {
				p.logger.Error("document failed", "document", doc.Id, "err", err)
				errs[i] = fmt.Errorf("document %d: %w", doc.Id, err)
				return
			}
			records[i] = record
		})
		if err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()

	var kept []*core.Record
	for _, record := range records {
		if record != nil {
			kept = append(kept, record)
		}
	}
	return kept, errors.Join(errs...)
}

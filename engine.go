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


package scrivano

import (
	"context"
	"io"
	"log/slog"

	"github.com/scrivano/scrivano/ai"
	"github.com/scrivano/scrivano/ai/openai"
	"github.com/scrivano/scrivano/core"
	"github.com/scrivano/scrivano/pipeline"
	"github.com/scrivano/scrivano/reindex"
	"github.com/scrivano/scrivano/storage"
	"github.com/scrivano/scrivano/storage/badger"
)

// Engine ties the store, the capability provider and the extraction
// pipeline together behind one handle. It is the entry point for
// embedding applications; the CLI is a thin wrapper around it.
type Engine struct {
	store    *badger.Store
	provider ai.Provider
	pipeline *pipeline.Pipeline
	aiConfig *ai.Config
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	aiConfig     *ai.Config
	provider     ai.Provider
	pipelineOpts []pipeline.Option
	inMemory     bool
}

// WithAIConfig sets the capability provider configuration.
func WithAIConfig(config *ai.Config) EngineOption {
	return func(o *engineOptions) {
		o.aiConfig = config
	}
}

// WithProvider injects a pre-built capability provider instead of the
// default OpenAI-compatible one. The engine takes ownership and closes it.
func WithProvider(provider ai.Provider) EngineOption {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithPipelineOptions forwards options to the extraction pipeline.
func WithPipelineOptions(opts ...pipeline.Option) EngineOption {
	return func(o *engineOptions) {
		o.pipelineOpts = append(o.pipelineOpts, opts...)
	}
}

// WithInMemoryStore opens the store in memory. Intended for tests.
func WithInMemoryStore() EngineOption {
	return func(o *engineOptions) {
		o.inMemory = true
	}
}

// NewEngine opens the store at filePath and wires up the provider and
// pipeline. The returned engine must be closed when done.
func NewEngine(filePath string, opts ...EngineOption) (*Engine, error) {
	options := &engineOptions{
		aiConfig: ai.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}

	store, err := badger.OpenStore(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	// The pipeline keys vectors by embedding model; keep it in sync with
	// the provider configuration unless the caller overrides it.
	pipelineOpts := append(
		[]pipeline.Option{pipeline.WithEmbeddingModel(options.aiConfig.EmbeddingModel)},
		options.pipelineOpts...,
	)

	pipe, err := pipeline.New(store, provider, pipelineOpts...)
	if err != nil {
		provider.Close()
		store.Close()
		return nil, err
	}

	return &Engine{
		store:    store,
		provider: provider,
		pipeline: pipe,
		aiConfig: options.aiConfig,
		logger:   slog.Default().With("component", "engine"),
	}, nil
}

// Run extracts a record for one document against the given JSON Schema.
func (e *Engine) Run(ctx context.Context, doc *core.Document, schemaRaw []byte) (*core.Record, error) {
	return e.pipeline.Run(ctx, doc, schemaRaw)
}

// RunAll extracts records for a set of documents against one schema.
// Documents fail independently; successful records are returned alongside
// the joined errors of the failed ones.
func (e *Engine) RunAll(ctx context.Context, docs []*core.Document, schemaRaw []byte) ([]*core.Record, error) {
	return e.pipeline.RunAll(ctx, docs, schemaRaw)
}

// GetRecord retrieves the persisted record for a (document, schema) pair.
// Returns storage.ErrNotFound when no run has produced one yet.
func (e *Engine) GetRecord(ctx context.Context, docId core.ID, schemaRaw []byte) (*core.Record, error) {
	return e.store.Records().GetRecord(ctx, docId, core.SchemaID(schemaRaw))
}

// Reindex recomputes the stored vectors for every small chunk under
// modelId, reporting progress to the given writer.
func (e *Engine) Reindex(ctx context.Context, modelId string, config *reindex.Config, progress io.Writer) error {
	r := reindex.NewReindexer(e.store.Chunks(), e.store.Vectors(), e.provider.Embedder(), modelId, config, progress)
	return r.Run(ctx)
}

// Store exposes the underlying repositories.
func (e *Engine) Store() storage.Store {
	return e.store
}

// Close releases the pipeline, the provider and the store, in that order.
func (e *Engine) Close() error {
	e.pipeline.Release()

	if err := e.provider.Close(); err != nil {
		e.logger.Error("error closing capability provider", "err", err)
	}

	if err := e.store.Close(); err != nil {
		e.logger.Error("error closing store", "err", err)
		return err
	}
	return nil
}

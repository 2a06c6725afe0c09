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

// Package extract orchestrates constrained extraction calls against the
// capability, one request per (unit, chunk) pair, bounded by a worker
// pool and a rate limiter. Failures degrade the pair to "no candidate"
// instead of failing the document.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/time/rate"

	"github.com/scrivano/scrivano/ai"
	"github.com/scrivano/scrivano/core"
)

// Defaults for admission control and retries.
const (
	DefaultMaxInFlight       = 4
	DefaultRequestsPerSecond = 4
	DefaultMaxAttempts       = 3
	DefaultBaseDelay         = time.Second
)

// Default confidence priors per field kind, applied when the capability
// reports no score of its own.
const (
	DefaultPrior             = 0.6
	DefaultItemPrior         = 0.55
	DefaultConstraintBoost   = 0.2
	DefaultConstraintPenalty = 0.3
	minConfidence            = 0.05
	maxConfidence            = 0.95
)

// Extractor runs extraction units against the capability.
type Extractor struct {
	capability  ai.Extractor
	pool        *ants.Pool
	limiter     *rate.Limiter
	maxAttempts int
	baseDelay   time.Duration

	prior             float64
	itemPrior         float64
	constraintBoost   float64
	constraintPenalty float64

	parentContext bool
	logger        *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor) error

// WithMaxInFlight bounds concurrent capability requests.
// Default is DefaultMaxInFlight, minimum 1.
func WithMaxInFlight(n int) Option {
	return func(e *Extractor) error {
		if n < 1 {
			n = 1
		}
		if e.pool != nil {
			e.pool.Release()
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		e.pool = pool
		return nil
	}
}

// WithRateLimit sets the request rate toward the capability.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(e *Extractor) error {
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		return nil
	}
}

// WithRetry overrides the retry policy for capability errors.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(e *Extractor) error {
		e.maxAttempts = maxAttempts
		e.baseDelay = baseDelay
		return nil
	}
}

// WithPriors overrides the default confidence priors.
func WithPriors(prior, itemPrior float64) Option {
	return func(e *Extractor) error {
		e.prior = prior
		e.itemPrior = itemPrior
		return nil
	}
}

// WithParentContext includes the enclosing large chunk's text in the
// request when available. Costs tokens, helps fields whose mention spans
// a small-chunk boundary.
func WithParentContext(enabled bool) Option {
	return func(e *Extractor) error {
		e.parentContext = enabled
		return nil
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// New creates an Extractor.
func New(capability ai.Extractor, opts ...Option) (*Extractor, error) {
	if capability == nil {
		return nil, ErrExtractorRequired
	}

	pool, err := ants.NewPool(DefaultMaxInFlight)
	if err != nil {
		return nil, err
	}

	e := &Extractor{
		capability:        capability,
		pool:              pool,
		limiter:           rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), DefaultMaxInFlight),
		maxAttempts:       DefaultMaxAttempts,
		baseDelay:         DefaultBaseDelay,
		prior:             DefaultPrior,
		itemPrior:         DefaultItemPrior,
		constraintBoost:   DefaultConstraintBoost,
		constraintPenalty: DefaultConstraintPenalty,
		logger:            slog.Default().With("component", "extract"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			e.Release()
			return nil, err
		}
	}
	return e, nil
}

// Release releases the worker pool. The Extractor must not be used after.
func (e *Extractor) Release() {
	if e.pool != nil {
		e.pool.Release()
	}
}

// Failure records one (path, chunk) pair that produced no candidate, for
// diagnostics only.
type Failure struct {
	Path    string
	ChunkId core.ID
	Reason  string

	// Capability marks failures of the capability itself, as opposed to
	// responses that did not conform to the sub-schema.
	Capability bool
}

// Output is the result of running one unit over its retrieved chunks.
type Output struct {
	Candidates []core.ExtractionCandidate
	Failures   []Failure

	// Pairs is the number of (unit, chunk) capability calls attempted.
	Pairs int
}

// DegradedPairs counts the pairs lost to capability failures.
func (o *Output) DegradedPairs() int {
	n := 0
	for _, f := range o.Failures {
		if f.Capability {
			n++
		}
	}
	return n
}

// Run extracts one unit from each chunk concurrently and returns the
// conforming candidates sorted by chunk offset then path, so downstream
// aggregation never observes completion order.
func (e *Extractor) Run(ctx context.Context, unit Unit, chunks []*core.Chunk, parents map[core.ID]*core.Chunk) (*Output, error) {
	subSchema := core.SubSchema(unit.Node)

	out := &Output{Pairs: len(chunks)}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, chunk := range chunks {
		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()

			candidates, failures := e.extractPair(ctx, unit, subSchema, chunk, parents[chunk.ParentId])

			mu.Lock()
			out.Candidates = append(out.Candidates, candidates...)
			out.Failures = append(out.Failures, failures...)
			mu.Unlock()
		})
		if err != nil {
			wg.Done()
			return nil, err
		}
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	slices.SortFunc(out.Candidates, func(a, b core.ExtractionCandidate) int {
		if a.ChunkStart != b.ChunkStart {
			return a.ChunkStart - b.ChunkStart
		}
		return compareStrings(a.Path, b.Path)
	})
	slices.SortFunc(out.Failures, func(a, b Failure) int {
		return compareStrings(a.Path+":"+a.Reason, b.Path+":"+b.Reason)
	})

	return out, nil
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// extractPair performs one capability call and turns the response into
// candidates. Every return path is a degradation, never an abort.
func (e *Extractor) extractPair(ctx context.Context, unit Unit, subSchema []byte, chunk *core.Chunk, parent *core.Chunk) ([]core.ExtractionCandidate, []Failure) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, []Failure{{Path: unit.Node.Path, ChunkId: chunk.Id, Reason: err.Error(), Capability: true}}
	}

	content := chunk.Text
	if e.parentContext && parent != nil {
		content = fmt.Sprintf("Surrounding context:\n%s\n\nFragment:\n%s", parent.Text, chunk.Text)
	}

	var extraction *ai.Extraction
	err := ai.RetryWithBackoff(ctx, func() error {
		var err error
		extraction, err = e.capability.Extract(ctx, content, subSchema)
		return err
	}, e.maxAttempts, e.baseDelay)
	if err != nil {
		e.logger.Warn("extraction degraded for chunk", "path", unit.Node.Path, "chunk", chunk.Id, "error", err)
		return nil, []Failure{{Path: unit.Node.Path, ChunkId: chunk.Id, Reason: err.Error(), Capability: true}}
	}

	if extraction.Absent || extraction.Value == nil {
		return nil, nil
	}

	switch {
	case unit.Grouped():
		return e.groupCandidates(unit, chunk, extraction)
	case unit.Node.Kind == core.KindArray:
		return e.arrayCandidates(unit.Node, chunk, extraction)
	default:
		return e.scalarCandidate(unit.Node, chunk, extraction)
	}
}

// scalarCandidate conforms a single-leaf response.
func (e *Extractor) scalarCandidate(node *core.SchemaNode, chunk *core.Chunk, extraction *ai.Extraction) ([]core.ExtractionCandidate, []Failure) {
	if !core.TypeMatches(node, extraction.Value) {
		return nil, []Failure{{
			Path:    node.Path,
			ChunkId: chunk.Id,
			Reason:  fmt.Sprintf("non-conforming value of type %T", extraction.Value),
		}}
	}
	return []core.ExtractionCandidate{{
		Path:       node.Path,
		ChunkId:    chunk.Id,
		ChunkStart: chunk.Start,
		Value:      extraction.Value,
		Confidence: e.confidence(node, extraction.Value, extraction.Confidence),
	}}, nil
}

// arrayCandidates emits one candidate per conforming array element at
// the element path, so aggregation can dedupe entities across chunks.
func (e *Extractor) arrayCandidates(node *core.SchemaNode, chunk *core.Chunk, extraction *ai.Extraction) ([]core.ExtractionCandidate, []Failure) {
	elements, ok := extraction.Value.([]any)
	if !ok {
		return nil, []Failure{{
			Path:    node.Path,
			ChunkId: chunk.Id,
			Reason:  fmt.Sprintf("non-conforming value of type %T, expected array", extraction.Value),
		}}
	}

	elementPath := node.Path + "[]"
	var candidates []core.ExtractionCandidate
	var failures []Failure
	for _, element := range elements {
		if element == nil || !core.TypeMatches(node.Items, element) {
			failures = append(failures, Failure{
				Path:    elementPath,
				ChunkId: chunk.Id,
				Reason:  fmt.Sprintf("non-conforming element of type %T", element),
			})
			continue
		}
		candidates = append(candidates, core.ExtractionCandidate{
			Path:       elementPath,
			ChunkId:    chunk.Id,
			ChunkStart: chunk.Start,
			Value:      element,
			Confidence: e.itemConfidence(node.Items, element, extraction.Confidence),
		})
	}
	return candidates, failures
}

// groupCandidates splits a grouped object response into per-leaf
// candidates. Missing or null members simply produce no candidate.
func (e *Extractor) groupCandidates(unit Unit, chunk *core.Chunk, extraction *ai.Extraction) ([]core.ExtractionCandidate, []Failure) {
	members, ok := extraction.Value.(map[string]any)
	if !ok {
		return nil, []Failure{{
			Path:    unit.Node.Path,
			ChunkId: chunk.Id,
			Reason:  fmt.Sprintf("non-conforming value of type %T, expected object", extraction.Value),
		}}
	}

	var candidates []core.ExtractionCandidate
	var failures []Failure
	for _, leaf := range unit.Leaves {
		value, present := members[leaf.Name]
		if !present || value == nil {
			continue
		}
		if !core.TypeMatches(leaf, value) {
			failures = append(failures, Failure{
				Path:    leaf.Path,
				ChunkId: chunk.Id,
				Reason:  fmt.Sprintf("non-conforming value of type %T", value),
			})
			continue
		}
		candidates = append(candidates, core.ExtractionCandidate{
			Path:       leaf.Path,
			ChunkId:    chunk.Id,
			ChunkStart: chunk.Start,
			Value:      value,
			Confidence: e.confidence(leaf, value, extraction.Confidence),
		})
	}
	return candidates, failures
}

// confidence derives a candidate's confidence: the capability's own score
// when reported, otherwise a prior per field kind nudged by whether the
// declared constraints hold.
func (e *Extractor) confidence(node *core.SchemaNode, value any, reported float64) float64 {
	if reported >= 0 {
		return clamp01(reported)
	}
	return e.derive(node, value, e.prior)
}

// itemConfidence is confidence for array elements, which start from a
// slightly lower prior: repeated entities hallucinate more easily.
func (e *Extractor) itemConfidence(node *core.SchemaNode, value any, reported float64) float64 {
	if reported >= 0 {
		return clamp01(reported)
	}
	return e.derive(node, value, e.itemPrior)
}

func (e *Extractor) derive(node *core.SchemaNode, value any, prior float64) float64 {
	confidence := prior
	if hasConstraints(node) {
		if len(core.CheckValue(node, value)) == 0 {
			confidence += e.constraintBoost
		} else {
			confidence -= e.constraintPenalty
		}
	}
	return clampConfidence(confidence)
}

func hasConstraints(node *core.SchemaNode) bool {
	if node.Format != "" || node.Pattern != "" || node.IsEnum() {
		return true
	}
	return node.Minimum != nil || node.Maximum != nil
}

func clampConfidence(c float64) float64 {
	if c < minConfidence {
		return minConfidence
	}
	if c > maxConfidence {
		return maxConfidence
	}
	return c
}

func clamp01(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

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

// Package aggregate turns the per-chunk candidate multiset into one
// value per field. Scalar candidates group by normalized value and the
// strongest group wins; array elements merge into entities by field
// overlap. Everything is pure and deterministic: candidates are ordered
// by chunk offset before any grouping, so concurrent extraction order
// never shows through.
package aggregate

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/scrivano/scrivano/core"
)

// Strategy selects how a value group's score is computed when groups
// compete.
type Strategy int

const (
	// StrategySum scores a group by the sum of its candidates'
	// confidences, so repeated agreement beats one confident outlier.
	StrategySum Strategy = iota + 1

	// StrategyMax scores a group by its single best candidate.
	StrategyMax
)

// DefaultOverlapThreshold is the field-overlap ratio above which two
// candidate objects count as the same entity.
const DefaultOverlapThreshold = 0.7

// Aggregator merges extraction candidates against one schema.
type Aggregator struct {
	schema    *core.SchemaNode
	strategy  Strategy
	threshold float64
	logger    *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithStrategy overrides the group scoring strategy. Default StrategySum.
func WithStrategy(s Strategy) Option {
	return func(a *Aggregator) { a.strategy = s }
}

// WithOverlapThreshold overrides the entity-identity threshold.
func WithOverlapThreshold(t float64) Option {
	return func(a *Aggregator) { a.threshold = t }
}

// New creates an Aggregator for a schema.
func New(schema *core.SchemaNode, opts ...Option) *Aggregator {
	a := &Aggregator{
		schema:    schema,
		strategy:  StrategySum,
		threshold: DefaultOverlapThreshold,
		logger:    slog.Default().With("component", "aggregate"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate reduces candidates to final values keyed by instance path
// ("title", "addresses[0].street"). A path with zero candidates yields
// no entry; nothing is ever invented.
func (a *Aggregator) Aggregate(candidates []core.ExtractionCandidate) map[string]core.AggregatedValue {
	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(x, y core.ExtractionCandidate) int {
		if x.ChunkStart != y.ChunkStart {
			return x.ChunkStart - y.ChunkStart
		}
		return strings.Compare(x.Path, y.Path)
	})

	byPath := make(map[string][]core.ExtractionCandidate)
	var paths []string
	for _, c := range sorted {
		if _, seen := byPath[c.Path]; !seen {
			paths = append(paths, c.Path)
		}
		byPath[c.Path] = append(byPath[c.Path], c)
	}
	slices.Sort(paths)

	values := make(map[string]core.AggregatedValue)
	for _, path := range paths {
		node := core.ResolvePath(a.schema, path)
		if node == nil {
			a.logger.Warn("candidates for unknown schema path dropped", "path", path)
			continue
		}
		if strings.HasSuffix(path, "[]") {
			a.aggregateArray(values, strings.TrimSuffix(path, "[]"), node, byPath[path])
			continue
		}
		if v := a.scalar(node, path, byPath[path]); v != nil {
			values[path] = *v
		}
	}
	return values
}

// group is one normalized-value bucket of scalar candidates.
type group struct {
	value      any
	best       float64
	total      float64
	firstStart int
	chunks     []core.ID
}

// scalar aggregates candidates for one scalar field. Candidates must be
// in document order. Returns nil for an empty candidate set.
func (a *Aggregator) scalar(node *core.SchemaNode, path string, cands []core.ExtractionCandidate) *core.AggregatedValue {
	if len(cands) == 0 {
		return nil
	}

	groups := make(map[string]*group)
	var order []string
	for _, c := range cands {
		key := NormalizeValue(node, c.Value)
		g, ok := groups[key]
		if !ok {
			g = &group{value: c.Value, best: c.Confidence, firstStart: c.ChunkStart}
			groups[key] = g
			order = append(order, key)
		}
		g.total += c.Confidence
		if c.Confidence > g.best {
			g.best = c.Confidence
			g.value = c.Value
		}
		if !slices.Contains(g.chunks, c.ChunkId) {
			g.chunks = append(g.chunks, c.ChunkId)
		}
	}

	var winner *group
	for _, key := range order {
		g := groups[key]
		if winner == nil {
			winner = g
			continue
		}
		switch {
		case a.score(g) > a.score(winner):
			winner = g
		case a.score(g) == a.score(winner) && g.firstStart < winner.firstStart:
			// Tie: prefer the group seen earliest in the document.
			winner = g
		}
	}

	return &core.AggregatedValue{
		Path:             path,
		Value:            winner.value,
		Confidence:       winner.best,
		SupportingChunks: winner.chunks,
	}
}

func (a *Aggregator) score(g *group) float64 {
	if a.strategy == StrategyMax {
		return g.best
	}
	return g.total
}

// aggregateArray merges element candidates into entities and emits one
// instance path per entity (plus per-field paths for object elements).
// Final array order is order of first appearance in the document.
func (a *Aggregator) aggregateArray(values map[string]core.AggregatedValue, basePath string, itemNode *core.SchemaNode, cands []core.ExtractionCandidate) {
	if itemNode.Kind == core.KindObject {
		a.aggregateObjectArray(values, basePath, itemNode, cands)
		return
	}

	// Scalar elements dedupe by normalized value.
	type entry struct {
		key   string
		cands []core.ExtractionCandidate
	}
	var entries []*entry
	for _, c := range cands {
		key := NormalizeValue(itemNode, c.Value)
		idx := slices.IndexFunc(entries, func(e *entry) bool { return e.key == key })
		if idx < 0 {
			entries = append(entries, &entry{key: key})
			idx = len(entries) - 1
		}
		entries[idx].cands = append(entries[idx].cands, c)
	}

	for i, e := range entries {
		path := fmt.Sprintf("%s[%d]", basePath, i)
		if v := a.scalar(itemNode, path, e.cands); v != nil {
			values[path] = *v
		}
	}
}

// objectEntry accumulates the per-field candidates of one accepted
// entity.
type objectEntry struct {
	fields map[string][]core.ExtractionCandidate
}

// aggregateObjectArray merges candidate objects into entities: a new
// object joins the first accepted entity whose shared scalar fields
// mostly agree, otherwise it becomes a new entity.
func (a *Aggregator) aggregateObjectArray(values map[string]core.AggregatedValue, basePath string, itemNode *core.SchemaNode, cands []core.ExtractionCandidate) {
	var entries []*objectEntry

	for _, c := range cands {
		obj, ok := c.Value.(map[string]any)
		if !ok {
			continue
		}

		var target *objectEntry
		for _, e := range entries {
			if a.overlap(itemNode, e, obj) >= a.threshold {
				target = e
				break
			}
		}
		if target == nil {
			target = &objectEntry{fields: make(map[string][]core.ExtractionCandidate)}
			entries = append(entries, target)
		}

		for _, child := range itemNode.Children {
			v, present := obj[child.Name]
			if !present || v == nil {
				continue
			}
			target.fields[child.Name] = append(target.fields[child.Name], core.ExtractionCandidate{
				Path:       child.Path,
				ChunkId:    c.ChunkId,
				ChunkStart: c.ChunkStart,
				Value:      v,
				Confidence: c.Confidence,
			})
		}
	}

	for i, e := range entries {
		prefix := fmt.Sprintf("%s[%d]", basePath, i)
		for _, child := range itemNode.Children {
			fieldCands := e.fields[child.Name]
			if len(fieldCands) == 0 {
				continue
			}
			a.emitField(values, prefix+"."+child.Name, child, fieldCands)
		}
	}
}

// emitField aggregates one field of a merged entity, recursing through
// nested objects and arrays.
func (a *Aggregator) emitField(values map[string]core.AggregatedValue, instancePath string, node *core.SchemaNode, cands []core.ExtractionCandidate) {
	switch node.Kind {
	case core.KindObject:
		for _, child := range node.Children {
			var sub []core.ExtractionCandidate
			for _, c := range cands {
				obj, ok := c.Value.(map[string]any)
				if !ok {
					continue
				}
				if v, present := obj[child.Name]; present && v != nil {
					sub = append(sub, core.ExtractionCandidate{
						Path:       child.Path,
						ChunkId:    c.ChunkId,
						ChunkStart: c.ChunkStart,
						Value:      v,
						Confidence: c.Confidence,
					})
				}
			}
			if len(sub) > 0 {
				a.emitField(values, instancePath+"."+child.Name, child, sub)
			}
		}
	case core.KindArray:
		var elements []core.ExtractionCandidate
		for _, c := range cands {
			arr, ok := c.Value.([]any)
			if !ok {
				continue
			}
			for _, v := range arr {
				if v == nil {
					continue
				}
				elements = append(elements, core.ExtractionCandidate{
					Path:       node.Path + "[]",
					ChunkId:    c.ChunkId,
					ChunkStart: c.ChunkStart,
					Value:      v,
					Confidence: c.Confidence,
				})
			}
		}
		a.aggregateArray(values, instancePath, node.Items, elements)
	default:
		if v := a.scalar(node, instancePath, cands); v != nil {
			values[instancePath] = *v
		}
	}
}

// overlap computes the field-overlap ratio between a candidate object and
// an accepted entity: matching shared scalar fields over fields present
// in both. No shared fields means no evidence of identity, ratio 0.
func (a *Aggregator) overlap(itemNode *core.SchemaNode, e *objectEntry, obj map[string]any) float64 {
	shared, matching := 0, 0
	for _, child := range itemNode.Children {
		switch child.Kind {
		case core.KindObject, core.KindArray:
			continue
		}
		v, present := obj[child.Name]
		if !present || v == nil {
			continue
		}
		existing := e.fields[child.Name]
		if len(existing) == 0 {
			continue
		}
		shared++
		key := NormalizeValue(child, v)
		for _, ec := range existing {
			if NormalizeValue(child, ec.Value) == key {
				matching++
				break
			}
		}
	}
	if shared == 0 {
		return 0
	}
	return float64(matching) / float64(shared)
}

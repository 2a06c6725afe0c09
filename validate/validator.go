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

// Package validate checks aggregated values against the schema and emits
// advisory issues. Values are never removed or rewritten; a flagged value
// stays in the record for review. The validator is pure: same input, same
// issue list.
package validate

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/scrivano/scrivano/core"
)

// DefaultLowConfidenceThreshold marks values whose confidence warrants a
// human look.
const DefaultLowConfidenceThreshold = 0.5

// Validator validates aggregated values against one schema.
type Validator struct {
	schema    *core.SchemaNode
	threshold float64
}

// Option configures a Validator.
type Option func(*Validator)

// WithLowConfidenceThreshold overrides the advisory confidence cutoff.
func WithLowConfidenceThreshold(t float64) Option {
	return func(v *Validator) { v.threshold = t }
}

// New creates a Validator for a schema.
func New(schema *core.SchemaNode, opts ...Option) *Validator {
	v := &Validator{
		schema:    schema,
		threshold: DefaultLowConfidenceThreshold,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate returns the issue set for a record's values, sorted by path
// then kind so repeated runs compare equal.
func (v *Validator) Validate(values map[string]core.AggregatedValue) []core.ValidationIssue {
	var issues []core.ValidationIssue

	paths := make([]string, 0, len(values))
	for path := range values {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	for _, path := range paths {
		node := core.ResolvePath(v.schema, path)
		if node == nil {
			continue
		}
		value := values[path]

		for _, issue := range core.CheckValue(node, value.Value) {
			issue.Path = path
			issues = append(issues, issue)
		}

		if value.Confidence < v.threshold {
			issues = append(issues, core.ValidationIssue{
				Path:   path,
				Kind:   core.IssueLowConfidence,
				Detail: fmt.Sprintf("confidence %.2f below threshold %.2f", value.Confidence, v.threshold),
			})
		}
	}

	v.missingRequired(&issues, v.schema, "", values)

	slices.SortFunc(issues, func(a, b core.ValidationIssue) int {
		if c := strings.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		if c := strings.Compare(string(a.Kind), string(b.Kind)); c != 0 {
			return c
		}
		return strings.Compare(a.Detail, b.Detail)
	})
	return issues
}

// missingRequired walks the schema emitting missing_required issues.
// Required fields inside array elements are checked per element actually
// present; an empty required array is itself an issue.
func (v *Validator) missingRequired(issues *[]core.ValidationIssue, node *core.SchemaNode, prefix string, values map[string]core.AggregatedValue) {
	for _, child := range node.Children {
		childPath := joinPath(prefix, child.Name)
		switch child.Kind {
		case core.KindObject:
			v.missingRequired(issues, child, childPath, values)
		case core.KindArray:
			indexes := presentIndexes(values, childPath)
			if child.Required && len(indexes) == 0 {
				*issues = append(*issues, missingIssue(childPath))
			}
			if child.Items != nil && child.Items.Kind == core.KindObject {
				for _, idx := range indexes {
					v.missingRequired(issues, child.Items, fmt.Sprintf("%s[%d]", childPath, idx), values)
				}
			}
		default:
			if child.Required && !hasValue(values, childPath) {
				*issues = append(*issues, missingIssue(childPath))
			}
		}
	}
}

func missingIssue(path string) core.ValidationIssue {
	return core.ValidationIssue{
		Path:   path,
		Kind:   core.IssueMissingRequired,
		Detail: "required field has no value",
	}
}

func hasValue(values map[string]core.AggregatedValue, path string) bool {
	_, ok := values[path]
	return ok
}

// presentIndexes returns the sorted distinct element indexes that exist
// under an array path, inferred from the instance paths in the record.
func presentIndexes(values map[string]core.AggregatedValue, arrayPath string) []int {
	prefix := arrayPath + "["
	seen := make(map[int]bool)
	for path := range values {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := path[len(prefix):]
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			continue
		}
		idx, err := strconv.Atoi(rest[:end])
		if err != nil {
			continue
		}
		seen[idx] = true
	}
	indexes := make([]int, 0, len(seen))
	for idx := range seen {
		indexes = append(indexes, idx)
	}
	slices.Sort(indexes)
	return indexes
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

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


package core

import (
	"fmt"
	"math"
	"regexp"
	"time"
)

var (
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	languageRe = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z]{2,4})?$`)
)

// TypeMatches reports whether a decoded JSON value structurally matches the
// node's kind. nil matches only nullable nodes; integers accept JSON
// numbers with no fractional part.
func TypeMatches(n *SchemaNode, value any) bool {
	if value == nil {
		return n.Nullable
	}
	switch n.Kind {
	case KindString:
		_, ok := value.(string)
		return ok
	case KindNumber:
		_, ok := asFloat(value)
		return ok
	case KindInteger:
		f, ok := asFloat(value)
		return ok && f == math.Trunc(f)
	case KindBoolean:
		_, ok := value.(bool)
		return ok
	case KindObject:
		_, ok := value.(map[string]any)
		return ok
	case KindArray:
		_, ok := value.([]any)
		return ok
	}
	return false
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// CheckValue applies the node's type, format, enum, pattern and range
// constraints to a value and returns the resulting issues. It is pure and
// shared by the extraction orchestrator (conformance and confidence
// scoring) and the validator. nil values produce no issues; required-ness
// is the validator's concern.
func CheckValue(n *SchemaNode, value any) []ValidationIssue {
	if value == nil {
		return nil
	}

	if !TypeMatches(n, value) {
		return []ValidationIssue{{
			Path:   n.Path,
			Kind:   IssueTypeMismatch,
			Detail: fmt.Sprintf("expected %s, got %s", n.Kind, jsonTypeName(value)),
		}}
	}

	var issues []ValidationIssue

	switch n.Kind {
	case KindString:
		s := value.(string)
		if n.Format != "" && !formatMatches(n.Format, s) {
			issues = append(issues, ValidationIssue{
				Path:   n.Path,
				Kind:   IssueFormatInvalid,
				Detail: fmt.Sprintf("%q does not match format %q", s, n.Format),
			})
		}
		if n.Pattern != "" {
			if re, err := regexp.Compile(n.Pattern); err == nil && !re.MatchString(s) {
				issues = append(issues, ValidationIssue{
					Path:   n.Path,
					Kind:   IssueFormatInvalid,
					Detail: fmt.Sprintf("%q does not match pattern %q", s, n.Pattern),
				})
			}
		}
		if n.IsEnum() && !enumContains(n.Enum, s) {
			issues = append(issues, ValidationIssue{
				Path:   n.Path,
				Kind:   IssueEnumInvalid,
				Detail: fmt.Sprintf("%q is not one of the allowed values", s),
			})
		}
	case KindNumber, KindInteger:
		f, _ := asFloat(value)
		if n.Minimum != nil && f < *n.Minimum {
			issues = append(issues, ValidationIssue{
				Path:   n.Path,
				Kind:   IssueFormatInvalid,
				Detail: fmt.Sprintf("%v is below minimum %v", f, *n.Minimum),
			})
		}
		if n.Maximum != nil && f > *n.Maximum {
			issues = append(issues, ValidationIssue{
				Path:   n.Path,
				Kind:   IssueFormatInvalid,
				Detail: fmt.Sprintf("%v is above maximum %v", f, *n.Maximum),
			})
		}
		if n.IsEnum() && !enumContains(n.Enum, fmt.Sprintf("%v", value)) {
			issues = append(issues, ValidationIssue{
				Path:   n.Path,
				Kind:   IssueEnumInvalid,
				Detail: fmt.Sprintf("%v is not one of the allowed values", value),
			})
		}
	}

	return issues
}

func formatMatches(format, s string) bool {
	switch format {
	case "date":
		_, err := time.Parse("2006-01-02", s)
		return err == nil
	case "date-time":
		_, err := time.Parse(time.RFC3339, s)
		return err == nil
	case "email":
		return emailRe.MatchString(s)
	case "language":
		return languageRe.MatchString(s)
	}
	// Unknown formats are not enforced.
	return true
}

func enumContains(enum []string, s string) bool {
	for _, e := range enum {
		if e == s {
			return true
		}
	}
	return false
}

func jsonTypeName(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case float64, float32, int, int64:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", value)
}

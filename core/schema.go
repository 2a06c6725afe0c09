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
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// NodeKind is the closed set of schema node variants. The whole engine
// dispatches on it; there is deliberately no inheritance-style hierarchy.
type NodeKind int

const (
	KindString NodeKind = iota + 1
	KindNumber
	KindInteger
	KindBoolean
	KindObject
	KindArray
)

// String returns the JSON Schema type name for the kind.
func (k NodeKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindInteger:
		return "integer"
	case KindBoolean:
		return "boolean"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	}
	return "unknown"
}

// SchemaNode is one node of the archivist-defined JSON Schema tree.
// The tree is read-only input to extraction; paths address nodes with the
// grammar "a.b" for object members and "a[].b" for members of array items
// (instance paths substitute concrete indexes, e.g. "a[2].b").
type SchemaNode struct {
	Path        string
	Name        string
	Kind        NodeKind
	Description string
	Format      string // e.g. "date", "date-time", "email", "language"
	Pattern     string
	Enum        []string
	Minimum     *float64
	Maximum     *float64
	Nullable    bool // type was declared as ["<kind>","null"]
	Required    bool // listed in the parent's "required"
	Children    []*SchemaNode // object members, in declaration order
	Items       *SchemaNode   // array item schema
}

// IsLeaf reports whether the node is a terminal field (not object, not array).
func (n *SchemaNode) IsLeaf() bool {
	return n.Kind != KindObject && n.Kind != KindArray
}

// IsEnum reports whether the node constrains values to a closed set.
func (n *SchemaNode) IsEnum() bool {
	return len(n.Enum) > 0
}

// Child returns the named object member, or nil.
func (n *SchemaNode) Child(name string) *SchemaNode {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Leaves returns all leaf descendants in declaration order, descending
// through objects and array item schemas.
func (n *SchemaNode) Leaves() []*SchemaNode {
	var out []*SchemaNode
	n.Walk(func(node *SchemaNode) bool {
		if node.IsLeaf() {
			out = append(out, node)
		}
		return true
	})
	return out
}

// Walk visits the node and its descendants depth-first in declaration
// order. Returning false from fn stops descent below that node.
func (n *SchemaNode) Walk(fn func(*SchemaNode) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
	if n.Items != nil {
		n.Items.Walk(fn)
	}
}

// SchemaID derives the deterministic ID of a schema document from its raw
// bytes. An unchanged schema file keeps its identity across runs.
func SchemaID(raw []byte) ID {
	return IDFromContent("schema:" + string(bytes.TrimSpace(raw)))
}

// rawSchema is the JSON Schema subset the engine understands.
type rawSchema struct {
	Type        any                        `json:"type"`
	Description string                     `json:"description"`
	Format      string                     `json:"format"`
	Pattern     string                     `json:"pattern"`
	Enum        []any                      `json:"enum"`
	Minimum     *float64                   `json:"minimum"`
	Maximum     *float64                   `json:"maximum"`
	Properties  map[string]json.RawMessage `json:"properties"`
	Items       json.RawMessage            `json:"items"`
	RequiredKey []string                   `json:"required"`
}

// ParseSchema parses a JSON Schema document into a SchemaNode tree.
// The root must describe an object. Unknown keywords are ignored.
func ParseSchema(raw []byte) (*SchemaNode, error) {
	root, err := parseNode(raw, "", "", false)
	if err != nil {
		return nil, err
	}
	if root.Kind != KindObject {
		return nil, fmt.Errorf("%w: root must be an object, got %s", ErrInvalidSchema, root.Kind)
	}
	return root, nil
}

func parseNode(raw []byte, path, name string, required bool) (*SchemaNode, error) {
	var rs rawSchema
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	kind, nullable, err := parseType(rs.Type, path)
	if err != nil {
		return nil, err
	}

	node := &SchemaNode{
		Path:        path,
		Name:        name,
		Kind:        kind,
		Description: rs.Description,
		Format:      rs.Format,
		Pattern:     rs.Pattern,
		Minimum:     rs.Minimum,
		Maximum:     rs.Maximum,
		Nullable:    nullable,
		Required:    required,
	}

	for _, v := range rs.Enum {
		if v == nil {
			node.Nullable = true
			continue
		}
		node.Enum = append(node.Enum, fmt.Sprintf("%v", v))
	}

	switch kind {
	case KindObject:
		names, err := propertyOrder(raw)
		if err != nil {
			return nil, err
		}
		requiredSet := make(map[string]bool, len(rs.RequiredKey))
		for _, r := range rs.RequiredKey {
			requiredSet[r] = true
		}
		for _, childName := range names {
			childPath := childName
			if path != "" {
				childPath = path + "." + childName
			}
			child, err := parseNode(rs.Properties[childName], childPath, childName, requiredSet[childName])
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		}
	case KindArray:
		if len(rs.Items) == 0 {
			return nil, fmt.Errorf("%w: array %q has no items schema", ErrInvalidSchema, path)
		}
		items, err := parseNode(rs.Items, path+"[]", name, false)
		if err != nil {
			return nil, err
		}
		node.Items = items
	}

	return node, nil
}

// parseType resolves the "type" keyword, which may be a string, a
// ["<type>","null"] list, or absent (original schemas default to string).
func parseType(t any, path string) (NodeKind, bool, error) {
	nullable := false
	name := ""
	switch v := t.(type) {
	case nil:
		name = "string"
	case string:
		name = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return 0, false, fmt.Errorf("%w: bad type list at %q", ErrInvalidSchema, path)
			}
			if s == "null" {
				nullable = true
				continue
			}
			if name != "" && name != s {
				return 0, false, fmt.Errorf("%w: multiple non-null types at %q", ErrInvalidSchema, path)
			}
			name = s
		}
		if name == "" {
			name = "string"
		}
	default:
		return 0, false, fmt.Errorf("%w: bad type at %q", ErrInvalidSchema, path)
	}

	switch name {
	case "string":
		return KindString, nullable, nil
	case "number":
		return KindNumber, nullable, nil
	case "integer":
		return KindInteger, nullable, nil
	case "boolean":
		return KindBoolean, nullable, nil
	case "object":
		return KindObject, nullable, nil
	case "array":
		return KindArray, nullable, nil
	}
	return 0, false, fmt.Errorf("%w: unsupported type %q at %q", ErrInvalidSchema, name, path)
}

// propertyOrder returns the property names of an object schema in
// declaration order. encoding/json maps lose ordering, and extraction and
// output must be deterministic, so the order is recovered from the tokens.
func propertyOrder(raw []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if tok != json.Delim('{') {
		return nil, fmt.Errorf("%w: schema node is not an object", ErrInvalidSchema)
	}

	var names []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
		key, _ := keyTok.(string)

		if key != "properties" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
			}
			continue
		}

		propTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
		if propTok != json.Delim('{') {
			return nil, fmt.Errorf("%w: properties is not an object", ErrInvalidSchema)
		}
		for dec.More() {
			nameTok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
			}
			name, _ := nameTok.(string)
			names = append(names, name)
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
			}
		}
		if _, err := dec.Token(); err != nil { // closing brace
			return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
		}
	}
	return names, nil
}

// SubSchema renders the JSON Schema fragment describing just this node,
// suitable for a constrained extraction request.
func SubSchema(n *SchemaNode) []byte {
	raw, _ := json.Marshal(subSchemaValue(n))
	return raw
}

func subSchemaValue(n *SchemaNode) map[string]any {
	out := make(map[string]any)
	if n.Nullable {
		out["type"] = []string{n.Kind.String(), "null"}
	} else {
		out["type"] = n.Kind.String()
	}
	if n.Description != "" {
		out["description"] = n.Description
	}
	if n.Format != "" {
		out["format"] = n.Format
	}
	if n.Pattern != "" {
		out["pattern"] = n.Pattern
	}
	if len(n.Enum) > 0 {
		out["enum"] = n.Enum
	}
	if n.Minimum != nil {
		out["minimum"] = *n.Minimum
	}
	if n.Maximum != nil {
		out["maximum"] = *n.Maximum
	}
	switch n.Kind {
	case KindObject:
		props := make(map[string]any, len(n.Children))
		var required []string
		for _, c := range n.Children {
			props[c.Name] = subSchemaValue(c)
			if c.Required {
				required = append(required, c.Name)
			}
		}
		out["properties"] = props
		if len(required) > 0 {
			out["required"] = required
		}
		out["additionalProperties"] = false
	case KindArray:
		out["items"] = subSchemaValue(n.Items)
	}
	return out
}

// NormalizePath erases concrete array indexes from an instance path,
// yielding the schema path: "addresses[2].street" -> "addresses[].street".
func NormalizePath(path string) string {
	var b strings.Builder
	b.Grow(len(path))
	inIndex := false
	for _, r := range path {
		switch {
		case r == '[':
			inIndex = true
			b.WriteRune(r)
		case r == ']':
			inIndex = false
			b.WriteRune(r)
		case inIndex:
			// drop the digits
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ResolvePath resolves a schema or instance path against the tree.
// Returns nil when the path names no node.
func ResolvePath(root *SchemaNode, path string) *SchemaNode {
	if path == "" {
		return root
	}
	node := root
	for _, seg := range strings.Split(NormalizePath(path), ".") {
		arrayHops := strings.Count(seg, "[]")
		name := strings.ReplaceAll(seg, "[]", "")
		if name == "" {
			return nil
		}
		node = node.Child(name)
		if node == nil {
			return nil
		}
		for i := 0; i < arrayHops; i++ {
			if node.Items == nil {
				return nil
			}
			node = node.Items
		}
	}
	return node
}

package extract

import (
	"strings"

	"github.com/scrivano/scrivano/core"
)

// Unit is one extraction request shape: a scalar leaf, a whole array, or
// a group of sibling scalar leaves extracted together as one object.
type Unit struct {
	// Node is the schema node being extracted. For grouped units it is
	// the synthetic object covering the grouped leaves.
	Node *core.SchemaNode

	// Leaves are the grouped sibling leaves. Empty for single-node units.
	Leaves []*core.SchemaNode
}

// Grouped reports whether the unit extracts several sibling leaves at once.
func (u Unit) Grouped() bool {
	return len(u.Leaves) > 0
}

// QueryNode returns the node whose description/path drives retrieval for
// this unit. Grouped units at the schema root have no usable path, so the
// leaf names become the query.
func (u Unit) QueryNode() *core.SchemaNode {
	if !u.Grouped() {
		return u.Node
	}
	if u.Node.Path != "" || u.Node.Description != "" {
		return u.Node
	}
	names := make([]string, len(u.Leaves))
	for i, leaf := range u.Leaves {
		names[i] = leaf.Name
	}
	return &core.SchemaNode{
		Path:        u.Node.Path,
		Kind:        core.KindObject,
		Description: strings.Join(names, " "),
	}
}

// Units derives the extraction units from a schema tree. Scalar leaves
// become one unit each; array nodes become one unit covering the whole
// array; objects recurse. With grouping enabled, sibling scalar leaves
// that carry no format, pattern or enum constraints are folded into a
// single object-shaped unit, halving round trips on flat schemas.
func Units(root *core.SchemaNode, grouping bool) []Unit {
	var units []Unit
	var walk func(n *core.SchemaNode)
	walk = func(n *core.SchemaNode) {
		switch n.Kind {
		case core.KindObject:
			grouped := make(map[string]bool)
			if grouping {
				var groupable []*core.SchemaNode
				for _, child := range n.Children {
					if isGroupable(child) {
						groupable = append(groupable, child)
					}
				}
				if len(groupable) > 1 {
					for _, leaf := range groupable {
						grouped[leaf.Path] = true
					}
					units = append(units, Unit{
						Node: &core.SchemaNode{
							Path:        n.Path,
							Name:        n.Name,
							Kind:        core.KindObject,
							Description: n.Description,
							Children:    groupable,
						},
						Leaves: groupable,
					})
				}
			}
			for _, child := range n.Children {
				if grouped[child.Path] {
					continue
				}
				walk(child)
			}
		case core.KindArray:
			units = append(units, Unit{Node: n})
		default:
			units = append(units, Unit{Node: n})
		}
	}
	walk(root)
	return units
}

// isGroupable reports whether a leaf can join a grouped request: scalar
// kind and no declared constraints, so a missing member is the only
// failure mode the group can hide.
func isGroupable(n *core.SchemaNode) bool {
	switch n.Kind {
	case core.KindString, core.KindNumber, core.KindInteger, core.KindBoolean:
	default:
		return false
	}
	return n.Format == "" && n.Pattern == "" && !n.IsEnum()
}

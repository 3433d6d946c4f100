// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

// Package dep implements the dependency specification language: a tree
// of nested groups, USE-conditional subtrees, and leaf values, together
// with the deduplicating DepSet container, its iteration strategies, and
// set operations.
package dep

import (
	"fmt"
	"strings"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/orderedset"
)

// Leaf constrains the payload types a dependency tree can carry: parsed
// package dependencies, plain tokens, or URIs.
type Leaf[T any] interface {
	Cmp(T) int
	fmt.Stringer
}

// Token is a plain-string leaf used by the license, properties,
// required-use, and restrict grammars.
type Token string

// Cmp lexicographically orders tokens.
func (t Token) Cmp(other Token) int { return strings.Compare(string(t), string(other)) }

// String implements fmt.Stringer.
func (t Token) String() string { return string(t) }

// Variant tags the dependency tree node kinds.
type Variant int

const (
	// Enabled is a bare leaf value.
	Enabled Variant = iota
	// Disabled is a negated leaf ("!flag", REQUIRED_USE only).
	Disabled
	// AllOf is a grouped conjunction: "( ... )".
	AllOf
	// AnyOf is "|| ( ... )".
	AnyOf
	// ExactlyOneOf is "^^ ( ... )" (REQUIRED_USE only).
	ExactlyOneOf
	// AtMostOneOf is "?? ( ... )" (REQUIRED_USE only).
	AtMostOneOf
	// Conditional is "flag? ( ... )" or "!flag? ( ... )".
	Conditional
)

// A Dependency is one node of a dependency tree.  Nodes are immutable
// after construction; the set operations build new trees.
type Dependency[T Leaf[T]] struct {
	variant  Variant
	leaf     T
	cond     *atom.UseDep
	children []*Dependency[T]
}

// NewEnabled returns a leaf node.
func NewEnabled[T Leaf[T]](val T) *Dependency[T] {
	return &Dependency[T]{variant: Enabled, leaf: val}
}

// NewDisabled returns a negated leaf node.
func NewDisabled[T Leaf[T]](val T) *Dependency[T] {
	return &Dependency[T]{variant: Disabled, leaf: val}
}

// NewAllOf returns a conjunction group.  Children are deduplicated and
// kept sorted.
func NewAllOf[T Leaf[T]](children ...*Dependency[T]) *Dependency[T] {
	return &Dependency[T]{variant: AllOf, children: sortedNodes(children)}
}

// NewAnyOf returns a "||" group.  Children are deduplicated, preserving
// insertion order.
func NewAnyOf[T Leaf[T]](children ...*Dependency[T]) *Dependency[T] {
	return &Dependency[T]{variant: AnyOf, children: orderedNodes(children)}
}

// NewExactlyOneOf returns a "^^" group.
func NewExactlyOneOf[T Leaf[T]](children ...*Dependency[T]) *Dependency[T] {
	return &Dependency[T]{variant: ExactlyOneOf, children: orderedNodes(children)}
}

// NewAtMostOneOf returns a "??" group.
func NewAtMostOneOf[T Leaf[T]](children ...*Dependency[T]) *Dependency[T] {
	return &Dependency[T]{variant: AtMostOneOf, children: orderedNodes(children)}
}

// NewConditional returns a USE-guarded subtree.  Children are
// deduplicated, preserving insertion order.
func NewConditional[T Leaf[T]](guard *atom.UseDep, children ...*Dependency[T]) *Dependency[T] {
	return &Dependency[T]{variant: Conditional, cond: guard, children: orderedNodes(children)}
}

func nodeCmp[T Leaf[T]](a, b *Dependency[T]) int { return a.Cmp(b) }

func orderedNodes[T Leaf[T]](nodes []*Dependency[T]) []*Dependency[T] {
	set := orderedset.NewOrderedSet(nodeCmp[T])
	set.InsertAll(nodes...)
	return set.Slice()
}

func sortedNodes[T Leaf[T]](nodes []*Dependency[T]) []*Dependency[T] {
	set := orderedset.NewSortedSet(nodeCmp[T])
	set.InsertAll(nodes...)
	return set.Slice()
}

// Variant returns the node kind.
func (d *Dependency[T]) Variant() Variant { return d.variant }

// Leaf returns the node's leaf value; only meaningful for Enabled and
// Disabled nodes.
func (d *Dependency[T]) Leaf() T { return d.leaf }

// Guard returns the conditional's USE guard, nil for other variants.
func (d *Dependency[T]) Guard() *atom.UseDep { return d.cond }

// Children returns the node's direct children in iteration order.  The
// returned slice is shared and must not be mutated.
func (d *Dependency[T]) Children() []*Dependency[T] { return d.children }

// IsEmpty reports whether the node contains no leaves.
func (d *Dependency[T]) IsEmpty() bool {
	switch d.variant {
	case Enabled, Disabled:
		return false
	default:
		for _, c := range d.children {
			if !c.IsEmpty() {
				return false
			}
		}
		return true
	}
}

// Cmp totally orders nodes: variant first, then leaf, guard, and
// children lexicographically.
func (d *Dependency[T]) Cmp(other *Dependency[T]) int {
	if c := int(d.variant) - int(other.variant); c != 0 {
		return c
	}
	switch d.variant {
	case Enabled, Disabled:
		return d.leaf.Cmp(other.leaf)
	case Conditional:
		if c := d.cond.Cmp(other.cond); c != 0 {
			return c
		}
	}
	for i := 0; i < len(d.children) && i < len(other.children); i++ {
		if c := d.children[i].Cmp(other.children[i]); c != 0 {
			return c
		}
	}
	return len(d.children) - len(other.children)
}

// String implements fmt.Stringer, composing the node's display form.
func (d *Dependency[T]) String() string {
	switch d.variant {
	case Enabled:
		return d.leaf.String()
	case Disabled:
		return "!" + d.leaf.String()
	case AllOf:
		return "( " + joinNodes(d.children) + " )"
	case AnyOf:
		return "|| ( " + joinNodes(d.children) + " )"
	case ExactlyOneOf:
		return "^^ ( " + joinNodes(d.children) + " )"
	case AtMostOneOf:
		return "?? ( " + joinNodes(d.children) + " )"
	case Conditional:
		return d.cond.String() + " ( " + joinNodes(d.children) + " )"
	default:
		panic(fmt.Sprintf("invalid Variant: %d", int(d.variant)))
	}
}

func joinNodes[T Leaf[T]](nodes []*Dependency[T]) string {
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		parts = append(parts, n.String())
	}
	return strings.Join(parts, " ")
}

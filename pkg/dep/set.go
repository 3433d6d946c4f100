// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package dep

import (
	"fmt"
	"sort"
	"strings"
)

// Kind names the grammar a DepSet was parsed with.
type Kind int

const (
	KindPackage Kind = iota
	KindSrcUri
	KindLicense
	KindProperties
	KindRequiredUse
	KindRestrict
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindPackage:
		return "package"
	case KindSrcUri:
		return "src-uri"
	case KindLicense:
		return "license"
	case KindProperties:
		return "properties"
	case KindRequiredUse:
		return "required-use"
	case KindRestrict:
		return "restrict"
	default:
		panic(fmt.Sprintf("invalid Kind: %d", int(k)))
	}
}

// A KindMismatchError reports a set operation between DepSets of
// different grammars.
type KindMismatchError struct {
	Left, Right Kind
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("mismatched dependency set kinds: %s vs %s", e.Left, e.Right)
}

// A DepSet is the deduplicating, insertion-ordered top-level container
// of dependency trees.
type DepSet[T Leaf[T]] struct {
	kind  Kind
	nodes []*Dependency[T]
}

// NewDepSet returns a set of the given grammar kind holding nodes, with
// duplicates dropped in insertion order; it is empty when no nodes are
// given.
func NewDepSet[T Leaf[T]](kind Kind, nodes ...*Dependency[T]) *DepSet[T] {
	return &DepSet[T]{kind: kind, nodes: orderedNodes(nodes)}
}

// Kind returns the grammar the set belongs to.
func (s *DepSet[T]) Kind() Kind { return s.kind }

// Len returns the number of top-level nodes.
func (s *DepSet[T]) Len() int { return len(s.nodes) }

// IsEmpty reports whether the set contains no leaves.
func (s *DepSet[T]) IsEmpty() bool {
	for _, n := range s.nodes {
		if !n.IsEmpty() {
			return false
		}
	}
	return true
}

// Nodes returns the top-level nodes in insertion order.  The returned
// slice is shared and must not be mutated.
func (s *DepSet[T]) Nodes() []*Dependency[T] { return s.nodes }

// Insert adds a top-level node unless an equal one is present,
// reporting whether the set changed.
func (s *DepSet[T]) Insert(node *Dependency[T]) bool {
	for _, n := range s.nodes {
		if n.Cmp(node) == 0 {
			return false
		}
	}
	s.nodes = append(s.nodes, node)
	return true
}

// Remove deletes the top-level node equal to node, reporting whether it
// was present.
func (s *DepSet[T]) Remove(node *Dependency[T]) bool {
	for i, n := range s.nodes {
		if n.Cmp(node) == 0 {
			s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether an equal top-level node is present.
func (s *DepSet[T]) Contains(node *Dependency[T]) bool {
	for _, n := range s.nodes {
		if n.Cmp(node) == 0 {
			return true
		}
	}
	return false
}

// Clone returns a shallow copy sharing the (immutable) nodes.
func (s *DepSet[T]) Clone() *DepSet[T] {
	return &DepSet[T]{kind: s.kind, nodes: append([]*Dependency[T]{}, s.nodes...)}
}

// Cmp orders sets by their sorted node sequences, making equality
// insensitive to top-level insertion order.
func (s *DepSet[T]) Cmp(other *DepSet[T]) int {
	a, b := sortedView(s.nodes), sortedView(other.nodes)
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := a[i].Cmp(b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

// Equal reports structural equality ignoring top-level insertion order.
func (s *DepSet[T]) Equal(other *DepSet[T]) bool {
	return s.kind == other.kind && s.Cmp(other) == 0
}

func sortedView[T Leaf[T]](nodes []*Dependency[T]) []*Dependency[T] {
	view := append([]*Dependency[T]{}, nodes...)
	sort.Slice(view, func(i, j int) bool { return view[i].Cmp(view[j]) < 0 })
	return view
}

// String implements fmt.Stringer, joining the top-level nodes with
// spaces.
func (s *DepSet[T]) String() string {
	parts := make([]string, 0, len(s.nodes))
	for _, n := range s.nodes {
		parts = append(parts, n.String())
	}
	return strings.Join(parts, " ")
}

func (s *DepSet[T]) checkKind(other *DepSet[T]) error {
	if s.kind != other.kind {
		return &KindMismatchError{Left: s.kind, Right: other.kind}
	}
	return nil
}

// Union returns a new set holding the nodes of s followed by the nodes
// of other not already present.
func (s *DepSet[T]) Union(other *DepSet[T]) (*DepSet[T], error) {
	if err := s.checkKind(other); err != nil {
		return nil, err
	}
	ret := s.Clone()
	for _, n := range other.nodes {
		ret.Insert(n)
	}
	return ret, nil
}

// Intersection returns a new set holding the nodes of s also present in
// other.
func (s *DepSet[T]) Intersection(other *DepSet[T]) (*DepSet[T], error) {
	if err := s.checkKind(other); err != nil {
		return nil, err
	}
	ret := NewDepSet[T](s.kind)
	for _, n := range s.nodes {
		if other.Contains(n) {
			ret.Insert(n)
		}
	}
	return ret, nil
}

// Difference returns a new set holding the nodes of s not present in
// other.
func (s *DepSet[T]) Difference(other *DepSet[T]) (*DepSet[T], error) {
	if err := s.checkKind(other); err != nil {
		return nil, err
	}
	ret := NewDepSet[T](s.kind)
	for _, n := range s.nodes {
		if !other.Contains(n) {
			ret.Insert(n)
		}
	}
	return ret, nil
}

// SymmetricDifference returns a new set holding the nodes present in
// exactly one of the two sets.
func (s *DepSet[T]) SymmetricDifference(other *DepSet[T]) (*DepSet[T], error) {
	if err := s.checkKind(other); err != nil {
		return nil, err
	}
	ret, err := s.Difference(other)
	if err != nil {
		return nil, err
	}
	for _, n := range other.nodes {
		if !s.Contains(n) {
			ret.Insert(n)
		}
	}
	return ret, nil
}

// UnionWith adds other's nodes in place.
func (s *DepSet[T]) UnionWith(other *DepSet[T]) error {
	if err := s.checkKind(other); err != nil {
		return err
	}
	for _, n := range other.nodes {
		s.Insert(n)
	}
	return nil
}

// IntersectionWith keeps only nodes also present in other.
func (s *DepSet[T]) IntersectionWith(other *DepSet[T]) error {
	if err := s.checkKind(other); err != nil {
		return err
	}
	kept := s.nodes[:0]
	for _, n := range s.nodes {
		if other.Contains(n) {
			kept = append(kept, n)
		}
	}
	s.nodes = kept
	return nil
}

// DifferenceWith removes other's nodes in place.
func (s *DepSet[T]) DifferenceWith(other *DepSet[T]) error {
	if err := s.checkKind(other); err != nil {
		return err
	}
	kept := s.nodes[:0]
	for _, n := range s.nodes {
		if !other.Contains(n) {
			kept = append(kept, n)
		}
	}
	s.nodes = kept
	return nil
}

// SymmetricDifferenceWith replaces the contents with the symmetric
// difference.
func (s *DepSet[T]) SymmetricDifferenceWith(other *DepSet[T]) error {
	ret, err := s.SymmetricDifference(other)
	if err != nil {
		return err
	}
	s.nodes = ret.nodes
	return nil
}

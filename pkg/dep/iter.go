// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package dep

import (
	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/orderedset"
)

// The iteration strategies below are distinct lazy sequence objects,
// each carrying its own explicit work deque.  Traversals never recurse
// into the host call stack beyond a single frame per node.

// An Iter walks the top-level nodes in insertion order.
type Iter[T Leaf[T]] struct {
	nodes   []*Dependency[T]
	i       int
	reverse bool
}

// Iter returns an iterator over the top-level nodes.
func (s *DepSet[T]) Iter() *Iter[T] {
	return &Iter[T]{nodes: s.nodes}
}

// IterReverse returns an iterator over the top-level nodes in reverse
// insertion order.
func (s *DepSet[T]) IterReverse() *Iter[T] {
	return &Iter[T]{nodes: s.nodes, reverse: true}
}

// Next returns the next node, or nil when exhausted.
func (it *Iter[T]) Next() *Dependency[T] {
	if it.i >= len(it.nodes) {
		return nil
	}
	var node *Dependency[T]
	if it.reverse {
		node = it.nodes[len(it.nodes)-1-it.i]
	} else {
		node = it.nodes[it.i]
	}
	it.i++
	return node
}

// A FlattenIter performs a depth-first in-order traversal emitting leaf
// values.
type FlattenIter[T Leaf[T]] struct {
	q       orderedset.Deque[*Dependency[T]]
	reverse bool
}

// IterFlatten returns a leaf-value iterator over the whole set.
func (s *DepSet[T]) IterFlatten() *FlattenIter[T] {
	it := &FlattenIter[T]{}
	it.q.ExtendRight(s.nodes)
	return it
}

// IterFlattenReverse returns a leaf-value iterator walking the tree in
// reverse order.
func (s *DepSet[T]) IterFlattenReverse() *FlattenIter[T] {
	it := &FlattenIter[T]{reverse: true}
	it.q.ExtendRight(s.nodes)
	return it
}

// IterFlatten returns a leaf-value iterator over a single tree.
func (d *Dependency[T]) IterFlatten() *FlattenIter[T] {
	it := &FlattenIter[T]{}
	it.q.PushBack(d)
	return it
}

// Next returns the next leaf value, or (zero, false) when exhausted.
func (it *FlattenIter[T]) Next() (T, bool) {
	var zero T
	for {
		var node *Dependency[T]
		var ok bool
		if it.reverse {
			node, ok = it.q.PopBack()
		} else {
			node, ok = it.q.PopFront()
		}
		if !ok {
			return zero, false
		}
		switch node.variant {
		case Enabled, Disabled:
			return node.leaf, true
		default:
			if it.reverse {
				it.q.ExtendRight(node.children)
			} else {
				it.q.ExtendLeft(node.children)
			}
		}
	}
}

// A RecursiveIter performs a pre-order traversal emitting every node,
// groups and conditionals included.
type RecursiveIter[T Leaf[T]] struct {
	q orderedset.Deque[*Dependency[T]]
}

// IterRecursive returns a node iterator over the whole set.
func (s *DepSet[T]) IterRecursive() *RecursiveIter[T] {
	it := &RecursiveIter[T]{}
	it.q.ExtendRight(s.nodes)
	return it
}

// IterRecursive returns a node iterator over a single tree.
func (d *Dependency[T]) IterRecursive() *RecursiveIter[T] {
	it := &RecursiveIter[T]{}
	it.q.PushBack(d)
	return it
}

// Next returns the next node, or nil when exhausted.
func (it *RecursiveIter[T]) Next() *Dependency[T] {
	node, ok := it.q.PopFront()
	if !ok {
		return nil
	}
	switch node.variant {
	case Enabled, Disabled:
	default:
		it.q.ExtendLeft(node.children)
	}
	return node
}

// A ConditionalsIter yields the USE guards encountered during a
// pre-order traversal.
type ConditionalsIter[T Leaf[T]] struct {
	inner RecursiveIter[T]
}

// IterConditionals returns a guard iterator over the whole set.
func (s *DepSet[T]) IterConditionals() *ConditionalsIter[T] {
	it := &ConditionalsIter[T]{}
	it.inner.q.ExtendRight(s.nodes)
	return it
}

// Next returns the next guard, or nil when exhausted.
func (it *ConditionalsIter[T]) Next() *atom.UseDep {
	for {
		node := it.inner.Next()
		if node == nil {
			return nil
		}
		if node.variant == Conditional {
			return node.cond
		}
	}
}

// A GuardedLeaf pairs a leaf value with the stack of USE guards in
// effect where it appeared.
type GuardedLeaf[T Leaf[T]] struct {
	Leaf   T
	Guards []*atom.UseDep
}

type guardedNode[T Leaf[T]] struct {
	node   *Dependency[T]
	guards []*atom.UseDep
}

// A ConditionalFlattenIter is IterFlatten paired with guard stacks.
type ConditionalFlattenIter[T Leaf[T]] struct {
	q orderedset.Deque[guardedNode[T]]
}

// IterConditionalFlatten returns a guard-tracking leaf iterator over the
// whole set.
func (s *DepSet[T]) IterConditionalFlatten() *ConditionalFlattenIter[T] {
	it := &ConditionalFlattenIter[T]{}
	for _, n := range s.nodes {
		it.q.PushBack(guardedNode[T]{node: n})
	}
	return it
}

// Next returns the next leaf with its guard stack, or (zero, false)
// when exhausted.
func (it *ConditionalFlattenIter[T]) Next() (GuardedLeaf[T], bool) {
	for {
		entry, ok := it.q.PopFront()
		if !ok {
			return GuardedLeaf[T]{}, false
		}
		node := entry.node
		switch node.variant {
		case Enabled, Disabled:
			return GuardedLeaf[T]{Leaf: node.leaf, Guards: entry.guards}, true
		case Conditional:
			guards := append(append([]*atom.UseDep{}, entry.guards...), node.cond)
			next := make([]guardedNode[T], 0, len(node.children))
			for _, c := range node.children {
				next = append(next, guardedNode[T]{node: c, guards: guards})
			}
			it.q.ExtendLeft(next)
		default:
			next := make([]guardedNode[T], 0, len(node.children))
			for _, c := range node.children {
				next = append(next, guardedNode[T]{node: c, guards: entry.guards})
			}
			it.q.ExtendLeft(next)
		}
	}
}

// Evaluate reduces the set against a set of enabled USE flags: satisfied
// conditionals are inlined, unsatisfied ones are dropped, and groups
// left empty disappear.  Evaluation is idempotent.
func (s *DepSet[T]) Evaluate(options map[string]bool) *DepSet[T] {
	satisfied := func(guard *atom.UseDep) bool {
		if guard.Enabled {
			return options[guard.Flag]
		}
		return !options[guard.Flag]
	}
	return &DepSet[T]{kind: s.kind, nodes: evaluateNodes(s.nodes, satisfied)}
}

// EvaluateForce reduces the set to its upper bound (force true: every
// conditional subtree is inlined) or lower bound (force false: every
// conditional is dropped).
func (s *DepSet[T]) EvaluateForce(force bool) *DepSet[T] {
	satisfied := func(*atom.UseDep) bool { return force }
	return &DepSet[T]{kind: s.kind, nodes: evaluateNodes(s.nodes, satisfied)}
}

// evaluateNodes resolves conditionals in a node list.  Inlined subtrees
// splice into the parent at the conditional's position; the recursion is
// bounded by the tree's nesting depth.
func evaluateNodes[T Leaf[T]](nodes []*Dependency[T], satisfied func(*atom.UseDep) bool) []*Dependency[T] {
	var ret []*Dependency[T]
	var q orderedset.Deque[*Dependency[T]]
	q.ExtendRight(nodes)
	for {
		node, ok := q.PopFront()
		if !ok {
			break
		}
		switch node.variant {
		case Enabled, Disabled:
			ret = append(ret, node)
		case Conditional:
			if satisfied(node.cond) {
				q.ExtendLeft(node.children)
			}
		case AllOf:
			children := evaluateNodes(node.children, satisfied)
			if group := (&Dependency[T]{variant: AllOf, children: sortedNodes(children)}); !group.IsEmpty() {
				ret = append(ret, group)
			}
		default:
			children := evaluateNodes(node.children, satisfied)
			if group := (&Dependency[T]{variant: node.variant, children: orderedNodes(children)}); !group.IsEmpty() {
				ret = append(ret, group)
			}
		}
	}
	return orderedNodes(ret)
}

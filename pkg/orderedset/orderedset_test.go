// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package orderedset_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ebuildkit/ebuildkit/pkg/orderedset"
)

func newOrdered(vals ...string) *orderedset.OrderedSet[string] {
	s := orderedset.NewOrderedSet[string](strings.Compare)
	s.InsertAll(vals...)
	return s
}

func newSorted(vals ...string) *orderedset.SortedSet[string] {
	s := orderedset.NewSortedSet[string](strings.Compare)
	s.InsertAll(vals...)
	return s
}

func TestOrderedSet(t *testing.T) {
	t.Parallel()

	s := newOrdered("b", "a", "b", "c")
	assert.Equal(t, []string{"b", "a", "c"}, s.Slice(), "insertion order, deduplicated")
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("x"))

	assert.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"))
	assert.Equal(t, []string{"b", "c"}, s.Slice())

	var nilSet *orderedset.OrderedSet[string]
	assert.Zero(t, nilSet.Len())
}

func TestOrderedSetOps(t *testing.T) {
	t.Parallel()

	a := newOrdered("a", "b", "c")
	b := newOrdered("b", "d")

	assert.Equal(t, []string{"a", "b", "c", "d"}, a.Union(b).Slice())
	assert.Equal(t, []string{"b"}, a.Intersection(b).Slice())
	assert.Equal(t, []string{"a", "c"}, a.Difference(b).Slice())
	assert.Equal(t, []string{"a", "c", "d"}, a.SymmetricDifference(b).Slice())

	// operands are untouched
	assert.Equal(t, []string{"a", "b", "c"}, a.Slice())
	assert.Equal(t, []string{"b", "d"}, b.Slice())
}

func TestSortedSet(t *testing.T) {
	t.Parallel()

	s := newSorted("c", "a", "b", "a")
	assert.Equal(t, []string{"a", "b", "c"}, s.Slice())
	assert.True(t, s.Contains("b"))
	assert.True(t, s.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, s.Slice())

	assert.Zero(t, newSorted("a", "b").Cmp(newSorted("b", "a")))
	assert.Negative(t, newSorted("a").Cmp(newSorted("b")))
	assert.Negative(t, newSorted("a").Cmp(newSorted("a", "b")))
}

func TestDeque(t *testing.T) {
	t.Parallel()

	var d orderedset.Deque[int]
	d.PushBack(2)
	d.PushFront(1)
	d.ExtendLeft([]int{-1, 0})
	d.ExtendRight([]int{3, 4})

	var got []int
	for {
		v, ok := d.PopFront()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{-1, 0, 1, 2, 3, 4}, got)

	d.PushBack(9)
	v, ok := d.PopBack()
	assert.True(t, ok)
	assert.Equal(t, 9, v)
	_, ok = d.PopBack()
	assert.False(t, ok)
}

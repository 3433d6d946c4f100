// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package atom_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
)

func TestParseVersion(t *testing.T) {
	t.Parallel()

	valid := []string{
		"1",
		"1.0",
		"1.0.2",
		"1.000.2",
		"2012.10",
		"1a",
		"1.2b",
		"1_alpha",
		"1_alpha1",
		"1_beta2_p3",
		"1.2.3_pre4_rc5_p6",
		"1-r0",
		"1-r2",
		"1.2a_alpha1-r3",
	}
	for _, s := range valid {
		s := s
		t.Run(s, func(t *testing.T) {
			t.Parallel()
			v, err := atom.ParseVersion(s)
			require.NoError(t, err)
			assert.Equal(t, s, v.String())
		})
	}

	invalid := []string{
		"",
		"a",
		".1",
		"1.",
		"1..2",
		"1ab",
		"1a1",
		"1_foo",
		"1_alpha_",
		"1-r",
		"1-rX",
		"1-r1-r2",
		"-1",
		"1 2",
		"18446744073709551616", // uint64 max plus one
		"1-r18446744073709551616",
	}
	for _, s := range invalid {
		s := s
		t.Run("invalid/"+s, func(t *testing.T) {
			t.Parallel()
			_, err := atom.ParseVersion(s)
			assert.Error(t, err, "%q parsed", s)
		})
	}
}

func TestParseVersionWithOp(t *testing.T) {
	t.Parallel()

	cases := map[string]atom.Operator{
		"<1":    atom.OpLess,
		"<=1":   atom.OpLessOrEqual,
		"=1":    atom.OpEqual,
		"=1*":   atom.OpEqualGlob,
		"~1":    atom.OpApproximate,
		">=1":   atom.OpGreaterOrEqual,
		">1":    atom.OpGreater,
		"1.2.3": atom.OpNone,
	}
	for s, op := range cases {
		s, op := s, op
		t.Run(s, func(t *testing.T) {
			t.Parallel()
			v, err := atom.ParseVersionWithOp(s)
			require.NoError(t, err)
			assert.Equal(t, op, v.Op())
			assert.Equal(t, s, v.String())
		})
	}

	// a glob requires "=", and "~" can't carry a revision
	for _, s := range []string{"<1*", ">=1*", "~1-r1", "1*"} {
		_, err := atom.ParseVersionWithOp(s)
		assert.Error(t, err, "%q parsed", s)
	}
}

func TestVersionCmp(t *testing.T) {
	t.Parallel()

	// each case reads "a OP b"
	cases := []struct {
		a, op, b string
	}{
		{"1.0.2", "==", "1.000.2"},
		{"1.0.2", "==", "1.00.2-r0"},
		{"1.000.2", "==", "1.00.2-r0"},
		{"0", "==", "0-r0"},
		{"1", "<", "2"},
		{"1.01", "<", "1.1"}, // leading zero compares as string
		{"1.1", "<", "1.10"},
		{"1.2", "<", "1.10"},
		{"1", "<", "1a"},
		{"1a", "<", "1b"},
		{"1_alpha", "<", "1_beta"},
		{"1_beta", "<", "1_pre"},
		{"1_pre", "<", "1_rc"},
		{"1_rc", "<", "1"},
		{"1", "<", "1_p1"},
		{"1_alpha", "<", "1_alpha1"},
		{"1_alpha1", "<", "1_alpha2"},
		{"1_alpha1_p2", ">", "1_alpha1"}, // trailing _p dominates upward
		{"1_alpha1_beta", "<", "1_alpha1"},
		{"1", "<", "1-r1"},
		{"1-r1", "<", "1-r2"},
		{"1.2.3", ">", "1.2"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.a+tc.op+tc.b, func(t *testing.T) {
			t.Parallel()
			a, err := atom.ParseVersion(tc.a)
			require.NoError(t, err)
			b, err := atom.ParseVersion(tc.b)
			require.NoError(t, err)
			switch tc.op {
			case "==":
				assert.Zero(t, a.Cmp(b))
				assert.Zero(t, b.Cmp(a))
				assert.Equal(t, a.Hash(), b.Hash(), "equal versions must hash equal")
			case "<":
				assert.Negative(t, a.Cmp(b))
				assert.Positive(t, b.Cmp(a))
			case ">":
				assert.Positive(t, a.Cmp(b))
				assert.Negative(t, b.Cmp(a))
			}
		})
	}
}

func TestVersionSorting(t *testing.T) {
	t.Parallel()

	sorted := []string{
		"1_alpha",
		"1_beta",
		"1_rc1",
		"1",
		"1-r1",
		"1_p1",
		"1.0",
		"1.0.1",
		"1.1",
		"2",
		"10",
	}
	shuffled := append([]string{}, sorted...)
	for i, j := range []int{5, 3, 9, 0, 7, 1, 10, 2, 8, 4, 6} {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	vers := make([]*atom.Version, 0, len(shuffled))
	for _, s := range shuffled {
		v, err := atom.ParseVersion(s)
		require.NoError(t, err)
		vers = append(vers, v)
	}
	sort.Slice(vers, func(i, j int) bool { return vers[i].Cmp(vers[j]) < 0 })

	got := make([]string, 0, len(vers))
	for _, v := range vers {
		got = append(got, v.String())
	}
	assert.Equal(t, sorted, got)
}

func TestVersionRoundTrip(t *testing.T) {
	t.Parallel()

	// re-parsing the canonical form yields an equal, hash-equal version
	for _, s := range []string{"1", "1.0.2", "1.00.2-r0", "=1.2*", "~1_alpha3", ">=2.4.6-r7"} {
		v1, err := atom.ParseVersionWithOp(s)
		require.NoError(t, err)
		v2, err := atom.ParseVersionWithOp(v1.String())
		require.NoError(t, err)
		assert.Zero(t, v1.Cmp(v2), "%s", s)
		assert.Equal(t, v1.Hash(), v2.Hash(), "%s", s)
	}
}

func TestVersionIntersects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b   string
		status bool
	}{
		// same-direction unbounded ranges always overlap
		{"<1", "<2", true},
		{"<=1", "<1", true},
		{">1", ">=2", true},
		// opposite directions need a common point
		{">1", "<2", true},
		{">=1", "<=1", true},
		{">1", "<1", false},
		{">2", "<1", false},
		// plain equality
		{"1", "1.0", false},
		{"1.0.2", "1.000.2", true},
		// approximate ignores revisions on its side
		{"~1", "=1-r1", true},
		{"~1", "=1-r5", true},
		{"~1", "1-r2", true},
		{"~1", "~1", true},
		{"~1", "~2", false},
		{"1_alpha", "~1", false},
		// glob prefix matching
		{"=1*", "1.0.1", true},
		{"=1*", "=1.2.3*", true},
		{"=1.2*", "=1*", true},
		{"=1*", "2", false},
		{"=1.2*", "~1.2", true},
		// ranged vs glob: below the prefix only at revision 0
		{"<1-r1", "=1*", true},
		{"<1", "=1-r1*", false},
		{">1", "=1*", true},
		// ranged vs approximate through higher revisions
		{">1-r1", "~1", true},
		{"<1-r1", "~1", true},
		{"<1", "~1", false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.a+" vs "+tc.b, func(t *testing.T) {
			t.Parallel()
			a, err := atom.ParseVersionWithOp(tc.a)
			require.NoError(t, err)
			b, err := atom.ParseVersionWithOp(tc.b)
			require.NoError(t, err)

			// intersection is reflexive and symmetric
			assert.True(t, a.Intersects(a))
			assert.True(t, b.Intersects(b))
			assert.Equal(t, tc.status, a.Intersects(b))
			assert.Equal(t, tc.status, b.Intersects(a))
		})
	}
}

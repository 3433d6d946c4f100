// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package eapi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebuildkit/ebuildkit/pkg/eapi"
)

func TestParse(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"0", "1", "2", "3", "4", "5", "6", "7", "8"} {
		e, err := eapi.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, id, e.Id())
	}

	for _, id := range []string{"", "9999", "unknown", "ebuildkit"} {
		_, err := eapi.Parse(id)
		assert.Error(t, err, "%q resolved", id)
		var unsupported *eapi.UnsupportedError
		assert.ErrorAs(t, err, &unsupported)
	}
}

func TestOrdering(t *testing.T) {
	t.Parallel()

	all := eapi.All()
	require.NotEmpty(t, all)
	for i := 1; i < len(all); i++ {
		assert.Negative(t, all[i-1].Cmp(all[i]))
	}
	assert.Equal(t, "8", eapi.Latest().Id())
}

func TestFeatures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		id      string
		feature eapi.Feature
		has     bool
	}{
		{"0", eapi.Blockers, true},
		{"0", eapi.SlotDeps, false},
		{"1", eapi.SlotDeps, true},
		{"2", eapi.SrcUriRenames, true},
		{"3", eapi.UseDeps, false},
		{"4", eapi.UseDeps, true},
		{"4", eapi.RequiredUseOneOf, false},
		{"5", eapi.RequiredUseOneOf, true},
		{"8", eapi.RepoIds, false},
	}
	for _, tc := range cases {
		e, err := eapi.Parse(tc.id)
		require.NoError(t, err)
		assert.Equal(t, tc.has, e.Has(tc.feature), "EAPI %s / %s", tc.id, tc.feature)
	}

	assert.True(t, eapi.Extended().Has(eapi.RepoIds))
}

func TestDependencyKeys(t *testing.T) {
	t.Parallel()

	eapi6, err := eapi.Parse("6")
	require.NoError(t, err)
	assert.NotContains(t, eapi6.DependencyKeys(), "BDEPEND")

	eapi7, err := eapi.Parse("7")
	require.NoError(t, err)
	assert.Contains(t, eapi7.DependencyKeys(), "BDEPEND")

	eapi8, err := eapi.Parse("8")
	require.NoError(t, err)
	assert.Contains(t, eapi8.DependencyKeys(), "IDEPEND")
}

func TestRange(t *testing.T) {
	t.Parallel()

	ids := func(es []*eapi.Eapi) []string {
		var ret []string
		for _, e := range es {
			ret = append(ret, e.Id())
		}
		return ret
	}

	cases := map[string][]string{
		"..2":   {"0", "1"},
		"..=2":  {"0", "1", "2"},
		"7..":   {"7", "8"},
		"5..=8": {"5", "6", "7", "8"},
		"5..8":  {"5", "6", "7"},
	}
	for expr, expected := range cases {
		got, err := eapi.Range(expr)
		require.NoError(t, err, "%q", expr)
		assert.Equal(t, expected, ids(got), "%q", expr)
	}

	for _, expr := range []string{"", "5", "8..5", "x..y", "..="} {
		_, err := eapi.Range(expr)
		assert.Error(t, err, "%q resolved", expr)
	}
}

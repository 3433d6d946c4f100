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
	"github.com/ebuildkit/ebuildkit/pkg/eapi"
)

func TestParseDepRoundTrip(t *testing.T) {
	t.Parallel()

	// the canonical display reconstructs the input exactly
	for _, s := range []string{
		"cat/pkg",
		"<cat/pkg-4",
		"<=cat/pkg-4-r1",
		"=cat/pkg-4-r0",
		"=cat/pkg-4-r01",
		"=cat/pkg-4*",
		"~cat/pkg-4",
		">=cat/pkg-r1-2-r3",
		">cat/pkg-4-r1:0=",
		">cat/pkg-4-r1:0/2=[use]",
		">cat/pkg-4-r1:0/2=[use]::repo",
		"!cat/pkg",
		"!!<cat/pkg-4",
		"cat/pkg:=",
		"cat/pkg:*",
		"cat/pkg[a,b,c]",
		"cat/pkg[-a,b(+),!c?]",
	} {
		s := s
		t.Run(s, func(t *testing.T) {
			t.Parallel()
			d, err := atom.ParseDepAny(s)
			require.NoError(t, err)
			assert.Equal(t, s, d.String())
		})
	}

	// USE tokens normalize into sorted, deduplicated order
	for s, expected := range map[string]string{
		"cat/pkg[u,u]": "cat/pkg[u]",
		"cat/pkg[b,a]": "cat/pkg[a,b]",
	} {
		d, err := atom.ParseDepAny(s)
		require.NoError(t, err)
		assert.Equal(t, expected, d.String())
	}
}

func TestParseDepFields(t *testing.T) {
	t.Parallel()

	d, err := atom.ParseDepAny("=cat/pkg-1-r2:3/4=[a,b,c]::repo")
	require.NoError(t, err)
	assert.Equal(t, "cat", d.Category())
	assert.Equal(t, "pkg", d.Package())
	assert.Equal(t, atom.OpEqual, d.Op())
	assert.Equal(t, "1-r2", d.Version().Text())
	assert.Equal(t, "3", d.Slot())
	assert.Equal(t, "4", d.Subslot())
	assert.Equal(t, atom.SlotOpEqual, d.SlotOp())
	assert.Equal(t, "repo", d.Repo())
	toks := make([]string, 0, 3)
	for _, u := range d.UseDeps() {
		toks = append(toks, u.String())
	}
	assert.Equal(t, []string{"a", "b", "c"}, toks)
	assert.Equal(t, "=cat/pkg-1-r2:3/4=[a,b,c]::repo", d.String())

	assert.Equal(t, "cat/pkg", d.CpnString())
	assert.Equal(t, "cat/pkg-1-r2", d.CpvString())
	assert.Equal(t, "pkg-1", d.P())
	assert.Equal(t, "pkg-1-r2", d.PF())
	assert.Equal(t, "r2", d.PR())
	assert.Equal(t, "1", d.PV())
	assert.Equal(t, "1-r2", d.PVR())
}

func TestParseDepInvalid(t *testing.T) {
	t.Parallel()

	for _, s := range []string{
		"",
		"cat",
		"cat/",
		"/pkg",
		"cat/pkg-1",   // version without operator
		"=cat/pkg",    // operator without version
		"~cat/pkg-1-r2",
		"cat/pkg[]",
		"cat/pkg[a",
		"cat/pkg:",
		"cat/pkg::",
		"=cat/pkg-1:0extra junk",
	} {
		_, err := atom.ParseDepAny(s)
		assert.Error(t, err, "%q parsed", s)
	}
}

func TestParseDepEapiGating(t *testing.T) {
	t.Parallel()

	eapi0, err := eapi.Parse("0")
	require.NoError(t, err)
	eapi8, err := eapi.Parse("8")
	require.NoError(t, err)

	cases := map[string]struct {
		eapi *eapi.Eapi
		ok   bool
	}{
		"cat/pkg:1":        {eapi0, false},
		"cat/pkg[use]":     {eapi0, false},
		"!!cat/pkg":        {eapi0, false},
		"cat/pkg::repo":    {eapi8, false}, // repo deps are an extension
		"cat/pkg:1/2=":     {eapi8, true},
		"cat/pkg[use(+)?]": {eapi8, true},
	}
	for s, tc := range cases {
		s, tc := s, tc
		t.Run(s, func(t *testing.T) {
			t.Parallel()
			_, err := atom.ParseDep(s, tc.eapi)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				var unsupported *eapi.UnsupportedError
				assert.ErrorAs(t, err, &unsupported)
			}
		})
	}

	// the extension parses under the extended EAPI
	_, err = atom.ParseDepAny("cat/pkg::repo")
	assert.NoError(t, err)
}

func TestDepIntersects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b   string
		status bool
	}{
		{"cat/pkg", "cat/pkg", true},
		{"cat/pkg", "cat/other", false},
		{"cat/pkg", "other/pkg", false},
		{"cat/pkg:1", "cat/pkg:2", false},
		{"cat/pkg:1", "cat/pkg", true},
		{"cat/pkg:1/2", "cat/pkg:1/3", false},
		{"cat/pkg::a", "cat/pkg::b", false},
		{"cat/pkg[a]", "cat/pkg[-a]", false},
		{"cat/pkg[a,b]", "cat/pkg[b]", true},
		{"=cat/pkg-1", "cat/pkg", true},
		{"=cat/pkg-1", ">cat/pkg-2", false},
		{">=cat/pkg-1", "<cat/pkg-2", true},
		{"!cat/pkg", "cat/pkg", true}, // blockers are ignored
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.a+" vs "+tc.b, func(t *testing.T) {
			t.Parallel()
			a, err := atom.ParseDepAny(tc.a)
			require.NoError(t, err)
			b, err := atom.ParseDepAny(tc.b)
			require.NoError(t, err)
			assert.Equal(t, tc.status, a.Intersects(b))
			assert.Equal(t, tc.status, b.Intersects(a))
		})
	}
}

func TestDepIntersectsCpv(t *testing.T) {
	t.Parallel()

	cpv, err := atom.ParseCpv("cat/pkg-1.0.1")
	require.NoError(t, err)

	for s, status := range map[string]bool{
		"cat/pkg":        true,
		"=cat/pkg-1*":    true,
		"=cat/pkg-1.0.1": true,
		">cat/pkg-2":     false,
		"cat/other":      false,
	} {
		d, err := atom.ParseDepAny(s)
		require.NoError(t, err)
		assert.Equal(t, status, d.IntersectsCpv(cpv), "%s", s)
	}
}

func TestDepOrderingAndHash(t *testing.T) {
	t.Parallel()

	sorted := []string{
		"cat/pkg",
		"=cat/pkg-1",
		"=cat/pkg-2",
		"cat/zzz",
		"other/pkg",
	}
	shuffled := []string{"other/pkg", "=cat/pkg-2", "cat/pkg", "cat/zzz", "=cat/pkg-1"}

	deps := make([]*atom.Dep, 0, len(shuffled))
	for _, s := range shuffled {
		d, err := atom.ParseDepAny(s)
		require.NoError(t, err)
		deps = append(deps, d)
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Cmp(deps[j]) < 0 })
	got := make([]string, 0, len(deps))
	for _, d := range deps {
		got = append(got, d.String())
	}
	assert.Equal(t, sorted, got)

	// versions that compare equal make their deps hash equal
	a, err := atom.ParseDepAny("=cat/pkg-1.0.2")
	require.NoError(t, err)
	b, err := atom.ParseDepAny("=cat/pkg-1.000.2")
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
}

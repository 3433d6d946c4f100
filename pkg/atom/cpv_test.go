// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package atom_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
)

func TestParseCpn(t *testing.T) {
	t.Parallel()

	cpn, err := atom.ParseCpn("cat/pkg")
	require.NoError(t, err)
	assert.Equal(t, "cat", cpn.Category)
	assert.Equal(t, "pkg", cpn.Package)
	assert.Equal(t, "cat/pkg", cpn.String())

	for _, s := range []string{"", "cat", "cat/", "/pkg", "cat/pkg-1", "cat/pkg junk"} {
		_, err := atom.ParseCpn(s)
		assert.Error(t, err, "%q parsed", s)
	}
}

func TestParseCpv(t *testing.T) {
	t.Parallel()

	cpv, err := atom.ParseCpv("cat/pkg-1.2.3-r4")
	require.NoError(t, err)
	assert.Equal(t, "cat", cpv.Category)
	assert.Equal(t, "pkg", cpv.Package)
	assert.Equal(t, "1.2.3-r4", cpv.Version.Text())
	assert.Equal(t, "cat/pkg-1.2.3-r4", cpv.String())
	assert.Equal(t, "pkg-1.2.3", cpv.P())
	assert.Equal(t, "pkg-1.2.3-r4", cpv.PF())
	assert.Equal(t, "r4", cpv.PR())
	assert.Equal(t, "1.2.3", cpv.PV())
	assert.Equal(t, "1.2.3-r4", cpv.PVR())
	assert.Equal(t, "cat/pkg", cpv.Cpn().String())

	// hyphenated package names keep their interior segments
	cpv, err = atom.ParseCpv("cat/pkg-r1-2-r3")
	require.NoError(t, err)
	assert.Equal(t, "pkg-r1", cpv.Package)
	assert.Equal(t, "2-r3", cpv.Version.Text())

	for _, s := range []string{"", "cat/pkg", "cat/pkg-", "pkg-1"} {
		_, err := atom.ParseCpv(s)
		assert.Error(t, err, "%q parsed", s)
	}
}

func TestCpvOrderingAndHash(t *testing.T) {
	t.Parallel()

	a, err := atom.ParseCpv("cat/pkg-1.0.2")
	require.NoError(t, err)
	b, err := atom.ParseCpv("cat/pkg-1.000.2")
	require.NoError(t, err)
	c, err := atom.ParseCpv("cat/pkg-2")
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Negative(t, a.Cmp(c))
	assert.Positive(t, c.Cmp(b))
}

func TestRestrict(t *testing.T) {
	t.Parallel()

	cpv, err := atom.ParseCpv("cat/pkg-1.0.1")
	require.NoError(t, err)

	cases := map[string]bool{
		"cat/pkg":      true,
		"cat/*":        true,
		"*/pkg":        true,
		"c*t/p*":       true,
		"cat*/*":       true,
		"=cat/pkg-1*":  true,
		">=cat/pkg-1":  true,
		"<cat/pkg-1":   false,
		"cat/other":    false,
		"other*/*":     false,
		"pkg":          true, // bare name restricts the package slot
		"nope":         false,
	}
	for s, status := range cases {
		s, status := s, status
		t.Run(s, func(t *testing.T) {
			t.Parallel()
			r, err := atom.ParseRestrict(s)
			require.NoError(t, err)
			assert.Equal(t, status, r.Matches(cpv))
		})
	}
}

func TestRestrictScopes(t *testing.T) {
	t.Parallel()

	r, err := atom.ParseRestrict("cat/pkg")
	require.NoError(t, err)
	cat, ok := r.CategoryExact()
	assert.True(t, ok)
	assert.Equal(t, "cat", cat)
	pkg, ok := r.PackageExact()
	assert.True(t, ok)
	assert.Equal(t, "pkg", pkg)
	assert.False(t, r.Versioned())

	r, err = atom.ParseRestrict("cat*/*")
	require.NoError(t, err)
	_, ok = r.CategoryExact()
	assert.False(t, ok)

	r, err = atom.ParseRestrict("=cat/pkg-1.2*")
	require.NoError(t, err)
	assert.True(t, r.Versioned())
}

func TestRestrictFromDepSelfMatch(t *testing.T) {
	t.Parallel()

	// every atom's restriction matches the atom itself
	for _, s := range []string{
		"cat/pkg",
		"=cat/pkg-1-r2",
		">=cat/pkg-2:3[use]",
		"~cat/pkg-4",
	} {
		d, err := atom.ParseDepAny(s)
		require.NoError(t, err)
		r := atom.RestrictFromDep(d)
		assert.True(t, r.MatchesDep(d), "%s", s)
	}

	// and its Cpv re-parses to something the atom intersects
	d, err := atom.ParseDepAny("=cat/pkg-1-r2")
	require.NoError(t, err)
	cpv, err := atom.ParseCpv(d.CpvString())
	require.NoError(t, err)
	assert.True(t, d.IntersectsCpv(cpv))
}

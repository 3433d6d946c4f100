// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package ignore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/ignore"
	"github.com/ebuildkit/ebuildkit/pkg/report"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
	"github.com/ebuildkit/ebuildkit/pkg/testutil"
)

func buildRepo(t *testing.T) (*testutil.RepoBuilder, *repo.Repo) {
	t.Helper()
	b := testutil.NewRepo(t, "testrepo")
	r, err := repo.Open(b.Root())
	require.NoError(t, err)
	return b, r
}

func versionReport(t *testing.T, kind report.Kind, cpvStr string) *report.Report {
	t.Helper()
	cpv, err := atom.ParseCpv(cpvStr)
	require.NoError(t, err)
	return report.New(kind, report.VersionScope("testrepo", cpv), "msg")
}

func TestEbuildHeadDirectives(t *testing.T) {
	t.Parallel()

	b, _ := buildRepo(t)
	b.Ebuild("cat", "pkg", "1", `
		# Copyright
		# ebuildkit-ignore: DependencyDeprecated, KeywordsUnsorted
		EAPI=8
		SLOT="0"
		# ebuildkit-ignore: LicenseInvalid
	`)
	r, err := repo.Open(b.Root())
	require.NoError(t, err)
	cache := ignore.NewCache(r)

	assert.True(t, cache.IsIgnored(versionReport(t, report.DependencyDeprecated, "cat/pkg-1")))
	assert.True(t, cache.IsIgnored(versionReport(t, report.KeywordsUnsorted, "cat/pkg-1")))

	// directives below the first code line don't count
	assert.False(t, cache.IsIgnored(versionReport(t, report.LicenseInvalid, "cat/pkg-1")))

	// other versions are unaffected
	assert.False(t, cache.IsIgnored(versionReport(t, report.DependencyDeprecated, "cat/pkg-2")))
}

func TestDirectoryDirectives(t *testing.T) {
	t.Parallel()

	b, _ := buildRepo(t)
	b.SimpleEbuild("cat", "pkg", "1")
	b.File(".ebuildkit-ignore", "RepoCategoryEmpty\n")
	b.File("cat/.ebuildkit-ignore", "KeywordsUnsorted\n")
	b.File("cat/pkg/.ebuildkit-ignore", "DependencyDeprecated\n")

	r, err := repo.Open(b.Root())
	require.NoError(t, err)
	cache := ignore.NewCache(r)

	// package-level directives suppress version-scope reports too
	assert.True(t, cache.IsIgnored(versionReport(t, report.DependencyDeprecated, "cat/pkg-1")))
	// category-level directives cover everything beneath
	assert.True(t, cache.IsIgnored(versionReport(t, report.KeywordsUnsorted, "cat/pkg-1")))
	// repo-level directives cover narrower scopes too, here a
	// category-scope report
	assert.True(t, cache.IsIgnored(report.New(
		report.RepoCategoryEmpty, report.CategoryScope("testrepo", "cat"), "")))

	assert.False(t, cache.IsIgnored(versionReport(t, report.LicenseInvalid, "cat/pkg-1")))
}

func TestLevelSets(t *testing.T) {
	t.Parallel()

	b, _ := buildRepo(t)
	b.SimpleEbuild("cat", "pkg", "1")
	b.File("cat/pkg/.ebuildkit-ignore", "@style\n")

	r, err := repo.Open(b.Root())
	require.NoError(t, err)
	cache := ignore.NewCache(r)

	assert.True(t, cache.IsIgnored(versionReport(t, report.KeywordsUnsorted, "cat/pkg-1")))
	assert.False(t, cache.IsIgnored(versionReport(t, report.LicenseInvalid, "cat/pkg-1")))
}

func TestUnused(t *testing.T) {
	t.Parallel()

	b, _ := buildRepo(t)
	b.SimpleEbuild("cat", "pkg", "1")
	b.File("cat/pkg/.ebuildkit-ignore", "DependencyDeprecated\nLicenseInvalid\n")

	r, err := repo.Open(b.Root())
	require.NoError(t, err)
	cache := ignore.NewCache(r)

	// only the matched directive becomes "used"
	assert.True(t, cache.IsIgnored(versionReport(t, report.DependencyDeprecated, "cat/pkg-1")))

	unused := cache.Unused()
	require.Len(t, unused, 1)
	assert.Equal(t, report.IgnoreUnused, unused[0].Kind)
	assert.Equal(t, "LicenseInvalid", unused[0].Message)
	assert.Equal(t, report.ScopePackage, unused[0].Scope.Kind)
}

func TestInvalidDirectives(t *testing.T) {
	t.Parallel()

	b, _ := buildRepo(t)
	b.SimpleEbuild("cat", "pkg", "1")
	b.File("cat/pkg/.ebuildkit-ignore", "NotAKind\n")

	r, err := repo.Open(b.Root())
	require.NoError(t, err)
	cache := ignore.NewCache(r)

	// populate the package scope via a lookup
	assert.False(t, cache.IsIgnored(versionReport(t, report.LicenseInvalid, "cat/pkg-1")))

	invalid := cache.Invalid()
	require.Len(t, invalid, 1)
	assert.Equal(t, report.IgnoreInvalid, invalid[0].Kind)
}

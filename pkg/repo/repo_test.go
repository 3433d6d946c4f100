// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package repo_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/manifest"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
	"github.com/ebuildkit/ebuildkit/pkg/shell"
	"github.com/ebuildkit/ebuildkit/pkg/testutil"
)

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func openRepo(t *testing.T, b *testutil.RepoBuilder) *repo.Repo {
	t.Helper()
	r, err := repo.Open(b.Root())
	require.NoError(t, err)
	return r
}

func TestConfig(t *testing.T) {
	t.Parallel()

	b := testutil.NewRepo(t, "testrepo")
	b.LayoutConf(
		"masters = gentoo",
		"thin-manifests = true",
		"manifest-hashes = BLAKE2B SHA512",
		"manifest-required-hashes = BLAKE2B",
		"eapis-banned = 0 1",
	)
	r := openRepo(t, b)

	assert.Equal(t, "testrepo", r.Id())
	cfg := r.Config()
	assert.Equal(t, []string{"gentoo"}, cfg.Masters)
	assert.True(t, cfg.ThinManifests)
	assert.Equal(t, []manifest.HashKind{manifest.Blake2b, manifest.Sha512}, cfg.ManifestHashes)
	assert.Equal(t, []string{"0", "1"}, cfg.EapisBanned)
	assert.True(t, r.IsOverlay())
	assert.True(t, r.InheritsGentoo())
	assert.False(t, r.IsGentoo())
}

func TestEnumeration(t *testing.T) {
	t.Parallel()

	b := testutil.NewRepo(t, "testrepo")
	b.SimpleEbuild("cat-b", "pkg", "1")
	b.SimpleEbuild("cat-a", "pkg2", "2.0")
	b.SimpleEbuild("cat-a", "pkg1", "1.0")
	b.SimpleEbuild("cat-a", "pkg1", "0.9")
	b.SimpleEbuild("cat-a", "pkg1", "1.0-r1")
	b.File("cat-a/pkg1/not-an-ebuild.txt", "ignored")

	r := openRepo(t, b)

	assert.Equal(t, []string{"cat-a", "cat-b"}, r.Categories())
	assert.Equal(t, []string{"pkg1", "pkg2"}, r.Packages("cat-a"))

	var vers []string
	for _, v := range r.Versions("cat-a", "pkg1") {
		vers = append(vers, v.String())
	}
	assert.Equal(t, []string{"0.9", "1.0", "1.0-r1"}, vers)

	cpns := r.Cpns(atom.MatchAll())
	assert.Len(t, cpns, 3)
	assert.Equal(t, "cat-a/pkg1", cpns[0].String())

	restrict, err := atom.ParseRestrict("cat-a/pkg1")
	require.NoError(t, err)
	cpvs := r.Cpvs(restrict)
	require.Len(t, cpvs, 3)
	assert.Equal(t, "cat-a/pkg1-0.9", cpvs[0].String())

	restrict, err = atom.ParseRestrict("=cat-a/pkg1-1.0")
	require.NoError(t, err)
	assert.Len(t, r.Cpvs(restrict), 1)
}

func TestCategoriesProfile(t *testing.T) {
	t.Parallel()

	b := testutil.NewRepo(t, "testrepo")
	b.File("profiles/categories", "listed\n")
	b.SimpleEbuild("listed", "pkg", "1")
	b.SimpleEbuild("unlisted", "pkg", "1")

	r := openRepo(t, b)
	assert.Equal(t, []string{"listed"}, r.Categories())
}

func TestMetadataGeneration(t *testing.T) {
	t.Parallel()
	requireBash(t)

	b := testutil.NewRepo(t, "testrepo")
	b.Ebuild("cat", "pkg", "1", `
		EAPI=8
		DESCRIPTION="a test package"
		HOMEPAGE="https://example.com"
		SLOT="1/2"
		LICENSE="MIT"
		KEYWORDS="amd64 ~arm64"
		IUSE="foo bar"
		DEPEND="dev-libs/libx flag? ( dev-libs/liby )"
		RDEPEND="${DEPEND}"
		SRC_URI="https://example.com/pkg-1.tar.gz"
		src_compile() { :; }
	`)

	r := openRepo(t, b)
	ctx := context.Background()
	cpv, err := atom.ParseCpv("cat/pkg-1")
	require.NoError(t, err)

	meta, err := r.Metadata(ctx, cpv)
	require.NoError(t, err)
	assert.Equal(t, "8", meta.Eapi.Id())
	assert.Equal(t, "a test package", meta.Description)
	assert.Equal(t, "1", meta.Slot)
	assert.Equal(t, "2", meta.Subslot)
	assert.Equal(t, []string{"amd64", "~arm64"}, meta.Keywords)
	assert.Equal(t, []string{"foo", "bar"}, meta.Iuse)
	assert.Equal(t, "dev-libs/libx flag? ( dev-libs/liby )", meta.Depend.String())
	assert.Contains(t, meta.DefinedPhases, "src_compile")

	// the cache entry is written and decodes to the same record
	cachePath := r.CachePath(cpv)
	data, err := os.ReadFile(cachePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SLOT=1/2")
	assert.Contains(t, string(data), "_md5_=")
}

func TestMetadataCacheHit(t *testing.T) {
	t.Parallel()
	requireBash(t)

	b := testutil.NewRepo(t, "testrepo")
	b.SimpleEbuild("cat", "pkg", "1")
	r := openRepo(t, b)
	ctx := context.Background()
	cpv, err := atom.ParseCpv("cat/pkg-1")
	require.NoError(t, err)

	_, err = r.Metadata(ctx, cpv)
	require.NoError(t, err)

	// a fresh view decodes the cache without sourcing at all
	r2, err := repo.Open(b.Root(), repo.WithSourcer(failSourcer{}))
	require.NoError(t, err)
	_, err = r2.Metadata(ctx, cpv)
	assert.NoError(t, err, "valid cache entries must not re-source")

	// changing the ebuild invalidates the entry
	require.NoError(t, os.WriteFile(
		filepath.Join(b.Root(), "cat", "pkg", "pkg-1.ebuild"),
		[]byte("EAPI=8\nSLOT=\"0\"\nDESCRIPTION=\"changed\"\n"), 0o644))
	r3, err := repo.Open(b.Root(), repo.WithSourcer(failSourcer{}))
	require.NoError(t, err)
	_, err = r3.Metadata(ctx, cpv)
	assert.Error(t, err, "the changed ebuild must invalidate the cache")
}

// failSourcer fails every Source call, proving a code path never
// reached for the shell collaborator.
type failSourcer struct{}

func (failSourcer) Source(context.Context, *shell.SourceRequest) (*shell.SourceResult, error) {
	return nil, errors.New("sourcing forbidden in this test")
}

func TestMetadataSourcingFailure(t *testing.T) {
	t.Parallel()
	requireBash(t)

	b := testutil.NewRepo(t, "testrepo")
	b.Ebuild("cat", "bad", "1", `
		EAPI=8
		SLOT="0"
		die "broken ebuild"
	`)
	r := openRepo(t, b)
	cpv, err := atom.ParseCpv("cat/bad-1")
	require.NoError(t, err)

	_, err = r.Metadata(context.Background(), cpv)
	require.Error(t, err)
	var invalid *repo.InvalidPkgError
	assert.ErrorAs(t, err, &invalid)
	assert.Equal(t, "cat/bad-1", invalid.Cpv.String())
}

func TestMetadataMissingSlot(t *testing.T) {
	t.Parallel()
	requireBash(t)

	b := testutil.NewRepo(t, "testrepo")
	b.Ebuild("cat", "noslot", "1", `
		EAPI=8
		DESCRIPTION="no slot"
	`)
	r := openRepo(t, b)
	cpv, err := atom.ParseCpv("cat/noslot-1")
	require.NoError(t, err)

	_, err = r.Metadata(context.Background(), cpv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLOT")
}

func TestMetadataEclasses(t *testing.T) {
	t.Parallel()
	requireBash(t)

	b := testutil.NewRepo(t, "testrepo")
	b.File("eclass/mylib.eclass", "MYLIB_SET=yes\nsrc_test() { :; }\n")
	b.Ebuild("cat", "pkg", "1", `
		EAPI=8
		inherit mylib
		DESCRIPTION="uses an eclass"
		SLOT="0"
	`)
	r := openRepo(t, b)
	cpv, err := atom.ParseCpv("cat/pkg-1")
	require.NoError(t, err)

	meta, err := r.Metadata(context.Background(), cpv)
	require.NoError(t, err)
	require.Len(t, meta.Inherited, 1)
	assert.Equal(t, "mylib", meta.Inherited[0].Name)
	assert.NotEmpty(t, meta.Inherited[0].Md5)
	assert.Contains(t, meta.DefinedPhases, "src_test")

	// touching the eclass invalidates the cached entry
	b.File("eclass/mylib.eclass", "MYLIB_SET=changed\n")
	r2 := openRepo(t, b)
	meta2, err := r2.Metadata(context.Background(), cpv)
	require.NoError(t, err)
	assert.NotEqual(t, meta.Inherited[0].Md5, meta2.Inherited[0].Md5)
}

func TestRegenModes(t *testing.T) {
	t.Parallel()
	requireBash(t)

	b := testutil.NewRepo(t, "testrepo")
	b.SimpleEbuild("cat", "pkg", "1")
	b.SimpleEbuild("cat", "pkg", "2")
	r := openRepo(t, b)
	ctx := context.Background()

	require.NoError(t, r.Regen(ctx, repo.RegenOptions{Mode: repo.RegenUpdate}))
	entries, err := os.ReadDir(filepath.Join(r.CacheDir(), "cat"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// verify succeeds against a fresh cache
	require.NoError(t, r.Regen(ctx, repo.RegenOptions{Mode: repo.RegenVerify}))

	// removing an ebuild leaves an outdated entry that a full regen
	// prunes
	require.NoError(t, os.Remove(filepath.Join(b.Root(), "cat", "pkg", "pkg-2.ebuild")))
	r2 := openRepo(t, b)
	require.NoError(t, r2.Regen(ctx, repo.RegenOptions{Mode: repo.RegenUpdate}))
	entries, err = os.ReadDir(filepath.Join(r2.CacheDir(), "cat"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// remove mode deletes matching entries and empty directories
	require.NoError(t, r2.Regen(ctx, repo.RegenOptions{Mode: repo.RegenRemove}))
	_, err = os.Stat(filepath.Join(r2.CacheDir(), "cat"))
	assert.True(t, os.IsNotExist(err))
}

func TestRegenAggregatesFailures(t *testing.T) {
	t.Parallel()
	requireBash(t)

	b := testutil.NewRepo(t, "testrepo")
	b.SimpleEbuild("cat", "good", "1")
	b.Ebuild("cat", "bad", "1", `
		EAPI=8
		SLOT="0"
		die "nope"
	`)
	r := openRepo(t, b)

	err := r.Regen(context.Background(), repo.RegenOptions{Mode: repo.RegenUpdate})
	require.Error(t, err)
	var regenErr *repo.RegenError
	require.ErrorAs(t, err, &regenErr)
	assert.Len(t, regenErr.Failures, 1)
	assert.Contains(t, regenErr.Failures, "cat/bad-1")

	// the good package's entry still landed
	_, statErr := os.Stat(filepath.Join(r.CacheDir(), "cat", "good-1"))
	assert.NoError(t, statErr)
}

func TestPackageDeprecated(t *testing.T) {
	t.Parallel()

	b := testutil.NewRepo(t, "testrepo")
	b.File("profiles/package.deprecated", "# comment\ncat/old\n")
	r := openRepo(t, b)

	deps := r.PackageDeprecated()
	require.Len(t, deps, 1)
	assert.Equal(t, "cat/old", deps[0].String())
}

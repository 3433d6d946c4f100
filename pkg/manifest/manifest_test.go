// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package manifest_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebuildkit/ebuildkit/pkg/manifest"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParse(t *testing.T) {
	t.Parallel()

	m, err := manifest.Parse(strings.NewReader(
		"DIST a.tar.gz 5 BLAKE2B aa11 SHA512 bb22\n" +
			"EBUILD pkg-1.ebuild 100 BLAKE2B cc33\n",
	))
	require.NoError(t, err)
	require.Equal(t, 2, m.Len())

	dist := m.Get(manifest.Dist, "a.tar.gz")
	require.NotNil(t, dist)
	assert.Equal(t, int64(5), dist.Size)
	assert.Equal(t, "aa11", dist.Hashes[manifest.Blake2b])
	assert.Equal(t, "bb22", dist.Hashes[manifest.Sha512])

	// unknown hash kinds parse but are left unverified
	m, err = manifest.Parse(strings.NewReader("DIST b 1 WHIRLPOOL ff00\n"))
	require.NoError(t, err)
	assert.Equal(t, "ff00", m.Get(manifest.Dist, "b").Hashes[manifest.HashKind("WHIRLPOOL")])
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty":          "",
		"blank":          "\n\n",
		"unknown kind":   "BOGUS a 5 BLAKE2B aa\n",
		"missing hashes": "DIST a 5\n",
		"odd tokens":     "DIST a 5 BLAKE2B\n",
		"bad size":       "DIST a x BLAKE2B aa\n",
		"negative size":  "DIST a -1 BLAKE2B aa\n",
		"bad digest":     "DIST a 5 BLAKE2B zz\n",
		"dup digest":     "DIST a 5 BLAKE2B aa BLAKE2B bb\n",
	}
	for name, content := range cases {
		name, content := name, content
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := manifest.Parse(strings.NewReader(content))
			assert.Error(t, err)
		})
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	distdir := t.TempDir()
	pkgdir := t.TempDir()
	path := writeFile(t, distdir, "a.tar.gz", "hello")

	blake2b, err := manifest.HashFile(path, manifest.Blake2b)
	require.NoError(t, err)

	// a wrong SHA512 digest alongside a correct BLAKE2B digest
	wrong := strings.Repeat("f", 128)
	m, err := manifest.Parse(strings.NewReader(
		"DIST a.tar.gz 5 BLAKE2B " + blake2b + " SHA512 " + wrong + "\n"))
	require.NoError(t, err)

	resolve := manifest.DirResolver(pkgdir, distdir)

	// only BLAKE2B required: verification passes
	errs := m.Verify(resolve, map[manifest.HashKind]bool{manifest.Blake2b: true})
	assert.Empty(t, errs)

	// SHA512 also required: verification fails on the bad digest
	errs = m.Verify(resolve, map[manifest.HashKind]bool{
		manifest.Blake2b: true,
		manifest.Sha512:  true,
	})
	require.Len(t, errs, 1)
	var verifyErr *manifest.VerifyError
	require.ErrorAs(t, errs[0], &verifyErr)
	assert.Equal(t, manifest.Sha512, verifyErr.Hash)
	assert.Contains(t, errs[0].Error(), "SHA512 checksum failed")
}

func TestVerifyMutation(t *testing.T) {
	t.Parallel()

	distdir := t.TempDir()
	pkgdir := t.TempDir()
	path := writeFile(t, distdir, "a.bin", "payload")

	entry, err := manifest.EntryForFile(manifest.Dist, "a.bin", path,
		[]manifest.HashKind{manifest.Blake2b, manifest.Blake3, manifest.Sha512})
	require.NoError(t, err)

	m := &manifest.Manifest{}
	m.Insert(entry)
	required := map[manifest.HashKind]bool{
		manifest.Blake2b: true,
		manifest.Blake3:  true,
		manifest.Sha512:  true,
	}
	resolve := manifest.DirResolver(pkgdir, distdir)
	assert.Empty(t, m.Verify(resolve, required))

	// flipping a single byte breaks verification
	require.NoError(t, os.WriteFile(path, []byte("paYload"), 0o644))
	assert.NotEmpty(t, m.Verify(resolve, required))
}

func TestVerifyMissingAndSize(t *testing.T) {
	t.Parallel()

	distdir := t.TempDir()
	pkgdir := t.TempDir()

	m, err := manifest.Parse(strings.NewReader(
		"DIST missing.bin 5 BLAKE2B aa11\n"))
	require.NoError(t, err)
	errs := m.Verify(manifest.DirResolver(pkgdir, distdir),
		map[manifest.HashKind]bool{manifest.Blake2b: true})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "missing file")

	writeFile(t, distdir, "short.bin", "abc")
	m, err = manifest.Parse(strings.NewReader(
		"DIST short.bin 5 BLAKE2B aa11\n"))
	require.NoError(t, err)
	errs = m.Verify(manifest.DirResolver(pkgdir, distdir),
		map[manifest.HashKind]bool{manifest.Blake2b: true})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "size mismatch")
}

func TestWriteRoundTrip(t *testing.T) {
	t.Parallel()

	input := "AUX patch.diff 10 BLAKE2B aa11\n" +
		"DIST a.tar.gz 5 BLAKE2B bb22 SHA512 cc33\n" +
		"EBUILD pkg-1.ebuild 100 BLAKE2B dd44\n"
	m, err := manifest.Parse(strings.NewReader(input))
	require.NoError(t, err)

	var b strings.Builder
	_, err = m.WriteTo(&b)
	require.NoError(t, err)
	assert.Equal(t, input, b.String())

	again, err := manifest.Parse(strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Equal(t, m.Entries(), again.Entries())
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	distdir := t.TempDir()
	pkgdir := t.TempDir()
	writeFile(t, distdir, "a.tar.gz", "hello")
	writeFile(t, pkgdir, "pkg-1.ebuild", "EAPI=8\n")

	opts := manifest.UpdateOptions{
		Pkgdir:    pkgdir,
		Distdir:   distdir,
		Distfiles: []string{"a.tar.gz"},
		Hashes:    []manifest.HashKind{manifest.Blake2b},
	}
	require.NoError(t, manifest.Update(opts))

	m, err := manifest.ParseFile(filepath.Join(pkgdir, "Manifest"))
	require.NoError(t, err)
	assert.NotNil(t, m.Get(manifest.Dist, "a.tar.gz"))
	assert.NotNil(t, m.Get(manifest.Ebuild, "pkg-1.ebuild"))

	// thin mode drops everything but DIST entries
	opts.Thin = true
	require.NoError(t, manifest.Update(opts))
	m, err = manifest.ParseFile(filepath.Join(pkgdir, "Manifest"))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())

	// an empty rebuild removes the Manifest entirely
	opts.Distfiles = nil
	require.NoError(t, manifest.Update(opts))
	_, err = os.Stat(filepath.Join(pkgdir, "Manifest"))
	assert.True(t, os.IsNotExist(err))
}

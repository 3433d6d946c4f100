// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// A RepoBuilder assembles a throwaway ebuild repository under a test
// temp directory.
type RepoBuilder struct {
	t    *testing.T
	root string
}

// NewRepo starts a repository named id under t.TempDir().
func NewRepo(t *testing.T, id string) *RepoBuilder {
	t.Helper()
	root := t.TempDir()
	b := &RepoBuilder{t: t, root: root}
	b.File("profiles/repo_name", id+"\n")
	return b
}

// Root returns the repository root path.
func (b *RepoBuilder) Root() string { return b.root }

// File writes a file under the repository root, creating parents.
func (b *RepoBuilder) File(rel, content string) *RepoBuilder {
	b.t.Helper()
	path := filepath.Join(b.root, rel)
	require.NoError(b.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(b.t, os.WriteFile(path, []byte(content), 0o644))
	return b
}

// LayoutConf writes metadata/layout.conf from key=value lines.
func (b *RepoBuilder) LayoutConf(lines ...string) *RepoBuilder {
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	return b.File("metadata/layout.conf", content)
}

// Ebuild writes "<cat>/<pkg>/<pkg>-<ver>.ebuild" with the given body.
func (b *RepoBuilder) Ebuild(cat, pkg, ver, body string) *RepoBuilder {
	return b.File(filepath.Join(cat, pkg, pkg+"-"+ver+".ebuild"), Dedent(body))
}

// SimpleEbuild writes a minimal valid ebuild declaring EAPI 8.
func (b *RepoBuilder) SimpleEbuild(cat, pkg, ver string) *RepoBuilder {
	return b.Ebuild(cat, pkg, ver, `
		EAPI=8
		DESCRIPTION="test package"
		SLOT="0"
	`)
}

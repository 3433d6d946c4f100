// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package shell_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebuildkit/ebuildkit/pkg/eapi"
	"github.com/ebuildkit/ebuildkit/pkg/shell"
)

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func writeEbuild(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pkg-1.ebuild")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSource(t *testing.T) {
	t.Parallel()
	requireBash(t)

	path := writeEbuild(t, `
DESCRIPTION="hello world"
SLOT="0"
DEPEND="cat/dep"
echo "build diagnostics go to the buffer"
src_install() { :; }
helper() { :; }
`)

	s := &shell.BashSourcer{}
	res, err := s.Source(context.Background(), &shell.SourceRequest{
		Path: path,
		Eapi: eapi.Latest(),
		Env:  map[string]string{"PN": "pkg", "PV": "1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "hello world", res.Vars["DESCRIPTION"])
	assert.Equal(t, "0", res.Vars["SLOT"])
	assert.Equal(t, "cat/dep", res.Vars["DEPEND"])
	assert.Contains(t, res.Functions, "src_install")
	assert.Contains(t, res.Functions, "helper")
	assert.Contains(t, string(res.Output), "build diagnostics go to the buffer")
}

func TestSourceEnv(t *testing.T) {
	t.Parallel()
	requireBash(t)

	path := writeEbuild(t, "DESCRIPTION=\"package ${PN} version ${PV}\"\n")

	s := &shell.BashSourcer{}
	res, err := s.Source(context.Background(), &shell.SourceRequest{
		Path: path,
		Eapi: eapi.Latest(),
		Env:  map[string]string{"PN": "pkg", "PV": "1.2.3"},
	})
	require.NoError(t, err)
	assert.Equal(t, "package pkg version 1.2.3", res.Vars["DESCRIPTION"])
}

func TestSourceFailure(t *testing.T) {
	t.Parallel()
	requireBash(t)

	path := writeEbuild(t, "echo oops >&2\nexit 3\n")

	s := &shell.BashSourcer{}
	_, err := s.Source(context.Background(), &shell.SourceRequest{
		Path: path,
		Eapi: eapi.Latest(),
	})
	require.Error(t, err)
	var srcErr *shell.SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, 3, srcErr.Status)
	assert.Contains(t, string(srcErr.Output), "oops")
}

func TestSourceDie(t *testing.T) {
	t.Parallel()
	requireBash(t)

	path := writeEbuild(t, "die \"fatal problem\"\n")

	s := &shell.BashSourcer{}
	_, err := s.Source(context.Background(), &shell.SourceRequest{
		Path: path,
		Eapi: eapi.Latest(),
	})
	var srcErr *shell.SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Contains(t, string(srcErr.Output), "fatal problem")
}

func TestPoolConcurrency(t *testing.T) {
	t.Parallel()
	requireBash(t)

	path := writeEbuild(t, "SLOT=\"0\"\n")
	pool := shell.NewPool(&shell.BashSourcer{}, 2)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < len(errs); i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = pool.Source(context.Background(), &shell.SourceRequest{
				Path: path,
				Eapi: eapi.Latest(),
			})
		}()
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

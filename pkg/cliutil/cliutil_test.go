// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package cliutil_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebuildkit/ebuildkit/pkg/cliutil"
)

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, cliutil.ExitCode(nil))
	assert.Equal(t, 1, cliutil.ExitCode(errors.New("boom")))
	assert.Equal(t, 2, cliutil.ExitCode(cliutil.BadUsage(errors.New("bad flag"))))
	assert.Equal(t, 2, cliutil.ExitCode(cliutil.Usagef("unknown kind %q", "Nope")))

	// usage errors stay recognizable through wrapping
	wrapped := fmt.Errorf("scan: %w", cliutil.Usagef("bad target"))
	assert.Equal(t, 2, cliutil.ExitCode(wrapped))
}

func TestBadUsageNil(t *testing.T) {
	t.Parallel()

	assert.NoError(t, cliutil.BadUsage(nil))
}

func newTestRoot() (*cobra.Command, *strings.Builder) {
	root := cliutil.Group("tool {[flags]|SUBCOMMAND...}", "test tool")
	cliutil.Setup(root)
	var out strings.Builder
	root.SetOut(&out)
	root.SetErr(&out)
	return root, &out
}

func TestGroupUnknownSubcommand(t *testing.T) {
	t.Parallel()

	root, _ := newTestRoot()
	root.AddCommand(&cobra.Command{
		Use:  "scan",
		RunE: func(*cobra.Command, []string) error { return nil },
	})

	root.SetArgs([]string{"scna"})
	err := root.Execute()
	require.Error(t, err)
	var usage *cliutil.UsageError
	require.ErrorAs(t, err, &usage)
	assert.Contains(t, err.Error(), `unknown subcommand "scna"`)
	assert.Contains(t, err.Error(), "scan", "typo suggestions should surface")
}

func TestGroupBareInvocation(t *testing.T) {
	t.Parallel()

	root, out := newTestRoot()
	root.AddCommand(&cobra.Command{
		Use:  "scan",
		RunE: func(*cobra.Command, []string) error { return nil },
	})

	root.SetArgs([]string{})
	err := root.Execute()
	var usage *cliutil.UsageError
	require.ErrorAs(t, err, &usage)
	assert.Contains(t, out.String(), "scan", "bare invocation shows the help")
}

func TestGroupRunsSubcommand(t *testing.T) {
	t.Parallel()

	root, _ := newTestRoot()
	ran := false
	root.AddCommand(&cobra.Command{
		Use:  "scan",
		RunE: func(*cobra.Command, []string) error { ran = true; return nil },
	})

	root.SetArgs([]string{"scan"})
	require.NoError(t, root.Execute())
	assert.True(t, ran)
}

func TestArgs(t *testing.T) {
	t.Parallel()

	root, _ := newTestRoot()
	root.AddCommand(&cobra.Command{
		Use:  "scan",
		Args: cliutil.Args(cobra.NoArgs),
		RunE: func(*cobra.Command, []string) error { return nil },
	})

	root.SetArgs([]string{"scan", "extra"})
	err := root.Execute()
	var usage *cliutil.UsageError
	assert.ErrorAs(t, err, &usage)
}

func TestSetupFlagErrors(t *testing.T) {
	t.Parallel()

	root, _ := newTestRoot()
	root.AddCommand(&cobra.Command{
		Use:  "scan",
		RunE: func(*cobra.Command, []string) error { return nil },
	})

	root.SetArgs([]string{"scan", "--no-such-flag"})
	err := root.Execute()
	var usage *cliutil.UsageError
	assert.ErrorAs(t, err, &usage)
}

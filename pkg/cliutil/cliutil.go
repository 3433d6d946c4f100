// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

// Package cliutil holds the shared cobra glue.  The tool distinguishes
// bad invocations (exit status 2: unknown flags or subcommands, invalid
// report kinds or restrictions) from failures while carrying out a
// valid request (exit status 1).  Instead of printing and exiting at
// the point of detection, everything here wraps the problem in a
// UsageError and lets it propagate out of Execute, where main maps it
// to the right status and help hint.
package cliutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// A UsageError marks a failure in how the command was invoked rather
// than in carrying it out.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

// BadUsage wraps err as a usage error; nil passes through.
func BadUsage(err error) error {
	if err == nil {
		return nil
	}
	return &UsageError{Err: err}
}

// Usagef builds a usage error from a format string.
func Usagef(format string, args ...any) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// ExitCode maps an Execute error to the process exit status: 0 on
// success, 2 for usage errors, 1 for everything else.
func ExitCode(err error) int {
	var usage *UsageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &usage):
		return 2
	default:
		return 1
	}
}

// Setup wires a command tree for usage-error propagation: cobra's own
// flag and args rejections surface as UsageErrors instead of being
// printed in place, and error rendering is left entirely to main.
func Setup(root *cobra.Command) {
	root.SilenceErrors = true
	root.SilenceUsage = true
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return BadUsage(err)
	})
}

// Args wraps a cobra.PositionalArgs so its rejections count as usage
// errors.
func Args(inner cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return BadUsage(inner(cmd, args))
	}
}

// Group returns a command that exists only to hold subcommands.
// Invoked bare it shows its help and still fails as a usage error;
// naming an unknown subcommand fails with typo suggestions.
func Group(use, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ArbitraryArgs,
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		if len(args) > 0 {
			return Usagef("unknown subcommand %q%s", args[0], suggestions(c, args[0]))
		}
		c.SetOut(c.ErrOrStderr())
		_ = c.Help()
		return Usagef("a subcommand is required")
	}
	return cmd
}

func suggestions(cmd *cobra.Command, name string) string {
	if cmd.SuggestionsMinimumDistance <= 0 {
		cmd.SuggestionsMinimumDistance = 2
	}
	found := cmd.SuggestionsFor(name)
	if len(found) == 0 {
		return ""
	}
	return "\n\nDid you mean one of these?\n\t" + strings.Join(found, "\n\t")
}

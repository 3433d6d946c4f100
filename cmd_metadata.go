// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/spf13/cobra"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/cliutil"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
)

func init() {
	parent := cliutil.Group("metadata {[flags]|SUBCOMMAND...}", "Manage the repository metadata cache")
	argparser.AddCommand(parent)

	type common struct {
		repoPath string
		jobs     int
	}
	addCommon := func(cmd *cobra.Command, c *common) {
		cmd.Flags().StringVarP(&c.repoPath, "repo", "r", ".", "repository to operate on")
		cmd.Flags().IntVarP(&c.jobs, "jobs", "j", 0, "parallel jobs (default: detected CPUs)")
	}

	runRegen := func(flags *cobra.Command, args []string, c *common, opts repo.RegenOptions) error {
		r, err := repo.Open(c.repoPath)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			restrict, err := atom.ParseRestrict(args[0])
			if err != nil {
				return cliutil.BadUsage(err)
			}
			opts.Restrict = restrict
		}
		opts.Jobs = c.jobs
		return r.Regen(flags.Context(), opts)
	}

	{
		c := &common{}
		var force, output bool
		cmd := &cobra.Command{
			Use:   "regen [flags] [TARGET]",
			Short: "Regenerate the metadata cache",
			Args:  cliutil.Args(cobra.MaximumNArgs(1)),
			RunE: func(flags *cobra.Command, args []string) error {
				return runRegen(flags, args, c, repo.RegenOptions{
					Mode:       repo.RegenUpdate,
					Force:      force,
					ShowOutput: output,
				})
			},
		}
		addCommon(cmd, c)
		cmd.Flags().BoolVarP(&force, "force", "f", false, "regenerate valid entries too")
		cmd.Flags().BoolVarP(&output, "output", "o", false, "surface sourcing diagnostics")
		parent.AddCommand(cmd)
	}

	{
		c := &common{}
		cmd := &cobra.Command{
			Use:   "verify [flags] [TARGET]",
			Short: "Verify the metadata cache without writing",
			Args:  cliutil.Args(cobra.MaximumNArgs(1)),
			RunE: func(flags *cobra.Command, args []string) error {
				return runRegen(flags, args, c, repo.RegenOptions{Mode: repo.RegenVerify})
			},
		}
		addCommon(cmd, c)
		parent.AddCommand(cmd)
	}

	{
		c := &common{}
		cmd := &cobra.Command{
			Use:   "remove [flags] [TARGET]",
			Short: "Remove matching metadata cache entries",
			Args:  cliutil.Args(cobra.MaximumNArgs(1)),
			RunE: func(flags *cobra.Command, args []string) error {
				return runRegen(flags, args, c, repo.RegenOptions{Mode: repo.RegenRemove})
			},
		}
		addCommon(cmd, c)
		parent.AddCommand(cmd)
	}
}

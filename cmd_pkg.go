// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/cliutil"
	"github.com/ebuildkit/ebuildkit/pkg/fetch"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
)

func init() {
	parent := cliutil.Group("pkg {[flags]|SUBCOMMAND...}", "Operate on individual packages")
	argparser.AddCommand(parent)

	var repoPath string
	parent.PersistentFlags().StringVarP(&repoPath, "repo", "r", ".", "repository to operate on")

	// resolve the targeted packages, erroring out on an empty match
	resolve := func(flags *cobra.Command, args []string) (*repo.Repo, []*atom.Cpv, error) {
		r, err := repo.Open(repoPath)
		if err != nil {
			return nil, nil, err
		}
		restrict := atom.MatchAll()
		if len(args) == 1 {
			if restrict, err = atom.ParseRestrict(args[0]); err != nil {
				return nil, nil, cliutil.BadUsage(err)
			}
		}
		cpvs := r.Cpvs(restrict)
		if len(cpvs) == 0 {
			return nil, nil, fmt.Errorf("no matches for %q", args)
		}
		return r, cpvs, nil
	}

	{
		cmd := &cobra.Command{
			Use:   "metadata [flags] [TARGET]",
			Short: "Show parsed package metadata",
			Args:  cliutil.Args(cobra.MaximumNArgs(1)),
			RunE: func(flags *cobra.Command, args []string) error {
				r, cpvs, err := resolve(flags, args)
				if err != nil {
					return err
				}
				for _, cpv := range cpvs {
					meta, err := r.Metadata(flags.Context(), cpv)
					if err != nil {
						return err
					}
					fmt.Printf("%s\n", cpv)
					os.Stdout.Write(meta.Encode())
				}
				return nil
			},
		}
		parent.AddCommand(cmd)
	}

	{
		cmd := &cobra.Command{
			Use:   "source [flags] [TARGET]",
			Short: "Source ebuilds and report the sourcing diagnostics",
			Args:  cliutil.Args(cobra.MaximumNArgs(1)),
			RunE: func(flags *cobra.Command, args []string) error {
				r, cpvs, err := resolve(flags, args)
				if err != nil {
					return err
				}
				failed := false
				for _, cpv := range cpvs {
					meta, err := r.Metadata(flags.Context(), cpv)
					switch {
					case err != nil:
						failed = true
						fmt.Fprintf(os.Stderr, "%s: %v\n", cpv, err)
					case len(meta.Output) > 0:
						fmt.Printf("%s:\n%s", cpv, meta.Output)
					}
				}
				if failed {
					os.Exit(1)
				}
				return nil
			},
		}
		parent.AddCommand(cmd)
	}

	{
		var distdir string
		var jobs int
		var force bool
		cmd := &cobra.Command{
			Use:   "fetch [flags] [TARGET]",
			Short: "Fetch a package's distfiles",
			Args:  cliutil.Args(cobra.MaximumNArgs(1)),
			RunE: func(flags *cobra.Command, args []string) error {
				r, cpvs, err := resolve(flags, args)
				if err != nil {
					return err
				}
				f := fetch.New(r, fetch.Options{Distdir: distdir, Jobs: jobs, Force: force})
				for _, cpv := range cpvs {
					pkg, err := r.Pkg(flags.Context(), cpv)
					if err != nil {
						return err
					}
					if _, err := f.Pkg(flags.Context(), pkg); err != nil {
						return err
					}
				}
				return nil
			},
		}
		cmd.Flags().StringVar(&distdir, "distdir", "distfiles", "distfile directory")
		cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "concurrent downloads")
		cmd.Flags().BoolVarP(&force, "force", "f", false, "refetch existing distfiles")
		parent.AddCommand(cmd)
	}

	{
		var distdir string
		var jobs int
		cmd := &cobra.Command{
			Use:   "manifest [flags] [TARGET]",
			Short: "Fetch distfiles and update package Manifests",
			Args:  cliutil.Args(cobra.MaximumNArgs(1)),
			RunE: func(flags *cobra.Command, args []string) error {
				r, cpvs, err := resolve(flags, args)
				if err != nil {
					return err
				}
				f := fetch.New(r, fetch.Options{Distdir: distdir, Jobs: jobs})

				// distfiles accumulate per package before one Manifest
				// update per Cpn
				perPkg := make(map[atom.Cpn][]string)
				var order []atom.Cpn
				for _, cpv := range cpvs {
					pkg, err := r.Pkg(flags.Context(), cpv)
					if err != nil {
						return err
					}
					names, err := f.Pkg(flags.Context(), pkg)
					if err != nil {
						return err
					}
					cpn := cpv.Cpn()
					if _, ok := perPkg[cpn]; !ok {
						order = append(order, cpn)
					}
					perPkg[cpn] = append(perPkg[cpn], names...)
				}
				for _, cpn := range order {
					pkg, err := r.Pkg(flags.Context(), r.CpvsOf(cpn, nil)[0])
					if err != nil {
						return err
					}
					if err := f.UpdateManifest(pkg, dedupStrings(perPkg[cpn])); err != nil {
						return err
					}
				}
				return nil
			},
		}
		cmd.Flags().StringVar(&distdir, "distdir", "distfiles", "distfile directory")
		cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "concurrent downloads")
		parent.AddCommand(cmd)
	}
}

func dedupStrings(vals []string) []string {
	seen := make(map[string]bool, len(vals))
	var ret []string
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			ret = append(ret, v)
		}
	}
	return ret
}

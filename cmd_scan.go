// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/check"
	"github.com/ebuildkit/ebuildkit/pkg/cliutil"
	"github.com/ebuildkit/ebuildkit/pkg/report"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
	"github.com/ebuildkit/ebuildkit/pkg/scan"
)

// scanConfig is the optional .ebuildkit.yaml at the repository root;
// flags override its values.
type scanConfig struct {
	Reports []string `yaml:"reports"`
	Checks  []string `yaml:"checks"`
	Exit    []string `yaml:"exit"`
	Jobs    int      `yaml:"jobs"`
}

func loadScanConfig(root string) (*scanConfig, error) {
	cfg := &scanConfig{}
	data, err := os.ReadFile(filepath.Join(root, ".ebuildkit.yaml"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf(".ebuildkit.yaml: %w", err)
	}
	return cfg, nil
}

func init() {
	var (
		repoPath     string
		jobs         int
		reports      []string
		checks       []string
		levels       []string
		scopes       []string
		sources      []string
		exitKinds    kindsValue
		reporterName string
		format       string
	)
	cmd := &cobra.Command{
		Use:   "scan [flags] [TARGET...]",
		Short: "Scan for QA issues",
		Long: "Scans the repository for QA issues.  Targets are package restrictions " +
			"(\"cat/pkg\", \"=cat/pkg-1.2*\", \"cat*/*\"); with no targets the whole " +
			"repository is scanned.",
		RunE: func(flags *cobra.Command, args []string) error {
			ctx := flags.Context()

			r, err := repo.Open(repoPath)
			if err != nil {
				return err
			}

			fileCfg, err := loadScanConfig(r.Path())
			if err != nil {
				return err
			}
			if len(reports) == 0 {
				reports = fileCfg.Reports
			}
			if len(checks) == 0 {
				checks = fileCfg.Checks
			}
			if len(exitKinds) == 0 {
				for _, name := range fileCfg.Exit {
					if err := exitKinds.Set(name); err != nil {
						return err
					}
				}
			}
			if jobs == 0 {
				jobs = fileCfg.Jobs
			}

			selected, enabled, err := selectChecks(checks, reports, levels, scopes, sources)
			if err != nil {
				return cliutil.BadUsage(err)
			}

			exit := make(map[report.Kind]bool, len(exitKinds))
			for _, kind := range exitKinds {
				exit[kind] = true
			}

			restrict, err := parseTargets(args)
			if err != nil {
				return cliutil.BadUsage(err)
			}

			reporter, err := cliutil.NewReporter(reporterName, format, os.Stdout)
			if err != nil {
				return cliutil.BadUsage(err)
			}

			scanner := scan.New(r, scan.Options{
				Jobs:     jobs,
				Checks:   selected,
				Enabled:  enabled,
				Exit:     exit,
				Restrict: restrict,
			})

			it := scanner.Run(ctx)
			defer it.Close()
			for {
				rep, ok := it.Next()
				if !ok {
					break
				}
				if err := reporter.Report(rep); err != nil {
					return err
				}
			}
			if err := reporter.Close(); err != nil {
				return err
			}
			if it.Failed() {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&repoPath, "repo", "r", ".", "repository to scan")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "parallel jobs (default: detected CPUs)")
	cmd.Flags().StringSliceVar(&reports, "reports", nil, "report kinds to enable")
	cmd.Flags().StringSliceVar(&checks, "checks", nil, "checks to run")
	cmd.Flags().StringSliceVar(&levels, "levels", nil, "report levels to enable")
	cmd.Flags().StringSliceVar(&scopes, "scopes", nil, "check scopes to run")
	cmd.Flags().StringSliceVar(&sources, "sources", nil, "check sources to run")
	cmd.Flags().Var(&exitKinds, "exit", "report kinds that fail the run")
	cmd.Flags().StringVar(&reporterName, "reporter", "", "output style (simple|json|format)")
	cmd.Flags().StringVar(&format, "format", "", "template for --reporter=format")
	argparser.AddCommand(cmd)
}

// selectChecks resolves the check/report selection flags into the check
// list and enabled-kind set.
func selectChecks(checks, reports, levels, scopes, sources []string) ([]*check.Info, map[report.Kind]bool, error) {
	var selected []*check.Info
	enabled := make(map[report.Kind]bool)

	for _, name := range checks {
		info, err := check.Lookup(name)
		if err != nil {
			return nil, nil, err
		}
		selected = append(selected, info)
	}

	for _, name := range reports {
		kind, err := report.ParseKind(name)
		if err != nil {
			return nil, nil, err
		}
		enabled[kind] = true
		selected = append(selected, check.ForReport(kind)...)
	}

	for _, name := range levels {
		level, err := report.ParseLevel(name)
		if err != nil {
			return nil, nil, err
		}
		for _, kind := range report.Kinds() {
			if kind.Level() == level {
				enabled[kind] = true
				selected = append(selected, check.ForReport(kind)...)
			}
		}
	}

	if len(scopes) > 0 || len(sources) > 0 {
		if len(selected) == 0 {
			selected = check.All()
		}
		filtered := selected[:0]
		for _, info := range selected {
			if matchScopeSource(info, scopes, sources) {
				filtered = append(filtered, info)
			}
		}
		selected = filtered
	}

	selected = dedupChecks(selected)
	if len(enabled) == 0 {
		enabled = nil
	}
	return selected, enabled, nil
}

func matchScopeSource(info *check.Info, scopes, sources []string) bool {
	if len(scopes) > 0 {
		ok := false
		for _, s := range scopes {
			if info.Scope.String() == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(sources) > 0 {
		ok := false
		for _, s := range sources {
			if info.Source.String() == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// kindsValue is a pflag.Value accumulating report kinds, validating
// each name as it is parsed rather than after flag handling.
type kindsValue []report.Kind

var _ pflag.Value = (*kindsValue)(nil)

func (v *kindsValue) Set(s string) error {
	for _, name := range strings.Split(s, ",") {
		kind, err := report.ParseKind(strings.TrimSpace(name))
		if err != nil {
			return err
		}
		*v = append(*v, kind)
	}
	return nil
}

func (v *kindsValue) String() string {
	names := make([]string, 0, len(*v))
	for _, kind := range *v {
		names = append(names, string(kind))
	}
	return strings.Join(names, ",")
}

func (v *kindsValue) Type() string { return "reportKinds" }

func dedupChecks(checks []*check.Info) []*check.Info {
	seen := make(map[string]bool, len(checks))
	var ret []*check.Info
	for _, info := range checks {
		if !seen[info.Name] {
			seen[info.Name] = true
			ret = append(ret, info)
		}
	}
	return ret
}

// parseTargets converts the target arguments into a restriction: no
// targets match the whole repository, one target is parsed as a
// restriction, and more than one target is rejected.
func parseTargets(args []string) (*atom.Restrict, error) {
	switch len(args) {
	case 0:
		return atom.MatchAll(), nil
	case 1:
		return atom.ParseRestrict(args[0])
	default:
		// TODO: support proper restriction unions
		return nil, fmt.Errorf("multiple targets are not supported yet")
	}
}

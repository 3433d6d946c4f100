// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ebuildkit/ebuildkit/pkg/cliutil"
	"github.com/ebuildkit/ebuildkit/pkg/report"
)

func init() {
	var (
		reports      []string
		levels       []string
		scopes       []string
		reporterName string
		format       string
	)
	cmd := &cobra.Command{
		Use:   "replay [flags] [FILE]",
		Short: "Re-filter previously recorded reports",
		Long: "Reads a stream of JSON reports (one per line) from FILE or stdin, " +
			"applies the report filters, and renders the survivors.",
		Args: cliutil.Args(cobra.MaximumNArgs(1)),
		RunE: func(flags *cobra.Command, args []string) error {
			input := io.Reader(os.Stdin)
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				input = f
			}

			keep, err := replayFilter(reports, levels, scopes)
			if err != nil {
				return cliutil.BadUsage(err)
			}

			reporter, err := cliutil.NewReporter(reporterName, format, os.Stdout)
			if err != nil {
				return cliutil.BadUsage(err)
			}

			scanner := bufio.NewScanner(input)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}
				var rep report.Report
				if err := json.Unmarshal(line, &rep); err != nil {
					return err
				}
				if !keep(&rep) {
					continue
				}
				if err := reporter.Report(&rep); err != nil {
					return err
				}
			}
			if err := scanner.Err(); err != nil {
				return err
			}
			return reporter.Close()
		},
	}
	cmd.Flags().StringSliceVar(&reports, "reports", nil, "report kinds to keep")
	cmd.Flags().StringSliceVar(&levels, "levels", nil, "report levels to keep")
	cmd.Flags().StringSliceVar(&scopes, "scopes", nil, "report scopes to keep")
	cmd.Flags().StringVar(&reporterName, "reporter", "", "output style (simple|json|format)")
	cmd.Flags().StringVar(&format, "format", "", "template for --reporter=format")
	argparser.AddCommand(cmd)
}

func replayFilter(reports, levels, scopes []string) (func(*report.Report) bool, error) {
	kinds := make(map[report.Kind]bool)
	for _, name := range reports {
		kind, err := report.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds[kind] = true
	}
	lvls := make(map[report.Level]bool)
	for _, name := range levels {
		level, err := report.ParseLevel(name)
		if err != nil {
			return nil, err
		}
		lvls[level] = true
	}
	scps := make(map[report.ScopeKind]bool)
	for _, name := range scopes {
		scope, err := report.ParseScopeKind(name)
		if err != nil {
			return nil, err
		}
		scps[scope] = true
	}

	return func(r *report.Report) bool {
		if len(kinds) > 0 && !kinds[r.Kind] {
			return false
		}
		if len(lvls) > 0 && !lvls[r.Level()] {
			return false
		}
		if len(scps) > 0 && !scps[r.Scope.Kind] {
			return false
		}
		return true
	}, nil
}

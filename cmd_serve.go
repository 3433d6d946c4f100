// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"net"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/ebuildkit/ebuildkit/pkg/cliutil"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
	"github.com/ebuildkit/ebuildkit/pkg/scan"
	"github.com/ebuildkit/ebuildkit/pkg/service"
)

func init() {
	var (
		repoPath string
		addr     string
		jobs     int
	)
	cmd := &cobra.Command{
		Use:   "serve [flags]",
		Short: "Serve the scanner over HTTP",
		Long: "Exposes /version, /scan, and /push endpoints; reports stream back as " +
			"one JSON object per line.",
		Args: cliutil.Args(cobra.NoArgs),
		RunE: func(flags *cobra.Command, args []string) error {
			r, err := repo.Open(repoPath)
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			dlog.Infof(flags.Context(), "serving %s on %s", r.Id(), ln.Addr())
			svc := service.New(r, scan.Options{Jobs: jobs})
			return svc.Serve(ln)
		},
	}
	cmd.Flags().StringVarP(&repoPath, "repo", "r", ".", "repository to serve")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8412", "listen address")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "parallel scan jobs")
	argparser.AddCommand(cmd)
}

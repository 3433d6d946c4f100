// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/ebuildkit/ebuildkit/pkg/cliutil"
	"github.com/ebuildkit/ebuildkit/pkg/service"
)

func init() {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the program version",
		Args:  cliutil.Args(cobra.NoArgs),
		RunE: func(flags *cobra.Command, args []string) error {
			version := service.Version
			if version == "dev" {
				if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
					version = info.Main.Version
				}
			}
			fmt.Printf("ebuildkit %s\n", version)
			return nil
		},
	}
	argparser.AddCommand(cmd)
}

// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package check

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ebuildkit/ebuildkit/pkg/report"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
)

func init() {
	register(&Info{
		Name:    "License",
		Scope:   report.ScopeVersion,
		Source:  SourceEbuildPkg,
		Reports: []report.Kind{report.LicenseInvalid},
		New: func(run *Run) any {
			c := &licenseCheck{repo: run.Repo, known: make(map[string]bool)}
			if dirents, err := os.ReadDir(filepath.Join(run.Repo.Path(), "licenses")); err == nil {
				for _, de := range dirents {
					c.known[de.Name()] = true
				}
			}
			return c
		},
	})
}

type licenseCheck struct {
	repo  *repo.Repo
	known map[string]bool
}

func (c *licenseCheck) RunPkg(ctx context.Context, pkg *repo.Pkg, emit Emit) {
	scope := report.VersionScope(c.repo.Id(), pkg.Cpv())
	license := pkg.Metadata().License

	if license.IsEmpty() {
		emit(report.New(report.LicenseInvalid, scope, "missing LICENSE"))
		return
	}

	// without a licenses/ directory there is nothing to resolve against
	if len(c.known) == 0 {
		return
	}

	it := license.IterFlatten()
	for {
		tok, ok := it.Next()
		if !ok {
			break
		}
		if !c.known[string(tok)] {
			emit(report.New(report.LicenseInvalid, scope,
				fmt.Sprintf("unknown license: %s", tok)))
		}
	}
}

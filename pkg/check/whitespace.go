// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package check

import (
	"context"
	"strings"

	"github.com/ebuildkit/ebuildkit/pkg/report"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
)

func init() {
	register(&Info{
		Name:    "Whitespace",
		Scope:   report.ScopeVersion,
		Source:  SourceEbuildRawPkg,
		Reports: []report.Kind{report.WhitespaceInvalid},
		New: func(run *Run) any {
			return &whitespaceCheck{repo: run.Repo}
		},
	})
}

type whitespaceCheck struct {
	repo *repo.Repo
}

func (c *whitespaceCheck) RunRawPkg(ctx context.Context, pkg *repo.RawPkg, emit Emit) {
	scope := report.VersionScope(c.repo.Id(), pkg.Cpv())
	lines := pkg.Lines()
	for i, line := range lines {
		if line != strings.TrimRight(line, " \t") {
			emit(report.New(report.WhitespaceInvalid, scope.WithLine(i+1),
				"trailing whitespace"))
		}
	}
	if len(lines) > 0 && lines[len(lines)-1] != "" {
		emit(report.New(report.WhitespaceInvalid, scope, "missing trailing newline"))
	}
}

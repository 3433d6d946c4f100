// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package check

import (
	"context"
	"fmt"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/report"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
)

func init() {
	register(&Info{
		Name:    "RepoLayout",
		Scope:   report.ScopeRepo,
		Source:  SourceRepo,
		Reports: []report.Kind{report.RepoCategoryEmpty, report.RepoPackageEmpty},
		New: func(run *Run) any {
			return &repoLayoutCheck{repo: run.Repo}
		},
	})
}

type repoLayoutCheck struct {
	repo *repo.Repo
}

func (c *repoLayoutCheck) RunRepo(ctx context.Context, emit Emit) {
	for _, cat := range c.repo.Categories() {
		pkgs := c.repo.Packages(cat)
		if len(pkgs) == 0 {
			emit(report.New(report.RepoCategoryEmpty,
				report.CategoryScope(c.repo.Id(), cat), fmt.Sprintf("%s/", cat)))
			continue
		}
		for _, pkg := range pkgs {
			cpn := atom.Cpn{Category: cat, Package: pkg}
			if len(c.repo.Versions(cat, pkg)) == 0 {
				emit(report.New(report.RepoPackageEmpty,
					report.PackageScope(c.repo.Id(), cpn), "no ebuilds"))
			}
		}
	}
}

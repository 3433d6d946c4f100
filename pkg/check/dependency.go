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
		Name:   "Dependency",
		Scope:  report.ScopeVersion,
		Source: SourceEbuildPkg,
		Reports: []report.Kind{
			report.DependencyDeprecated,
			report.DependencyInvalid,
			report.DependencyRevisionMissing,
		},
		New: func(run *Run) any {
			return &dependencyCheck{repo: run.Repo, deprecated: run.Repo.PackageDeprecated()}
		},
	})
}

type dependencyCheck struct {
	repo       *repo.Repo
	deprecated []*atom.Dep
}

func (c *dependencyCheck) RunPkg(ctx context.Context, pkg *repo.Pkg, emit Emit) {
	scope := report.VersionScope(c.repo.Id(), pkg.Cpv())
	meta := pkg.Metadata()

	for _, key := range meta.Eapi.DependencyKeys() {
		set := meta.DependencySet(key)
		if set == nil {
			continue
		}
		it := set.IterFlatten()
		for {
			d, ok := it.Next()
			if !ok {
				break
			}

			// blockers against the package itself are always wrong
			if d.Blocker() != atom.BlockerNone && d.Cpn() == pkg.Cpv().Cpn() {
				emit(report.New(report.DependencyInvalid, scope,
					fmt.Sprintf("%s: blocker on own package: %s", key, d)))
			}

			// "=" constraints without a revision match one revision
			// only, which is rarely intended
			if d.Op() == atom.OpEqual && !d.Version().Revision().Present() {
				emit(report.New(report.DependencyRevisionMissing, scope,
					fmt.Sprintf("%s: unrevisioned = dependency: %s", key, d)))
			}

			for _, dep := range c.deprecated {
				if dep.Intersects(d) {
					emit(report.New(report.DependencyDeprecated, scope,
						fmt.Sprintf("%s: %s", key, d)))
					break
				}
			}
		}
	}
}

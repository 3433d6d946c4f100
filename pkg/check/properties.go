// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package check

import (
	"context"
	"fmt"

	"github.com/ebuildkit/ebuildkit/pkg/dep"
	"github.com/ebuildkit/ebuildkit/pkg/report"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
)

var knownProperties = map[string]bool{
	"interactive":     true,
	"live":            true,
	"test_network":    true,
	"test_privileged": true,
}

var knownRestricts = map[string]bool{
	"fetch":           true,
	"mirror":          true,
	"bindist":         true,
	"strip":           true,
	"test":            true,
	"userpriv":        true,
	"splitdebug":      true,
	"network-sandbox": true,
}

func init() {
	register(&Info{
		Name:    "Properties",
		Scope:   report.ScopeVersion,
		Source:  SourceEbuildPkg,
		Reports: []report.Kind{report.PropertiesInvalid},
		New: func(run *Run) any {
			return &tokenSetCheck{
				repo:  run.Repo,
				kind:  report.PropertiesInvalid,
				known: knownProperties,
				get: func(p *repo.Pkg) *dep.DepSet[dep.Token] {
					return p.Metadata().Properties
				},
			}
		},
	})
	register(&Info{
		Name:    "Restrict",
		Scope:   report.ScopeVersion,
		Source:  SourceEbuildPkg,
		Reports: []report.Kind{report.RestrictInvalid},
		New: func(run *Run) any {
			return &tokenSetCheck{
				repo:  run.Repo,
				kind:  report.RestrictInvalid,
				known: knownRestricts,
				get: func(p *repo.Pkg) *dep.DepSet[dep.Token] {
					return p.Metadata().Restrict
				},
			}
		},
	})
}

// tokenSetCheck validates the flat tokens of a PROPERTIES- or
// RESTRICT-style set against an allowlist.
type tokenSetCheck struct {
	repo  *repo.Repo
	kind  report.Kind
	known map[string]bool
	get   func(*repo.Pkg) *dep.DepSet[dep.Token]
}

func (c *tokenSetCheck) RunPkg(ctx context.Context, pkg *repo.Pkg, emit Emit) {
	set := c.get(pkg)
	if set == nil {
		return
	}
	scope := report.VersionScope(c.repo.Id(), pkg.Cpv())
	it := set.IterFlatten()
	for {
		tok, ok := it.Next()
		if !ok {
			break
		}
		if !c.known[string(tok)] {
			emit(report.New(c.kind, scope, fmt.Sprintf("unknown token: %s", tok)))
		}
	}
}

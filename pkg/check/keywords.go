// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package check

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/report"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
)

func init() {
	register(&Info{
		Name:    "Keywords",
		Scope:   report.ScopePackage,
		Source:  SourceEbuildPkg,
		Reports: []report.Kind{report.KeywordsUnsorted, report.KeywordsOverlapping},
		New: func(run *Run) any {
			return &keywordsCheck{repo: run.Repo}
		},
	})
}

type keywordsCheck struct {
	repo *repo.Repo
}

func (c *keywordsCheck) RunPkgSet(ctx context.Context, cpn atom.Cpn, pkgs []*repo.Pkg, emit Emit) {
	for _, pkg := range pkgs {
		scope := report.VersionScope(c.repo.Id(), pkg.Cpv())
		keywords := pkg.Metadata().Keywords

		// stable and testing keywords for one arch overlap
		arches := make(map[string][]string)
		for _, kw := range keywords {
			arches[strings.TrimLeft(kw, "~-")] = append(arches[strings.TrimLeft(kw, "~-")], kw)
		}
		for arch, kws := range arches {
			if len(kws) > 1 {
				sort.Strings(kws)
				emit(report.New(report.KeywordsOverlapping, scope,
					fmt.Sprintf("%s: %s", arch, strings.Join(kws, ", "))))
			}
		}

		sorted := append([]string{}, keywords...)
		sort.Slice(sorted, func(i, j int) bool {
			return strings.TrimLeft(sorted[i], "~-") < strings.TrimLeft(sorted[j], "~-")
		})
		for i := range keywords {
			if keywords[i] != sorted[i] {
				emit(report.New(report.KeywordsUnsorted, scope,
					fmt.Sprintf("unsorted KEYWORDS: %s", strings.Join(keywords, " "))))
				break
			}
		}
	}
}

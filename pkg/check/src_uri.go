// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package check

import (
	"context"
	"fmt"
	"strings"

	"github.com/ebuildkit/ebuildkit/pkg/report"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
)

func init() {
	register(&Info{
		Name:    "SrcUri",
		Scope:   report.ScopeVersion,
		Source:  SourceEbuildPkg,
		Reports: []report.Kind{report.UriInvalid},
		New: func(run *Run) any {
			return &srcUriCheck{repo: run.Repo}
		},
	})
}

type srcUriCheck struct {
	repo *repo.Repo
}

func (c *srcUriCheck) RunPkg(ctx context.Context, pkg *repo.Pkg, emit Emit) {
	scope := report.VersionScope(c.repo.Id(), pkg.Cpv())
	fetchable := !hasToken(pkg, "fetch") && !hasToken(pkg, "mirror")

	it := pkg.Metadata().SrcUri.IterFlatten()
	for {
		uri, ok := it.Next()
		if !ok {
			break
		}
		switch {
		case strings.Contains(uri.Uri(), "://"):
			scheme, _, _ := strings.Cut(uri.Uri(), "://")
			switch scheme {
			case "http", "https", "ftp", "mirror":
			default:
				emit(report.New(report.UriInvalid, scope,
					fmt.Sprintf("unsupported protocol: %s", uri)))
			}
		case fetchable:
			// bare filenames are only valid for fetch-restricted pkgs
			emit(report.New(report.UriInvalid, scope,
				fmt.Sprintf("unfetchable: %s", uri)))
		}
	}
}

func hasToken(pkg *repo.Pkg, tok string) bool {
	set := pkg.Metadata().Restrict
	if set == nil {
		return false
	}
	it := set.IterFlatten()
	for {
		t, ok := it.Next()
		if !ok {
			return false
		}
		if string(t) == tok {
			return true
		}
	}
}

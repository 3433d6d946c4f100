// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package check

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/report"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
)

func init() {
	register(&Info{
		Name:    "EbuildName",
		Scope:   report.ScopePackage,
		Source:  SourceCpn,
		Reports: []report.Kind{report.EbuildNameInvalid, report.EbuildVersionsEqual},
		New: func(run *Run) any {
			return &ebuildNameCheck{repo: run.Repo}
		},
	})
}

type ebuildNameCheck struct {
	repo *repo.Repo
}

func (c *ebuildNameCheck) RunCpn(ctx context.Context, cpn atom.Cpn, emit Emit) {
	scope := report.PackageScope(c.repo.Id(), cpn)

	dirents, err := os.ReadDir(c.repo.PkgDir(cpn))
	if err != nil {
		return
	}

	// versions that parse differently but compare equal collide in the
	// metadata cache and the package manager's version selection
	seen := make(map[uint64][]string)
	for _, de := range dirents {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".ebuild") {
			continue
		}
		base := strings.TrimSuffix(name, ".ebuild")
		if !strings.HasPrefix(base, cpn.Package+"-") {
			emit(report.New(report.EbuildNameInvalid, scope,
				fmt.Sprintf("mismatched package name: %s", name)))
			continue
		}
		ver, err := atom.ParseVersion(base[len(cpn.Package)+1:])
		if err != nil {
			emit(report.New(report.EbuildNameInvalid, scope,
				fmt.Sprintf("invalid version: %s", name)))
			continue
		}
		seen[ver.Hash()] = append(seen[ver.Hash()], ver.Text())
	}

	for _, vers := range seen {
		if len(vers) > 1 {
			emit(report.New(report.EbuildVersionsEqual, scope,
				fmt.Sprintf("equivalent versions: %s", strings.Join(vers, ", "))))
		}
	}
}

// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package check

import (
	"context"
	"fmt"

	"github.com/ebuildkit/ebuildkit/pkg/report"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
)

func init() {
	register(&Info{
		Name:    "EapiStatus",
		Scope:   report.ScopeVersion,
		Source:  SourceEbuildPkg,
		Reports: []report.Kind{report.EapiBanned, report.EapiDeprecated},
		New: func(run *Run) any {
			cfg := run.Repo.Config()
			c := &eapiStatusCheck{
				repo:       run.Repo,
				banned:     make(map[string]bool, len(cfg.EapisBanned)),
				deprecated: make(map[string]bool, len(cfg.EapisDeprecated)),
			}
			for _, id := range cfg.EapisBanned {
				c.banned[id] = true
			}
			for _, id := range cfg.EapisDeprecated {
				c.deprecated[id] = true
			}
			return c
		},
	})
}

type eapiStatusCheck struct {
	repo       *repo.Repo
	banned     map[string]bool
	deprecated map[string]bool
}

func (c *eapiStatusCheck) RunPkg(ctx context.Context, pkg *repo.Pkg, emit Emit) {
	scope := report.VersionScope(c.repo.Id(), pkg.Cpv())
	id := pkg.Metadata().Eapi.Id()
	switch {
	case c.banned[id]:
		emit(report.New(report.EapiBanned, scope, fmt.Sprintf("EAPI %s", id)))
	case c.deprecated[id]:
		emit(report.New(report.EapiDeprecated, scope, fmt.Sprintf("EAPI %s", id)))
	}
}

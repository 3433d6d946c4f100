// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package check

import (
	"context"
	"errors"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/report"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
)

func init() {
	register(&Info{
		Name:    "Metadata",
		Scope:   report.ScopeVersion,
		Source:  SourceCpv,
		Reports: []report.Kind{report.MetadataError},
		New: func(run *Run) any {
			return &metadataCheck{repo: run.Repo}
		},
	})
}

// metadataCheck surfaces shell-collaborator and parse failures as
// reports instead of aborting the run.
type metadataCheck struct {
	repo *repo.Repo
}

func (c *metadataCheck) RunCpv(ctx context.Context, cpv *atom.Cpv, emit Emit) {
	if _, err := c.repo.Metadata(ctx, cpv); err != nil {
		msg := err.Error()
		var invalid *repo.InvalidPkgError
		if errors.As(err, &invalid) {
			msg = invalid.Err.Error()
		}
		emit(report.New(report.MetadataError,
			report.VersionScope(c.repo.Id(), cpv), msg))
	}
}

// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package check

import (
	"context"

	"github.com/ebuildkit/ebuildkit/pkg/report"
)

func init() {
	register(&Info{
		Name:     "Ignore",
		Scope:    report.ScopeRepo,
		Source:   SourceRepo,
		Reports:  []report.Kind{report.IgnoreUnused, report.IgnoreInvalid},
		Finalize: true,
		New: func(run *Run) any {
			return &ignoreCheck{run: run}
		},
	})
}

// ignoreCheck surfaces ignore directives that never suppressed a report
// during the run.  RunRepo populates the ignore cache for the run's
// restriction; the reports come from the finalize step, since the
// directives must be judged after the last report has been filtered.
type ignoreCheck struct {
	run *Run
}

func (c *ignoreCheck) RunRepo(ctx context.Context, emit Emit) {
	if c.run.Ignore != nil {
		c.run.Ignore.Populate(c.run.Restrict)
	}
}

func (c *ignoreCheck) Finish(ctx context.Context, emit Emit) {
	if c.run.Ignore == nil {
		return
	}
	for _, r := range c.run.Ignore.Invalid() {
		emit(r)
	}
	for _, r := range c.run.Ignore.Unused() {
		emit(r)
	}
}

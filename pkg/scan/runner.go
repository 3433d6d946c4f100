// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"context"
	"fmt"
	"sort"

	"github.com/datawire/dlib/dlog"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/check"
	"github.com/ebuildkit/ebuildkit/pkg/report"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
)

// A Target is the unit of work handed to checks: one package, one
// release, or the repository itself.
type Target struct {
	Cpn  *atom.Cpn
	Cpv  *atom.Cpv
	Repo bool
}

// String implements fmt.Stringer.
func (t Target) String() string {
	switch {
	case t.Repo:
		return "repo"
	case t.Cpv != nil:
		return t.Cpv.String()
	default:
		return t.Cpn.String()
	}
}

// A boundCheck pairs a static check record with its per-run instance.
type boundCheck struct {
	info *check.Info
	inst any
}

// A SyncCheckRunner partitions the selected checks by source kind into
// per-source sub-runners sharing one immutable repository view.
type SyncCheckRunner struct {
	repo     *repo.Repo
	restrict *atom.Restrict

	// per-version and per-package-set checks for the metadata-parsed
	// source
	pkgChecks    []boundCheck
	pkgSetChecks []boundCheck
	// ditto for the raw-text source
	rawPkgChecks []boundCheck

	cpnChecks  []boundCheck
	cpvChecks  []boundCheck
	repoChecks []boundCheck

	finishers []boundCheck
}

func newSyncCheckRunner(run *check.Run, restrict *atom.Restrict, checks []*check.Info) *SyncCheckRunner {
	r := &SyncCheckRunner{repo: run.Repo, restrict: restrict}
	for _, info := range checks {
		bound := boundCheck{info: info, inst: info.New(run)}
		switch info.Source {
		case check.SourceEbuildPkg:
			if info.Scope == report.ScopeVersion {
				r.pkgChecks = append(r.pkgChecks, bound)
			} else {
				r.pkgSetChecks = append(r.pkgSetChecks, bound)
			}
		case check.SourceEbuildRawPkg:
			r.rawPkgChecks = append(r.rawPkgChecks, bound)
		case check.SourceCpn:
			r.cpnChecks = append(r.cpnChecks, bound)
		case check.SourceCpv:
			r.cpvChecks = append(r.cpvChecks, bound)
		case check.SourceRepo:
			r.repoChecks = append(r.repoChecks, bound)
		}
		if info.Finalize {
			r.finishers = append(r.finishers, bound)
		}
	}
	return r
}

// checks returns every bound check.
func (r *SyncCheckRunner) checks() []boundCheck {
	var ret []boundCheck
	for _, group := range [][]boundCheck{
		r.pkgChecks, r.pkgSetChecks, r.rawPkgChecks,
		r.cpnChecks, r.cpvChecks, r.repoChecks,
	} {
		ret = append(ret, group...)
	}
	return ret
}

// safeRun traps panicking checks, converting them into CheckError
// reports so one broken check can't take down the run.
func safeRun(name string, scope report.Scope, emit check.Emit, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			emit(report.New(report.CheckError, scope, fmt.Sprintf("%s: panic: %v", name, p)))
		}
	}()
	fn()
}

// runChecks runs every applicable check against one target, used by the
// parallel-by-package pipeline.  Per-package-set checks run only after
// all per-version checks for the target completed and observe the fully
// materialized package list.
func (r *SyncCheckRunner) runChecks(ctx context.Context, t Target, emit check.Emit) {
	if t.Repo {
		scope := report.RepoScope(r.repo.Id())
		for _, bc := range r.repoChecks {
			if c, ok := bc.inst.(check.RepoCheck); ok {
				safeRun(bc.info.Name, scope, emit, func() { c.RunRepo(ctx, emit) })
			}
		}
		return
	}

	cpn := *t.Cpn
	pkgScope := report.PackageScope(r.repo.Id(), cpn)
	cpvs := r.repo.CpvsOf(cpn, r.restrict)

	// metadata-parsed source
	if len(r.pkgChecks) > 0 || len(r.pkgSetChecks) > 0 {
		pkgs := r.materialize(ctx, cpvs)
		for _, pkg := range pkgs {
			scope := report.VersionScope(r.repo.Id(), pkg.Cpv())
			for _, bc := range r.pkgChecks {
				if c, ok := bc.inst.(check.PkgCheck); ok {
					pkg := pkg
					safeRun(bc.info.Name, scope, emit, func() { c.RunPkg(ctx, pkg, emit) })
				}
			}
		}
		if len(pkgs) > 0 {
			for _, bc := range r.pkgSetChecks {
				if c, ok := bc.inst.(check.PkgSetCheck); ok {
					safeRun(bc.info.Name, pkgScope, emit, func() { c.RunPkgSet(ctx, cpn, pkgs, emit) })
				}
			}
		}
	}

	// raw-text source
	for _, cpv := range cpvs {
		if len(r.rawPkgChecks) == 0 {
			break
		}
		raw, err := r.repo.RawPkg(cpv)
		if err != nil {
			dlog.Warnf(ctx, "%s: skipping raw checks: %v", cpv, err)
			continue
		}
		scope := report.VersionScope(r.repo.Id(), cpv)
		for _, bc := range r.rawPkgChecks {
			if c, ok := bc.inst.(check.RawPkgCheck); ok {
				safeRun(bc.info.Name, scope, emit, func() { c.RunRawPkg(ctx, raw, emit) })
			}
		}
	}

	for _, bc := range r.cpnChecks {
		if c, ok := bc.inst.(check.CpnCheck); ok {
			safeRun(bc.info.Name, pkgScope, emit, func() { c.RunCpn(ctx, cpn, emit) })
		}
	}

	for _, cpv := range cpvs {
		cpv := cpv
		scope := report.VersionScope(r.repo.Id(), cpv)
		for _, bc := range r.cpvChecks {
			if c, ok := bc.inst.(check.CpvCheck); ok {
				safeRun(bc.info.Name, scope, emit, func() { c.RunCpv(ctx, cpv, emit) })
			}
		}
	}
}

// materialize loads the metadata-parsed packages for a target.
// Per-release failures are logged and skipped here; reporting them is
// the Metadata check's job, keeping one MetadataError per broken
// release no matter how many checks wanted the package.
func (r *SyncCheckRunner) materialize(ctx context.Context, cpvs []*atom.Cpv) []*repo.Pkg {
	var pkgs []*repo.Pkg
	for _, cpv := range cpvs {
		pkg, err := r.repo.Pkg(ctx, cpv)
		if err != nil {
			dlog.Warnf(ctx, "%s: skipping pkg checks: %v", cpv, err)
			continue
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs
}

// runCheck runs one check against one target, used by the
// parallel-by-check pipeline.
func (r *SyncCheckRunner) runCheck(ctx context.Context, bc boundCheck, t Target, emit check.Emit) {
	switch {
	case t.Repo:
		scope := report.RepoScope(r.repo.Id())
		if c, ok := bc.inst.(check.RepoCheck); ok {
			safeRun(bc.info.Name, scope, emit, func() { c.RunRepo(ctx, emit) })
		}

	case t.Cpv != nil:
		scope := report.VersionScope(r.repo.Id(), t.Cpv)
		switch c := bc.inst.(type) {
		case check.PkgCheck:
			pkg, err := r.repo.Pkg(ctx, t.Cpv)
			if err != nil {
				// the Metadata check owns reporting source failures
				dlog.Warnf(ctx, "%s: skipping %s: %v", t.Cpv, bc.info.Name, err)
				return
			}
			safeRun(bc.info.Name, scope, emit, func() { c.RunPkg(ctx, pkg, emit) })
		case check.RawPkgCheck:
			raw, err := r.repo.RawPkg(t.Cpv)
			if err != nil {
				dlog.Warnf(ctx, "%s: skipping %s: %v", t.Cpv, bc.info.Name, err)
				return
			}
			safeRun(bc.info.Name, scope, emit, func() { c.RunRawPkg(ctx, raw, emit) })
		case check.CpvCheck:
			safeRun(bc.info.Name, scope, emit, func() { c.RunCpv(ctx, t.Cpv, emit) })
		}

	default:
		cpn := *t.Cpn
		scope := report.PackageScope(r.repo.Id(), cpn)
		switch c := bc.inst.(type) {
		case check.PkgSetCheck:
			pkgs := r.materialize(ctx, r.repo.CpvsOf(cpn, r.restrict))
			if len(pkgs) > 0 {
				safeRun(bc.info.Name, scope, emit, func() { c.RunPkgSet(ctx, cpn, pkgs, emit) })
			}
		case check.CpnCheck:
			safeRun(bc.info.Name, scope, emit, func() { c.RunCpn(ctx, cpn, emit) })
		}
	}
}

// finish runs the finalize pass, one call per finalizing check.
func (r *SyncCheckRunner) finish(ctx context.Context, emit check.Emit) {
	scope := report.RepoScope(r.repo.Id())
	for _, bc := range r.finishers {
		if c, ok := bc.inst.(check.Finisher); ok {
			safeRun(bc.info.Name, scope, emit, func() { c.Finish(ctx, emit) })
		}
	}
}

func sortReports(reports []*report.Report) {
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Cmp(reports[j]) < 0
	})
}

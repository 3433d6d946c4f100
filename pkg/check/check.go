// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

// Package check holds the registry of scan checks.  A check is a static
// record declaring its scope, the source it consumes, the report kinds
// it can produce, and its context requirements; instances are built per
// run and dispatched by the scan engine.
package check

import (
	"context"
	"fmt"
	"sort"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/ignore"
	"github.com/ebuildkit/ebuildkit/pkg/report"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
)

// SourceKind names the input a check consumes.
type SourceKind int

const (
	// SourceEbuildPkg feeds metadata-parsed packages.
	SourceEbuildPkg SourceKind = iota
	// SourceEbuildRawPkg feeds raw build-file text.
	SourceEbuildRawPkg
	// SourceCpn feeds bare (category, package) identifiers.
	SourceCpn
	// SourceCpv feeds bare release identifiers.
	SourceCpv
	// SourceRepo feeds the repository itself.
	SourceRepo
)

// String implements fmt.Stringer.
func (s SourceKind) String() string {
	switch s {
	case SourceEbuildPkg:
		return "ebuild-pkg"
	case SourceEbuildRawPkg:
		return "ebuild-raw-pkg"
	case SourceCpn:
		return "cpn"
	case SourceCpv:
		return "cpv"
	case SourceRepo:
		return "repo"
	default:
		panic(fmt.Sprintf("invalid SourceKind: %d", int(s)))
	}
}

// ParseSourceKind resolves a source name.
func ParseSourceKind(s string) (SourceKind, error) {
	for _, kind := range []SourceKind{
		SourceEbuildPkg, SourceEbuildRawPkg, SourceCpn, SourceCpv, SourceRepo,
	} {
		if kind.String() == s {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown source kind: %q", s)
}

// A Run is the per-scan context handed to check instances.
type Run struct {
	// Repo is the shared, immutable repository view.
	Repo *repo.Repo
	// Restrict bounds the run's targets.
	Restrict *atom.Restrict
	// Ignore is the scan's ignore cache, consulted by the Ignore check
	// at finalize time.
	Ignore *ignore.Cache
}

// Emit delivers a produced report to the scan's filter chain.
type Emit func(*report.Report)

// The per-source runner interfaces.  A check instance implements the
// ones matching its scope.
type (
	// PkgCheck runs against one metadata-parsed release.
	PkgCheck interface {
		RunPkg(ctx context.Context, pkg *repo.Pkg, emit Emit)
	}
	// PkgSetCheck runs against a package's full release list.
	PkgSetCheck interface {
		RunPkgSet(ctx context.Context, cpn atom.Cpn, pkgs []*repo.Pkg, emit Emit)
	}
	// RawPkgCheck runs against one raw build file.
	RawPkgCheck interface {
		RunRawPkg(ctx context.Context, pkg *repo.RawPkg, emit Emit)
	}
	// CpnCheck runs against a bare package identifier.
	CpnCheck interface {
		RunCpn(ctx context.Context, cpn atom.Cpn, emit Emit)
	}
	// CpvCheck runs against a bare release identifier.
	CpvCheck interface {
		RunCpv(ctx context.Context, cpv *atom.Cpv, emit Emit)
	}
	// RepoCheck runs against the repository.
	RepoCheck interface {
		RunRepo(ctx context.Context, emit Emit)
	}
	// Finisher runs once after every target has drained.
	Finisher interface {
		Finish(ctx context.Context, emit Emit)
	}
)

// Info is the static check record.
type Info struct {
	Name    string
	Scope   report.ScopeKind
	Source  SourceKind
	Reports []report.Kind

	// Optional checks only run when selected explicitly.
	Optional bool
	// OverlayOnly checks require the repository to declare masters.
	OverlayOnly bool
	// GentooOnly checks run only in the canonical repository.
	GentooOnly bool
	// GentooInherited checks require gentoo in the master chain.
	GentooInherited bool
	// Finalize marks checks needing a post-pass after all targets.
	Finalize bool

	// New builds a per-run instance implementing the runner interfaces
	// matching Scope and Source.
	New func(run *Run) any
}

// String implements fmt.Stringer.
func (i *Info) String() string { return i.Name }

// Enabled reports whether the check runs in the given repository
// context by default.
func (i *Info) Enabled(r *repo.Repo) bool {
	switch {
	case i.Optional:
		return false
	case i.OverlayOnly && !r.IsOverlay():
		return false
	case i.GentooOnly && !r.IsGentoo():
		return false
	case i.GentooInherited && !r.InheritsGentoo():
		return false
	default:
		return true
	}
}

var registry = make(map[string]*Info)

func register(info *Info) {
	if _, dup := registry[info.Name]; dup {
		panic(fmt.Sprintf("duplicate check: %s", info.Name))
	}
	registry[info.Name] = info
}

// All returns every registered check sorted by name.
func All() []*Info {
	ret := make([]*Info, 0, len(registry))
	for _, info := range registry {
		ret = append(ret, info)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })
	return ret
}

// Lookup resolves a check by name.
func Lookup(name string) (*Info, error) {
	info, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown check: %q", name)
	}
	return info, nil
}

// ForReport returns the checks able to produce the given report kind.
func ForReport(kind report.Kind) []*Info {
	var ret []*Info
	for _, info := range All() {
		for _, k := range info.Reports {
			if k == kind {
				ret = append(ret, info)
				break
			}
		}
	}
	return ret
}

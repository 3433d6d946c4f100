// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package check

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/manifest"
	"github.com/ebuildkit/ebuildkit/pkg/report"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
)

func init() {
	register(&Info{
		Name:   "Manifest",
		Scope:  report.ScopePackage,
		Source: SourceEbuildPkg,
		Reports: []report.Kind{
			report.ManifestInvalid,
			report.ManifestConflict,
			report.ManifestCollide,
		},
		Finalize: true,
		New: func(run *Run) any {
			return &manifestCheck{
				repo: run.Repo,
				seen: make(map[string][]distUse),
				thin: run.Repo.Config().ThinManifests,
			}
		},
	})
}

// distUse records one package declaring a distfile, for cross-package
// conflict detection at finalize time.
type distUse struct {
	cpn    atom.Cpn
	hashes string
}

type manifestCheck struct {
	repo *repo.Repo
	thin bool

	mu   sync.Mutex
	seen map[string][]distUse
}

func (c *manifestCheck) RunPkgSet(ctx context.Context, cpn atom.Cpn, pkgs []*repo.Pkg, emit Emit) {
	scope := report.PackageScope(c.repo.Id(), cpn)
	path := filepath.Join(c.repo.PkgDir(cpn), "Manifest")

	// collect the distfiles the package's SRC_URI realizes to
	wanted := make(map[string]bool)
	for _, pkg := range pkgs {
		it := pkg.Metadata().SrcUri.IterFlatten()
		for {
			uri, ok := it.Next()
			if !ok {
				break
			}
			wanted[uri.Filename()] = true
		}
	}

	m, err := manifest.ParseFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if len(wanted) > 0 {
				emit(report.New(report.ManifestInvalid, scope, "missing Manifest"))
			}
			return
		}
		emit(report.New(report.ManifestInvalid, scope, err.Error()))
		return
	}

	declared := make(map[string]bool)
	for _, e := range m.Entries() {
		if c.thin && e.Kind != manifest.Dist {
			emit(report.New(report.ManifestInvalid, scope,
				fmt.Sprintf("thin manifest with %s entry: %s", e.Kind, e.Name)))
		}
		if e.Kind != manifest.Dist {
			continue
		}
		declared[e.Name] = true
		if !wanted[e.Name] {
			emit(report.New(report.ManifestInvalid, scope,
				fmt.Sprintf("unknown distfile: %s", e.Name)))
		}

		c.mu.Lock()
		c.seen[e.Name] = append(c.seen[e.Name], distUse{cpn: cpn, hashes: hashKey(e)})
		c.mu.Unlock()
	}

	for name := range wanted {
		if !declared[name] {
			emit(report.New(report.ManifestConflict, scope,
				fmt.Sprintf("distfile missing from Manifest: %s", name)))
		}
	}
}

// Finish reports distfiles shared across packages with disagreeing
// checksums.
func (c *manifestCheck) Finish(ctx context.Context, emit Emit) {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.seen))
	for name := range c.seen {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		uses := c.seen[name]
		first := uses[0]
		var conflicting []string
		for _, use := range uses[1:] {
			if use.hashes != first.hashes {
				conflicting = append(conflicting, use.cpn.String())
			}
		}
		if len(conflicting) > 0 {
			emit(report.New(report.ManifestCollide, report.PackageScope(c.repo.Id(), first.cpn),
				fmt.Sprintf("%s: conflicting checksums with %s",
					name, strings.Join(conflicting, ", "))))
		}
	}
}

func hashKey(e *manifest.Entry) string {
	kinds := make([]string, 0, len(e.Hashes))
	for k := range e.Hashes {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds)+1)
	parts = append(parts, fmt.Sprint(e.Size))
	for _, k := range kinds {
		parts = append(parts, k+":"+e.Hashes[manifest.HashKind(k)])
	}
	return strings.Join(parts, " ")
}

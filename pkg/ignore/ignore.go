// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

// Package ignore implements scoped report suppression: per-ebuild
// "# ebuildkit-ignore:" head comments and ".ebuildkit-ignore" files at
// the package, category, and repo levels.  The cache populates lazily
// during a scan and records which directives actually suppressed
// something so the unused ones can be reported afterwards.
package ignore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/report"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
)

// CommentPrefix introduces a per-ebuild ignore directive.
const CommentPrefix = "# ebuildkit-ignore:"

// FileName is the per-directory ignore file.
const FileName = ".ebuildkit-ignore"

// A Directive is one parsed ignore entry.
type Directive struct {
	// Line is the 1-based line the directive came from.
	Line int
	// Text is the directive as written.
	Text string
	// Kinds are the report kinds the directive suppresses.
	Kinds []report.Kind

	used bool
}

// parseDirectiveList expands one comma-separated directive list.  Each
// element is a report kind or a "@level" set.
func parseDirectiveList(text string, line int) (*Directive, error) {
	d := &Directive{Line: line, Text: strings.TrimSpace(text)}
	for _, tok := range strings.Split(text, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if level, ok := strings.CutPrefix(tok, "@"); ok {
			lvl, err := report.ParseLevel(level)
			if err != nil {
				return nil, err
			}
			for _, kind := range report.Kinds() {
				if kind.Level() == lvl {
					d.Kinds = append(d.Kinds, kind)
				}
			}
			continue
		}
		kind, err := report.ParseKind(tok)
		if err != nil {
			return nil, err
		}
		d.Kinds = append(d.Kinds, kind)
	}
	if len(d.Kinds) == 0 {
		return nil, fmt.Errorf("empty ignore directive")
	}
	return d, nil
}

type entry struct {
	scope report.Scope
	// byKind indexes the directives that would suppress each kind.
	byKind     map[report.Kind][]*Directive
	directives []*Directive
	invalid    []*report.Report
}

// A Cache is the lazily populated, concurrency-safe ignore lookup for
// one repository.
type Cache struct {
	repo *repo.Repo

	mu      sync.Mutex
	entries map[string]*entry // keyed by scope location
}

// NewCache builds an empty ignore cache for a repository.
func NewCache(r *repo.Repo) *Cache {
	return &Cache{repo: r, entries: make(map[string]*entry)}
}

// Populate loads the ignore data for every scope the restriction
// covers, so directives in untouched files still count as present (and
// potentially unused) after a run.
func (c *Cache) Populate(restrict *atom.Restrict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.repo.Id()
	c.entryLocked(report.RepoScope(id))
	for _, cat := range c.repo.Categories() {
		if !restrict.MatchesCategory(cat) {
			continue
		}
		c.entryLocked(report.CategoryScope(id, cat))
		for _, cpn := range c.repo.Cpns(atom.RestrictCategory(cat)) {
			if !restrict.MatchesCpn(cpn) {
				continue
			}
			c.entryLocked(report.PackageScope(id, cpn))
			for _, cpv := range c.repo.CpvsOf(cpn, restrict) {
				c.entryLocked(report.VersionScope(id, cpv))
			}
		}
	}
}

// IsIgnored reports whether a report is suppressed at its scope or a
// wider one.  Lookup walks Repo → Category → Package → Version; the
// first matching directive wins and is marked used.
func (c *Cache) IsIgnored(r *report.Report) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, scope := range wideningScopes(r.Scope) {
		e := c.entryLocked(scope)
		for _, d := range e.byKind[r.Kind] {
			d.used = true
			return true
		}
	}
	return false
}

// wideningScopes lists the scopes shadowing a report's scope, widest
// first.
func wideningScopes(s report.Scope) []report.Scope {
	scopes := []report.Scope{report.RepoScope(s.Repo)}
	if s.Kind <= report.ScopeCategory && s.Category != "" {
		scopes = append(scopes, report.Scope{
			Kind: report.ScopeCategory, Repo: s.Repo, Category: s.Category,
		})
	}
	if s.Kind <= report.ScopePackage && s.Package != "" {
		scopes = append(scopes, report.Scope{
			Kind: report.ScopePackage, Repo: s.Repo,
			Category: s.Category, Package: s.Package,
		})
	}
	if s.Kind == report.ScopeVersion {
		scopes = append(scopes, report.Scope{
			Kind: report.ScopeVersion, Repo: s.Repo,
			Category: s.Category, Package: s.Package, Version: s.Version,
		})
	}
	return scopes
}

func (c *Cache) entryLocked(scope report.Scope) *entry {
	key := scope.Kind.String() + ":" + scope.String()
	if e, ok := c.entries[key]; ok {
		return e
	}
	e := c.load(scope)
	c.entries[key] = e
	return e
}

// load reads the ignore data for one scope: build-file head comments
// for version scopes, ignore files for the rest.
func (c *Cache) load(scope report.Scope) *entry {
	e := &entry{scope: scope, byKind: make(map[report.Kind][]*Directive)}

	add := func(text string, line int) {
		d, err := parseDirectiveList(text, line)
		if err != nil {
			e.invalid = append(e.invalid, report.New(
				report.IgnoreInvalid, scope.WithLine(line), err.Error()))
			return
		}
		e.directives = append(e.directives, d)
		for _, kind := range d.Kinds {
			e.byKind[kind] = append(e.byKind[kind], d)
		}
	}

	if scope.Kind == report.ScopeVersion {
		path := filepath.Join(c.repo.Path(), scope.Category, scope.Package,
			scope.Package+"-"+scope.Version+".ebuild")
		data, err := os.ReadFile(path)
		if err != nil {
			return e
		}
		// only the comment block at the file head counts
		for i, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if text, ok := strings.CutPrefix(line, CommentPrefix); ok {
				add(text, i+1)
			} else if line != "" && !strings.HasPrefix(line, "#") {
				break
			}
		}
		return e
	}

	dir := c.repo.Path()
	switch scope.Kind {
	case report.ScopeCategory:
		dir = filepath.Join(dir, scope.Category)
	case report.ScopePackage:
		dir = filepath.Join(dir, scope.Category, scope.Package)
	}
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return e
	}
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		add(line, i+1)
	}
	return e
}

// Invalid returns the IgnoreInvalid reports produced while populating
// the cache.
func (c *Cache) Invalid() []*report.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ret []*report.Report
	for _, e := range c.entries {
		ret = append(ret, e.invalid...)
	}
	sortReports(ret)
	return ret
}

// Unused returns one IgnoreUnused report per directive that never
// suppressed anything during the run.
func (c *Cache) Unused() []*report.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ret []*report.Report
	for _, e := range c.entries {
		for _, d := range e.directives {
			if !d.used {
				ret = append(ret, report.New(
					report.IgnoreUnused, e.scope.WithLine(d.Line), d.Text))
			}
		}
	}
	sortReports(ret)
	return ret
}

func sortReports(reports []*report.Report) {
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Cmp(reports[j]) < 0
	})
}

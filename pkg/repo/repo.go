// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

// Package repo materializes a filesystem view of an ebuild repository:
// category/package/version enumeration, per-package metadata generated
// through the shell collaborator, and the on-disk metadata cache.
package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/shell"
)

// A Repo is an ebuild repository rooted at a directory.  The view is
// immutable and safe for concurrent use; metadata materializes lazily
// per Cpv with single-writer discipline.
type Repo struct {
	root    string
	config  *Config
	sourcer shell.Sourcer

	// cache maps Cpv strings to metadata entries populated at most
	// once each.
	cache sync.Map // string -> *metadataEntry

	// deprecated caches profiles/package.deprecated.
	deprecatedOnce sync.Once
	deprecated     []*atom.Dep
}

type metadataEntry struct {
	once sync.Once
	meta *Metadata
	err  error
}

// Option configures a Repo.
type Option func(*Repo)

// WithSourcer overrides the shell collaborator used for metadata
// generation.
func WithSourcer(s shell.Sourcer) Option {
	return func(r *Repo) { r.sourcer = s }
}

// Open loads the repository rooted at root.
func Open(root string, opts ...Option) (*Repo, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", root)
	}

	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}

	r := &Repo{
		root:    root,
		config:  cfg,
		sourcer: shell.NewPool(&shell.BashSourcer{}, 4),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Path returns the repository root.
func (r *Repo) Path() string { return r.root }

// Id returns the repository name.
func (r *Repo) Id() string { return r.config.Id }

// Config returns the repository configuration.
func (r *Repo) Config() *Config { return r.config }

// String implements fmt.Stringer.
func (r *Repo) String() string { return r.config.Id }

// IsGentoo reports whether this is the canonical repository.
func (r *Repo) IsGentoo() bool { return r.config.Id == "gentoo" }

// InheritsGentoo reports whether the master chain includes the
// canonical repository.
func (r *Repo) InheritsGentoo() bool {
	return r.IsGentoo() || r.config.HasMaster("gentoo")
}

// IsOverlay reports whether the repository declares masters.
func (r *Repo) IsOverlay() bool { return len(r.config.Masters) > 0 }

// Categories returns the ordered category names: the profile's
// categories file when present, otherwise the valid category
// directories under the root.
func (r *Repo) Categories() []string {
	if len(r.config.Categories) > 0 {
		cats := append([]string{}, r.config.Categories...)
		sort.Strings(cats)
		return cats
	}

	dirents, err := os.ReadDir(r.root)
	if err != nil {
		return nil
	}
	var cats []string
	for _, de := range dirents {
		name := de.Name()
		if !de.IsDir() || !atom.ValidCategory(name) || skippedDir(name) {
			continue
		}
		cats = append(cats, name)
	}
	sort.Strings(cats)
	return cats
}

// skippedDir filters repository infrastructure directories out of
// category enumeration.
func skippedDir(name string) bool {
	switch name {
	case "eclass", "licenses", "metadata", "profiles", "distfiles", "files", "scripts":
		return true
	}
	return strings.HasPrefix(name, ".")
}

// Packages returns the ordered package names under a category.
func (r *Repo) Packages(cat string) []string {
	dirents, err := os.ReadDir(filepath.Join(r.root, cat))
	if err != nil {
		return nil
	}
	var pkgs []string
	for _, de := range dirents {
		name := de.Name()
		if !de.IsDir() || !atom.ValidPackageName(name) || strings.HasPrefix(name, ".") {
			continue
		}
		pkgs = append(pkgs, name)
	}
	sort.Strings(pkgs)
	return pkgs
}

// Versions returns the ordered versions parsed from the package's
// "<pkg>-<ver>.ebuild" files.
func (r *Repo) Versions(cat, pkg string) []*atom.Version {
	dirents, err := os.ReadDir(filepath.Join(r.root, cat, pkg))
	if err != nil {
		return nil
	}
	var vers []*atom.Version
	for _, de := range dirents {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".ebuild") {
			continue
		}
		base := strings.TrimSuffix(name, ".ebuild")
		if !strings.HasPrefix(base, pkg+"-") {
			continue
		}
		ver, err := atom.ParseVersion(base[len(pkg)+1:])
		if err != nil {
			continue
		}
		vers = append(vers, ver)
	}
	sort.Slice(vers, func(i, j int) bool { return vers[i].Cmp(vers[j]) < 0 })
	return vers
}

// Cpns returns the ordered (category, package) pairs matching the
// restriction.
func (r *Repo) Cpns(restrict *atom.Restrict) []atom.Cpn {
	var ret []atom.Cpn
	for _, cat := range r.Categories() {
		if !restrict.MatchesCategory(cat) {
			continue
		}
		for _, pkg := range r.Packages(cat) {
			cpn := atom.Cpn{Category: cat, Package: pkg}
			if restrict.MatchesCpn(cpn) {
				ret = append(ret, cpn)
			}
		}
	}
	return ret
}

// Cpvs returns the ordered releases matching the restriction.
func (r *Repo) Cpvs(restrict *atom.Restrict) []*atom.Cpv {
	var ret []*atom.Cpv
	for _, cpn := range r.Cpns(restrict) {
		ret = append(ret, r.CpvsOf(cpn, restrict)...)
	}
	return ret
}

// CpvsOf returns the ordered releases of one package matching the
// restriction.
func (r *Repo) CpvsOf(cpn atom.Cpn, restrict *atom.Restrict) []*atom.Cpv {
	var ret []*atom.Cpv
	for _, ver := range r.Versions(cpn.Category, cpn.Package) {
		cpv := &atom.Cpv{Category: cpn.Category, Package: cpn.Package, Version: ver}
		if restrict == nil || restrict.Matches(cpv) {
			ret = append(ret, cpv)
		}
	}
	return ret
}

// EbuildPath returns the build file path for a release.
func (r *Repo) EbuildPath(cpv *atom.Cpv) string {
	return filepath.Join(r.root, cpv.Category, cpv.Package, cpv.PF()+".ebuild")
}

// PkgDir returns the package directory for a Cpn.
func (r *Repo) PkgDir(cpn atom.Cpn) string {
	return filepath.Join(r.root, cpn.Category, cpn.Package)
}

// EclassDir returns the repository's eclass directory.
func (r *Repo) EclassDir() string {
	return filepath.Join(r.root, "eclass")
}

// EclassPath returns the path of a named eclass.
func (r *Repo) EclassPath(name string) string {
	return filepath.Join(r.EclassDir(), name+".eclass")
}

// CacheDir returns the metadata cache root.
func (r *Repo) CacheDir() string {
	return filepath.Join(r.root, "metadata", "md5-cache")
}

// CachePath returns the metadata cache file for a release.
func (r *Repo) CachePath(cpv *atom.Cpv) string {
	return filepath.Join(r.CacheDir(), cpv.Category, cpv.PF())
}

// Metadata returns the release's metadata, generating and caching it on
// first use.  Concurrent callers for the same Cpv share one generation.
func (r *Repo) Metadata(ctx context.Context, cpv *atom.Cpv) (*Metadata, error) {
	key := cpv.String()
	entryAny, _ := r.cache.LoadOrStore(key, &metadataEntry{})
	entry := entryAny.(*metadataEntry)
	entry.once.Do(func() {
		entry.meta, entry.err = r.generate(ctx, cpv, true)
	})
	return entry.meta, entry.err
}

// InvalidateMetadata drops the in-memory metadata entry for a release.
func (r *Repo) InvalidateMetadata(cpv *atom.Cpv) {
	r.cache.Delete(cpv.String())
}

// PackageDeprecated returns the profiles/package.deprecated entries.
func (r *Repo) PackageDeprecated() []*atom.Dep {
	r.deprecatedOnce.Do(func() {
		lines, err := readLines(filepath.Join(r.root, "profiles", "package.deprecated"))
		if err != nil {
			return
		}
		for _, line := range lines {
			if d, err := atom.ParseDepAny(line); err == nil {
				r.deprecated = append(r.deprecated, d)
			}
		}
	})
	return r.deprecated
}

// An InvalidPkgError wraps a failure to produce usable metadata for a
// release.
type InvalidPkgError struct {
	Cpv *atom.Cpv
	Err error
}

func (e *InvalidPkgError) Error() string {
	return fmt.Sprintf("invalid pkg: %s: %v", e.Cpv, e.Err)
}

func (e *InvalidPkgError) Unwrap() error { return e.Err }

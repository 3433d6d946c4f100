// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

// Package fetch realizes a package's SRC_URI distfiles into a distdir
// and keeps its Manifest current.  Downloads run with bounded
// concurrency; fetch-restricted URIs and bare-filename distfiles surface
// dedicated errors the caller may downgrade to warnings.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/datawire/dlib/dlog"
	"golang.org/x/sync/errgroup"

	"github.com/ebuildkit/ebuildkit/pkg/dep"
	"github.com/ebuildkit/ebuildkit/pkg/manifest"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
)

// A RestrictedFetchableError marks a URI that must not be fetched
// automatically (RESTRICT="fetch").
type RestrictedFetchableError struct {
	Uri *dep.Uri
}

func (e *RestrictedFetchableError) Error() string {
	return fmt.Sprintf("fetch restricted: %s", e.Uri)
}

// A RestrictedFileError marks a distfile with no upstream location (a
// bare SRC_URI filename), which must be obtained manually.
type RestrictedFileError struct {
	Name string
}

func (e *RestrictedFileError) Error() string {
	return fmt.Sprintf("restricted file must be manually fetched: %s", e.Name)
}

// Options configures a fetch run.
type Options struct {
	// Distdir receives the realized distfiles.
	Distdir string
	// Jobs bounds concurrent downloads.
	Jobs int
	// Force re-downloads files already present.
	Force bool
	// Client overrides the HTTP client.
	Client *http.Client
}

// A Fetcher realizes distfiles for packages of one repository.
type Fetcher struct {
	repo *repo.Repo
	opts Options
}

// New builds a fetcher.
func New(r *repo.Repo, opts Options) *Fetcher {
	if opts.Jobs <= 0 {
		opts.Jobs = 4
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	return &Fetcher{repo: r, opts: opts}
}

// Pkg downloads every distfile the package's SRC_URI names, returning
// the realized filenames.
func (f *Fetcher) Pkg(ctx context.Context, pkg *repo.Pkg) ([]string, error) {
	restricted := func(tok string) bool {
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
	fetchRestricted := restricted("fetch")

	var uris []*dep.Uri
	it := pkg.Metadata().SrcUri.IterFlatten()
	for {
		uri, ok := it.Next()
		if !ok {
			break
		}
		uris = append(uris, uri)
	}

	if err := os.MkdirAll(f.opts.Distdir, 0o755); err != nil {
		return nil, err
	}

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(f.opts.Jobs)
	names := make([]string, len(uris))
	for i, uri := range uris {
		i, uri := i, uri
		names[i] = uri.Filename()
		grp.Go(func() error {
			return f.fetchOne(ctx, uri, fetchRestricted)
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return names, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, uri *dep.Uri, fetchRestricted bool) error {
	dest := filepath.Join(f.opts.Distdir, uri.Filename())
	if !f.opts.Force {
		if _, err := os.Stat(dest); err == nil {
			dlog.Debugf(ctx, "exists: %s", uri.Filename())
			return nil
		}
	}

	switch {
	case fetchRestricted:
		return &RestrictedFetchableError{Uri: uri}
	case uri.Uri() == uri.Filename():
		// a bare filename has no upstream location
		return &RestrictedFileError{Name: uri.Filename()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.Uri(), nil)
	if err != nil {
		return err
	}
	resp, err := f.opts.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching %s: unexpected status: %s", uri.Uri(), resp.Status)
	}

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	dlog.Infof(ctx, "fetched %s", uri.Filename())
	return os.Rename(tmp, dest)
}

// Verify checks the realized distfiles against the package's Manifest
// under the repository's required hash set.
func (f *Fetcher) Verify(pkg *repo.Pkg) []error {
	pkgdir := f.repo.PkgDir(pkg.Cpv().Cpn())
	m, err := manifest.ParseFile(filepath.Join(pkgdir, "Manifest"))
	if err != nil {
		return []error{err}
	}
	return m.Verify(
		manifest.DirResolver(pkgdir, f.opts.Distdir),
		f.repo.Config().RequiredHashSet(),
	)
}

// UpdateManifest rebuilds the package's Manifest from the realized
// distfiles, preserving the repository's thin or thick mode.
func (f *Fetcher) UpdateManifest(pkg *repo.Pkg, distfiles []string) error {
	return manifest.Update(manifest.UpdateOptions{
		Pkgdir:    f.repo.PkgDir(pkg.Cpv().Cpn()),
		Distdir:   f.opts.Distdir,
		Distfiles: distfiles,
		Hashes:    f.repo.Config().ManifestHashes,
		Thin:      f.repo.Config().ThinManifests,
	})
}

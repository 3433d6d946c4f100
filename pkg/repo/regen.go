// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/datawire/dlib/dlog"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/sync/errgroup"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
)

// RegenMode selects what a cache run does.
type RegenMode int

const (
	// RegenUpdate regenerates stale entries and writes them back.
	RegenUpdate RegenMode = iota
	// RegenVerify sources and parses without writing, failing on any
	// mismatch with the stored entry.
	RegenVerify
	// RegenRemove deletes matching cache entries.
	RegenRemove
)

// RegenOptions configures a cache run.
type RegenOptions struct {
	Mode RegenMode
	// Restrict bounds the run; nil covers the whole repository.
	Restrict *atom.Restrict
	// Jobs bounds parallel generation; detected CPU count when 0.
	Jobs int
	// Force regenerates entries even when their stored hash matches.
	Force bool
	// ShowOutput surfaces the collaborator's diagnostic buffer for
	// every release, not just failing ones.
	ShowOutput bool
}

// A RegenError aggregates the per-release failures of a cache run.
type RegenError struct {
	Failures map[string]error // keyed by Cpv string
}

func (e *RegenError) Error() string {
	return fmt.Sprintf("metadata failed for %d pkgs", len(e.Failures))
}

// Regen runs a metadata cache operation over the matching releases.
// Generation is parallel per Cpv; per-release failures are collected
// and reported together rather than aborting the run.
func (r *Repo) Regen(ctx context.Context, opts RegenOptions) error {
	restrict := opts.Restrict
	if restrict == nil {
		restrict = atom.MatchAll()
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	cpvs := r.Cpvs(restrict)

	if opts.Mode == RegenRemove {
		return r.removeCache(cpvs)
	}

	var mu sync.Mutex
	failures := make(map[string]error)
	fail := func(cpv *atom.Cpv, err error) {
		mu.Lock()
		failures[cpv.String()] = err
		mu.Unlock()
	}

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(jobs)
	for _, cpv := range cpvs {
		cpv := cpv
		grp.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			switch opts.Mode {
			case RegenVerify:
				if err := r.verifyOne(ctx, cpv); err != nil {
					fail(cpv, err)
				}
			default:
				if err := r.regenOne(ctx, cpv, opts); err != nil {
					fail(cpv, err)
				}
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return err
	}

	for cpvStr, err := range failures {
		dlog.Errorf(ctx, "%s: %v", cpvStr, err)
	}

	if opts.Mode == RegenUpdate {
		if err := r.pruneCache(); err != nil {
			return err
		}
	}

	if len(failures) > 0 {
		return &RegenError{Failures: failures}
	}
	return nil
}

func (r *Repo) regenOne(ctx context.Context, cpv *atom.Cpv, opts RegenOptions) error {
	if opts.Force {
		if err := os.Remove(r.CachePath(cpv)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	meta, err := r.generate(ctx, cpv, true)
	if err != nil {
		return err
	}
	if opts.ShowOutput && len(meta.Output) > 0 {
		dlog.Infof(ctx, "%s:\n%s", cpv, strings.TrimRight(string(meta.Output), "\n"))
	}
	return nil
}

// verifyOne sources without writing and diffs the result against the
// stored cache entry.
func (r *Repo) verifyOne(ctx context.Context, cpv *atom.Cpv) error {
	meta, err := r.generate(ctx, cpv, false)
	if err != nil {
		return err
	}
	stored, err := os.ReadFile(r.CachePath(cpv))
	if err != nil {
		return fmt.Errorf("missing cache entry")
	}
	fresh := meta.Encode()
	if string(stored) == string(fresh) {
		return nil
	}
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(stored)),
		B:        difflib.SplitLines(string(fresh)),
		FromFile: "cached",
		ToFile:   "sourced",
		Context:  3,
	})
	return fmt.Errorf("cache entry out of date:\n%s", diff)
}

func (r *Repo) removeCache(cpvs []*atom.Cpv) error {
	for _, cpv := range cpvs {
		if err := os.Remove(r.CachePath(cpv)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return r.pruneEmptyCacheDirs()
}

// pruneCache removes entries whose Cpv no longer has a build file, then
// drops empty category directories.
func (r *Repo) pruneCache() error {
	cacheDir := r.CacheDir()
	cats, err := os.ReadDir(cacheDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, catDe := range cats {
		if !catDe.IsDir() {
			continue
		}
		cat := catDe.Name()
		entries, err := os.ReadDir(filepath.Join(cacheDir, cat))
		if err != nil {
			return err
		}
		for _, de := range entries {
			cpv, err := atom.ParseCpv(cat + "/" + de.Name())
			if err != nil {
				continue
			}
			if _, err := os.Stat(r.EbuildPath(cpv)); errors.Is(err, os.ErrNotExist) {
				if err := os.Remove(filepath.Join(cacheDir, cat, de.Name())); err != nil {
					return err
				}
			}
		}
	}
	return r.pruneEmptyCacheDirs()
}

func (r *Repo) pruneEmptyCacheDirs() error {
	cacheDir := r.CacheDir()
	cats, err := os.ReadDir(cacheDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, catDe := range cats {
		if !catDe.IsDir() {
			continue
		}
		path := filepath.Join(cacheDir, catDe.Name())
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			if err := os.Remove(path); err != nil {
				return err
			}
		}
	}
	return nil
}

// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

// Package scan implements the check-dispatch engine: given a target
// restriction and a check selection, it parallelizes the checks over the
// matching targets and produces an ordered, filtered report stream.
package scan

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/check"
	"github.com/ebuildkit/ebuildkit/pkg/ignore"
	"github.com/ebuildkit/ebuildkit/pkg/report"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
)

// Options configures a scan.
type Options struct {
	// Jobs bounds worker parallelism; detected CPU count when 0.
	Jobs int
	// Checks selects the checks to run; the repository's default
	// selection when empty.
	Checks []*check.Info
	// Enabled restricts the emitted report kinds; the union of the
	// selected checks' kinds when empty.
	Enabled map[report.Kind]bool
	// Exit marks kinds whose presence fails the run.
	Exit map[report.Kind]bool
	// Restrict bounds the scanned targets; the whole repository when
	// nil.
	Restrict *atom.Restrict
	// NoIgnore disables ignore-directive processing.
	NoIgnore bool
}

// A Scanner dispatches checks over a repository.  The execution mode is
// fixed at construction: scans at category scope or wider parallelize
// by package, narrower scans parallelize by check to keep latency low.
type Scanner struct {
	repo     *repo.Repo
	opts     Options
	restrict *atom.Restrict
	scope    report.ScopeKind
	checks   []*check.Info
	enabled  map[report.Kind]bool
	ignores  *ignore.Cache
	runner   *SyncCheckRunner
}

// New builds a scanner for one repository.
func New(r *repo.Repo, opts Options) *Scanner {
	restrict := opts.Restrict
	if restrict == nil {
		restrict = atom.MatchAll()
	}

	checks := opts.Checks
	if len(checks) == 0 {
		for _, info := range check.All() {
			if info.Enabled(r) {
				checks = append(checks, info)
			}
		}
	}

	scope := restrictScope(restrict)

	// checks wider than the run's scope have no target to run against
	var applicable []*check.Info
	for _, info := range checks {
		if info.Scope <= scope {
			applicable = append(applicable, info)
		}
	}

	enabled := opts.Enabled
	if len(enabled) == 0 {
		enabled = make(map[report.Kind]bool)
		for _, info := range applicable {
			for _, kind := range info.Reports {
				enabled[kind] = true
			}
		}
		// source failures always surface
		enabled[report.MetadataError] = true
		enabled[report.CheckError] = true
	}

	s := &Scanner{
		repo:     r,
		opts:     opts,
		restrict: restrict,
		scope:    scope,
		checks:   applicable,
		enabled:  enabled,
	}
	if !opts.NoIgnore {
		s.ignores = ignore.NewCache(r)
	}
	run := &check.Run{Repo: r, Restrict: restrict, Ignore: s.ignores}
	s.runner = newSyncCheckRunner(run, restrict, applicable)
	return s
}

// restrictScope grades a restriction's granularity.
func restrictScope(r *atom.Restrict) report.ScopeKind {
	_, catExact := r.CategoryExact()
	_, pkgExact := r.PackageExact()
	switch {
	case r.Versioned():
		return report.ScopeVersion
	case catExact && pkgExact:
		return report.ScopePackage
	case catExact:
		return report.ScopeCategory
	default:
		return report.ScopeRepo
	}
}

// Checks returns the checks the scan will run.
func (s *Scanner) Checks() []*check.Info { return s.checks }

// A ReportIter is the lazy ordered report stream of one scan run.
// Dropping the iterator via Close cancels the run cooperatively.
type ReportIter struct {
	ch     chan *report.Report
	cancel context.CancelFunc
	failed *atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
}

// Next returns the next report; ok is false once the stream is
// exhausted.
func (it *ReportIter) Next() (*report.Report, bool) {
	r, ok := <-it.ch
	return r, ok
}

// Failed reports whether any emitted report matched the exit kinds.
func (it *ReportIter) Failed() bool { return it.failed.Load() }

// Close cancels the run and drains the remaining reports.
func (it *ReportIter) Close() {
	it.closeOnce.Do(func() {
		it.cancel()
		go func() {
			for range it.ch {
			}
		}()
	})
	<-it.done
}

// filter applies the report pipeline: enabled kinds, ignore directives,
// and the exit flag.  It reports whether the report survives.
func (s *Scanner) filter(r *report.Report, failed *atomic.Bool) bool {
	if !s.enabled[r.Kind] {
		return false
	}
	if s.ignores != nil && r.Kind != report.IgnoreUnused && r.Kind != report.IgnoreInvalid {
		if s.ignores.IsIgnored(r) {
			return false
		}
	}
	if s.opts.Exit[r.Kind] {
		failed.Store(true)
	}
	return true
}

// Run starts the scan and returns its report stream.
func (s *Scanner) Run(ctx context.Context) *ReportIter {
	ctx, cancel := context.WithCancel(ctx)
	it := &ReportIter{
		ch:     make(chan *report.Report, 64),
		cancel: cancel,
		failed: &atomic.Bool{},
		done:   make(chan struct{}),
	}

	jobs := s.opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	go func() {
		defer close(it.done)
		defer close(it.ch)
		var err error
		if s.scope >= report.ScopeCategory {
			err = s.runByPackage(ctx, jobs, it)
		} else {
			err = s.runByCheck(ctx, jobs, it)
		}
		if err != nil && ctx.Err() == nil {
			dlog.Errorf(ctx, "scan: %v", err)
		}
	}()
	return it
}

// orderedBatch carries one target's sorted reports tagged with the
// producer's sequence number.
type orderedBatch struct {
	seq     int
	reports []*report.Report
}

// runByPackage is the wide-scan pipeline: the producer emits one target
// per matching Cpn, each worker materializes the package set once and
// runs every applicable check against it.  Cross-package output order
// follows the producer's lexicographic enumeration.
func (s *Scanner) runByPackage(ctx context.Context, jobs int, it *ReportIter) error {
	targets := make([]Target, 0)
	if s.scope == report.ScopeRepo {
		targets = append(targets, Target{Repo: true})
	}
	for _, cpn := range s.repo.Cpns(s.restrict) {
		cpn := cpn
		targets = append(targets, Target{Cpn: &cpn})
	}

	tch := make(chan orderedTarget, jobs)
	rch := make(chan orderedBatch, jobs)

	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{})

	grp.Go("producer", func(ctx context.Context) error {
		defer close(tch)
		for i, t := range targets {
			select {
			case tch <- orderedTarget{seq: i, target: t}:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(jobs)
	for i := 0; i < jobs; i++ {
		name := workerName(i)
		grp.Go(name, func(ctx context.Context) error {
			defer wg.Done()
			for t := range tch {
				batch := s.collect(func(emit check.Emit) {
					s.runner.runChecks(ctx, t.target, emit)
				}, it)
				select {
				case rch <- orderedBatch{seq: t.seq, reports: batch}:
				case <-ctx.Done():
					return nil
				}
			}
			return nil
		})
	}

	grp.Go("closer", func(ctx context.Context) error {
		wg.Wait()
		close(rch)
		return nil
	})

	grp.Go("orderer", func(ctx context.Context) error {
		pending := make(map[int][]*report.Report)
		next := 0
		for batch := range rch {
			pending[batch.seq] = batch.reports
			for {
				reports, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				for _, r := range reports {
					select {
					case it.ch <- r:
					case <-ctx.Done():
						return nil
					}
				}
			}
		}
		return nil
	})

	if err := grp.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	// the post-pass runs strictly after the last in-run report drained
	return s.emitAll(ctx, s.finalize(ctx, it), it)
}

type orderedTarget struct {
	seq    int
	target Target
}

// runByCheck is the narrow-scan pipeline: the producer emits
// (check, target) pairs and every report is collected and emitted in
// fully sorted order at the end.
func (s *Scanner) runByCheck(ctx context.Context, jobs int, it *ReportIter) error {
	type job struct {
		bc boundCheck
		t  Target
	}

	var jobsList []job
	cpns := s.repo.Cpns(s.restrict)
	for _, bc := range s.runner.checks() {
		switch bc.info.Scope {
		case report.ScopeVersion:
			for _, cpn := range cpns {
				for _, cpv := range s.repo.CpvsOf(cpn, s.restrict) {
					jobsList = append(jobsList, job{bc: bc, t: Target{Cpv: cpv}})
				}
			}
		default:
			for _, cpn := range cpns {
				cpn := cpn
				jobsList = append(jobsList, job{bc: bc, t: Target{Cpn: &cpn}})
			}
		}
	}

	jch := make(chan job, jobs)
	var mu sync.Mutex
	var all []*report.Report

	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	grp.Go("producer", func(ctx context.Context) error {
		defer close(jch)
		for _, j := range jobsList {
			select {
			case jch <- j:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})
	for i := 0; i < jobs; i++ {
		grp.Go(workerName(i), func(ctx context.Context) error {
			for j := range jch {
				batch := s.collect(func(emit check.Emit) {
					s.runner.runCheck(ctx, j.bc, j.t, emit)
				}, it)
				mu.Lock()
				all = append(all, batch...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	all = append(all, s.finalize(ctx, it)...)
	sortReports(all)
	return s.emitAll(ctx, all, it)
}

// collect runs fn, gathering its surviving reports sorted.
func (s *Scanner) collect(fn func(check.Emit), it *ReportIter) []*report.Report {
	var batch []*report.Report
	fn(func(r *report.Report) {
		if s.filter(r, it.failed) {
			batch = append(batch, r)
		}
	})
	sortReports(batch)
	return batch
}

// finalize runs the post-pass and filters its output.
func (s *Scanner) finalize(ctx context.Context, it *ReportIter) []*report.Report {
	batch := s.collect(func(emit check.Emit) {
		s.runner.finish(ctx, emit)
	}, it)
	return batch
}

func (s *Scanner) emitAll(ctx context.Context, reports []*report.Report, it *ReportIter) error {
	for _, r := range reports {
		select {
		case it.ch <- r:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

func workerName(i int) string {
	return fmt.Sprintf("worker-%d", i)
}

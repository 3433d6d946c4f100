// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

// Package service exposes the scanner over HTTP: Version, Scan, and
// Push operations with reports streamed as line-delimited JSON.  A
// weighted semaphore serializes scanning so concurrent requests queue
// rather than thrash the repository.
package service

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"
	"golang.org/x/sync/semaphore"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
	"github.com/ebuildkit/ebuildkit/pkg/scan"
)

// Version is the service's reported version string.
var Version = "dev"

// A Service wraps one repository's scanner.
type Service struct {
	repo *repo.Repo
	opts scan.Options

	// scans serializes scan work; pushes and scans share the slot.
	scans *semaphore.Weighted
}

// New builds a service.
func New(r *repo.Repo, opts scan.Options) *Service {
	return &Service{
		repo:  r,
		opts:  opts,
		scans: semaphore.NewWeighted(1),
	}
}

// Handler returns the HTTP routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/version", s.handleVersion)
	mux.HandleFunc("/scan", s.handleScan)
	mux.HandleFunc("/push", s.handlePush)
	return mux
}

// Serve serves the HTTP routes on ln until accepting from it fails.
func (s *Service) Serve(ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler()}
	return srv.Serve(ln)
}

func (s *Service) handleVersion(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"version": Version})
}

// handleScan streams the full repository scan.
func (s *Service) handleScan(w http.ResponseWriter, req *http.Request) {
	s.streamScan(w, req, nil)
}

type pushRequest struct {
	OldRef  string `json:"old_ref"`
	NewRef  string `json:"new_ref"`
	RefName string `json:"ref_name"`
}

// handlePush derives the scan restriction from the pushed ref range.
func (s *Service) handlePush(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var push pushRequest
	if err := json.NewDecoder(req.Body).Decode(&push); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	restricts, err := s.diffRestricts(req, push)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(restricts) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}
	s.streamScan(w, req, restricts)
}

// diffRestricts maps changed ebuild paths between two refs to package
// restrictions.
func (s *Service) diffRestricts(req *http.Request, push pushRequest) ([]*atom.Restrict, error) {
	cmd := dexec.CommandContext(req.Context(), "git",
		"-C", s.repo.Path(), "diff", "--name-only", push.OldRef+".."+push.NewRef)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("diffing %s..%s: %w", push.OldRef, push.NewRef, err)
	}

	seen := make(map[string]bool)
	var ret []*atom.Restrict
	for _, path := range strings.Split(string(out), "\n") {
		parts := strings.Split(path, "/")
		if len(parts) < 2 || !atom.ValidCategory(parts[0]) || !atom.ValidPackageName(parts[1]) {
			continue
		}
		cpn := parts[0] + "/" + parts[1]
		if seen[cpn] {
			continue
		}
		seen[cpn] = true
		if parsed, err := atom.ParseCpn(cpn); err == nil {
			ret = append(ret, atom.RestrictFromCpn(parsed))
		}
	}
	return ret, nil
}

// streamScan runs the scans serialized by the semaphore and writes one
// JSON report per line.
func (s *Service) streamScan(w http.ResponseWriter, req *http.Request, restricts []*atom.Restrict) {
	ctx := req.Context()
	if err := s.scans.Acquire(ctx, 1); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer s.scans.Release(1)

	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)

	if restricts == nil {
		restricts = []*atom.Restrict{atom.MatchAll()}
	}
	for _, restrict := range restricts {
		opts := s.opts
		opts.Restrict = restrict
		it := scan.New(s.repo, opts).Run(ctx)
		for {
			r, ok := it.Next()
			if !ok {
				break
			}
			if err := enc.Encode(r); err != nil {
				it.Close()
				dlog.Errorf(ctx, "streaming reports: %v", err)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		it.Close()
	}
}

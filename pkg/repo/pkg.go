// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"context"
	"os"
	"strings"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
)

// A Pkg is a metadata-parsed package release: the unit most checks run
// against.
type Pkg struct {
	repo *Repo
	cpv  *atom.Cpv
	meta *Metadata
}

// Pkg materializes the metadata-parsed view of a release.
func (r *Repo) Pkg(ctx context.Context, cpv *atom.Cpv) (*Pkg, error) {
	meta, err := r.Metadata(ctx, cpv)
	if err != nil {
		return nil, err
	}
	return &Pkg{repo: r, cpv: cpv, meta: meta}, nil
}

// Cpv returns the release identity.
func (p *Pkg) Cpv() *atom.Cpv { return p.cpv }

// Repo returns the owning repository.
func (p *Pkg) Repo() *Repo { return p.repo }

// Metadata returns the parsed metadata record.
func (p *Pkg) Metadata() *Metadata { return p.meta }

// String implements fmt.Stringer.
func (p *Pkg) String() string { return p.cpv.String() }

// A RawPkg is the unsourced view of a release: the build file's literal
// text, used by style and whitespace checks.
type RawPkg struct {
	repo *Repo
	cpv  *atom.Cpv
	data []byte
}

// RawPkg loads the raw build file for a release.
func (r *Repo) RawPkg(cpv *atom.Cpv) (*RawPkg, error) {
	data, err := os.ReadFile(r.EbuildPath(cpv))
	if err != nil {
		return nil, &InvalidPkgError{Cpv: cpv, Err: err}
	}
	return &RawPkg{repo: r, cpv: cpv, data: data}, nil
}

// Cpv returns the release identity.
func (p *RawPkg) Cpv() *atom.Cpv { return p.cpv }

// Data returns the build file bytes.
func (p *RawPkg) Data() []byte { return p.data }

// Lines returns the build file split into lines.
func (p *RawPkg) Lines() []string {
	return strings.Split(string(p.data), "\n")
}

// String implements fmt.Stringer.
func (p *RawPkg) String() string { return p.cpv.String() }

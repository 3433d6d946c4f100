// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package atom

import (
	"hash/fnv"
	"strings"
)

// A Cpn is a (category, package) pair.
type Cpn struct {
	Category string
	Package  string
}

// ParseCpn parses a canonical "cat/pkg" string.
func ParseCpn(s string) (Cpn, error) {
	fail := func(reason string) (Cpn, error) {
		return Cpn{}, parseErr("category/package", s, reason)
	}
	cat, pkg, found := strings.Cut(s, "/")
	if !found {
		return fail("missing category/package separator")
	}
	if !ValidCategory(cat) {
		return fail("invalid category name")
	}
	if !ValidPackageName(pkg) {
		return fail("invalid package name")
	}
	if _, _, ok := splitVersionTail(pkg); ok {
		return fail("package name ends in a version")
	}
	return Cpn{Category: cat, Package: pkg}, nil
}

// String implements fmt.Stringer.
func (c Cpn) String() string {
	return c.Category + "/" + c.Package
}

// Cmp lexicographically orders Cpns.
func (c Cpn) Cmp(other Cpn) int {
	if d := strings.Compare(c.Category, other.Category); d != 0 {
		return d
	}
	return strings.Compare(c.Package, other.Package)
}

// A Cpv is a Cpn plus a version: one concrete package release.
type Cpv struct {
	Category string
	Package  string
	Version  *Version
}

// ParseCpv parses a canonical "cat/pkg-ver" string.
func ParseCpv(s string) (*Cpv, error) {
	fail := func(reason string) (*Cpv, error) {
		return nil, parseErr("cpv", s, reason)
	}
	cat, pkgver, found := strings.Cut(s, "/")
	if !found {
		return fail("missing category/package separator")
	}
	if !ValidCategory(cat) {
		return fail("invalid category name")
	}
	pkg, verStr, ok := splitVersionTail(pkgver)
	if !ok {
		return fail("missing version")
	}
	if !ValidPackageName(pkg) {
		return fail("invalid package name")
	}
	ver, err := ParseVersion(verStr)
	if err != nil {
		return nil, err
	}
	return &Cpv{Category: cat, Package: pkg, Version: ver}, nil
}

// Cpn returns the Cpv's (category, package) pair.
func (c *Cpv) Cpn() Cpn {
	return Cpn{Category: c.Category, Package: c.Package}
}

// P returns "pkg-ver" without the revision.
func (c *Cpv) P() string { return c.Package + "-" + c.Version.Base() }

// PF returns "pkg-ver-rN".
func (c *Cpv) PF() string { return c.Package + "-" + c.Version.Text() }

// PR returns "rN", defaulting to "r0".
func (c *Cpv) PR() string {
	if rev := c.Version.Revision(); rev.Present() {
		return "r" + rev.String()
	}
	return "r0"
}

// PV returns the version without the revision.
func (c *Cpv) PV() string { return c.Version.Base() }

// PVR returns the version including any revision.
func (c *Cpv) PVR() string { return c.Version.Text() }

// String implements fmt.Stringer.
func (c *Cpv) String() string {
	return c.Category + "/" + c.Package + "-" + c.Version.Text()
}

// Cmp orders Cpvs by category, package, then version.
func (c *Cpv) Cmp(other *Cpv) int {
	if d := strings.Compare(c.Category, other.Category); d != 0 {
		return d
	}
	if d := strings.Compare(c.Package, other.Package); d != 0 {
		return d
	}
	return c.Version.Cmp(other.Version)
}

// Equal reports equivalence under Cmp.
func (c *Cpv) Equal(other *Cpv) bool {
	return c.Cmp(other) == 0
}

// Hash returns a hash consistent with Equal.
func (c *Cpv) Hash() uint64 {
	h := fnv.New64a()
	hashStr(h, c.Category)
	hashStr(h, c.Package)
	c.Version.hashInto(h)
	return h.Sum64()
}

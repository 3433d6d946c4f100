// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package atom

import (
	"strings"
)

// A Restrict is a package restriction: the matching counterpart of a
// package dependency.  Unlike dependencies, restrictions accept "*"
// globs in their category, package, slot, subslot, and repo slots, so
// "cat*/*" selects every package in categories starting with "cat".
type Restrict struct {
	category string // pattern; "" matches anything
	pkg      string
	version  *Version
	slot     string
	subslot  string
	repo     string
}

// MatchAll returns the restriction matching every package.
func MatchAll() *Restrict { return &Restrict{} }

// RestrictFromDep converts a package dependency into the restriction
// matching exactly the packages it covers.
func RestrictFromDep(d *Dep) *Restrict {
	return &Restrict{
		category: d.category,
		pkg:      d.pkg,
		version:  d.version,
		slot:     d.slot,
		subslot:  d.subslot,
		repo:     d.repo,
	}
}

// RestrictFromCpv returns the restriction matching exactly one release.
func RestrictFromCpv(c *Cpv) *Restrict {
	ver := *c.Version
	ver.op = OpEqual
	return &Restrict{category: c.Category, pkg: c.Package, version: &ver}
}

// RestrictFromCpn returns the restriction matching every release of one
// package.
func RestrictFromCpn(c Cpn) *Restrict {
	return &Restrict{category: c.Category, pkg: c.Package}
}

// RestrictCategory returns the restriction matching one category.
func RestrictCategory(cat string) *Restrict {
	return &Restrict{category: cat}
}

// ParseRestrict parses a restriction.  The grammar is the package
// dependency grammar extended with "*" globs; a plain dependency parses
// to the restriction it implies.
func ParseRestrict(s string) (*Restrict, error) {
	if d, err := ParseDepAny(s); err == nil {
		return RestrictFromDep(d), nil
	}
	if c, err := ParseCpv(s); err == nil {
		return RestrictFromCpv(c), nil
	}

	fail := func(reason string) (*Restrict, error) {
		return nil, parseErr("package restriction", s, reason)
	}

	r := &Restrict{}
	rest := s

	op := OpNone
	switch {
	case strings.HasPrefix(rest, "<="):
		op, rest = OpLessOrEqual, rest[2:]
	case strings.HasPrefix(rest, "<"):
		op, rest = OpLess, rest[1:]
	case strings.HasPrefix(rest, ">="):
		op, rest = OpGreaterOrEqual, rest[2:]
	case strings.HasPrefix(rest, ">"):
		op, rest = OpGreater, rest[1:]
	case strings.HasPrefix(rest, "="):
		op, rest = OpEqual, rest[1:]
	case strings.HasPrefix(rest, "~"):
		op, rest = OpApproximate, rest[1:]
	}

	// repo glob
	if i := strings.Index(rest, "::"); i >= 0 {
		r.repo = rest[i+2:]
		rest = rest[:i]
		if !validGlobName(r.repo) {
			return fail("invalid repository pattern")
		}
	}

	// slot glob
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		slotStr := rest[i+1:]
		rest = rest[:i]
		slot, subslot, found := strings.Cut(slotStr, "/")
		if found {
			if !validGlobName(subslot) {
				return fail("invalid subslot pattern")
			}
			r.subslot = subslot
		}
		if !validGlobName(slot) {
			return fail("invalid slot pattern")
		}
		r.slot = slot
	}

	cat, pkgver, found := strings.Cut(rest, "/")
	if !found {
		// a bare name restricts on the package slot alone
		cat, pkgver = "*", rest
	}
	if !validGlobName(cat) {
		return fail("invalid category pattern")
	}
	if cat != "*" {
		r.category = cat
	}

	if op != OpNone {
		if op == OpEqual && strings.HasSuffix(pkgver, "*") {
			op = OpEqualGlob
			pkgver = pkgver[:len(pkgver)-1]
		}
		pkg, verStr, ok := splitVersionTail(pkgver)
		if !ok {
			return fail("operator requires a version")
		}
		ver, err := ParseVersion(verStr)
		if err != nil {
			return nil, err
		}
		verCopy := *ver
		verCopy.op = op
		r.version = &verCopy
		pkgver = pkg
	}
	if !validGlobName(pkgver) {
		return fail("invalid package pattern")
	}
	if pkgver != "*" {
		r.pkg = pkgver
	}
	return r, nil
}

// CategoryExact returns the category the restriction pins, if any.
func (r *Restrict) CategoryExact() (string, bool) {
	return exact(r.category)
}

// PackageExact returns the package name the restriction pins, if any.
func (r *Restrict) PackageExact() (string, bool) {
	return exact(r.pkg)
}

// Versioned reports whether the restriction constrains versions.
func (r *Restrict) Versioned() bool { return r.version != nil }

// Version returns the version constraint, nil when unversioned.
func (r *Restrict) Version() *Version { return r.version }

func exact(pat string) (string, bool) {
	if pat == "" || strings.ContainsRune(pat, '*') {
		return "", false
	}
	return pat, true
}

// MatchesCategory reports whether the restriction can match packages in
// the given category.
func (r *Restrict) MatchesCategory(cat string) bool {
	return matchPattern(r.category, cat)
}

// MatchesCpn reports whether the restriction can match releases of the
// given package.
func (r *Restrict) MatchesCpn(c Cpn) bool {
	return matchPattern(r.category, c.Category) && matchPattern(r.pkg, c.Package)
}

// Matches reports whether the restriction matches the given release.
func (r *Restrict) Matches(c *Cpv) bool {
	if !r.MatchesCpn(c.Cpn()) {
		return false
	}
	if r.version != nil && !r.version.Intersects(c.Version) {
		return false
	}
	return true
}

// MatchesDep reports whether the restriction matches the given package
// dependency.
func (r *Restrict) MatchesDep(d *Dep) bool {
	if !matchPattern(r.category, d.category) || !matchPattern(r.pkg, d.pkg) {
		return false
	}
	if r.slot != "" && d.slot != "" && !matchPattern(r.slot, d.slot) {
		return false
	}
	if r.subslot != "" && d.subslot != "" && !matchPattern(r.subslot, d.subslot) {
		return false
	}
	if r.repo != "" && d.repo != "" && !matchPattern(r.repo, d.repo) {
		return false
	}
	if r.version != nil && d.version != nil {
		return r.version.Intersects(d.version)
	}
	return true
}

// String implements fmt.Stringer.
func (r *Restrict) String() string {
	var b strings.Builder
	cat, pkg := r.category, r.pkg
	if cat == "" {
		cat = "*"
	}
	if pkg == "" {
		pkg = "*"
	}
	switch {
	case r.version != nil && r.version.op == OpEqualGlob:
		b.WriteString("=" + cat + "/" + pkg + "-" + r.version.Text() + "*")
	case r.version != nil:
		b.WriteString(r.version.op.String() + cat + "/" + pkg + "-" + r.version.Text())
	default:
		b.WriteString(cat + "/" + pkg)
	}
	switch {
	case r.slot != "" && r.subslot != "":
		b.WriteString(":" + r.slot + "/" + r.subslot)
	case r.slot != "":
		b.WriteString(":" + r.slot)
	}
	if r.repo != "" {
		b.WriteString("::" + r.repo)
	}
	return b.String()
}

// matchPattern matches s against a pattern that may contain "*"
// wildcards.  The empty pattern matches anything.
func matchPattern(pat, s string) bool {
	if pat == "" {
		return true
	}
	parts := strings.Split(pat, "*")
	if len(parts) == 1 {
		return pat == s
	}
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		i := strings.Index(s, part)
		if i < 0 {
			return false
		}
		s = s[i+len(part):]
	}
	return strings.HasSuffix(s, parts[len(parts)-1])
}

func validGlobName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !isAlnum(c) && c != '+' && c != '_' && c != '.' && c != '-' && c != '*' {
			return false
		}
	}
	return true
}

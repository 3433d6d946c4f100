// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package atom

import (
	"errors"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/ebuildkit/ebuildkit/pkg/eapi"
)

// Blocker marks a package dependency as conflicting.
type Blocker int

const (
	BlockerNone Blocker = iota
	// BlockerWeak is "!": the conflict may be resolved after the merge.
	BlockerWeak
	// BlockerStrong is "!!": the conflict must be resolved up front.
	BlockerStrong
)

// String implements fmt.Stringer.
func (b Blocker) String() string {
	switch b {
	case BlockerWeak:
		return "!"
	case BlockerStrong:
		return "!!"
	default:
		return ""
	}
}

// SlotOperator is a slot rebuild operator.
type SlotOperator int

const (
	SlotOpNone SlotOperator = iota
	// SlotOpEqual is "=": rebuild on slot/subslot change.
	SlotOpEqual
	// SlotOpStar is "*": any slot is acceptable.
	SlotOpStar
)

// String implements fmt.Stringer.
func (op SlotOperator) String() string {
	switch op {
	case SlotOpEqual:
		return "="
	case SlotOpStar:
		return "*"
	default:
		return ""
	}
}

// A Dep is a package dependency: a constraint over package identities,
// optionally narrowed by version, slot, USE state, and repository.
// Values are immutable after construction.
type Dep struct {
	category string
	pkg      string
	blocker  Blocker
	version  *Version
	slot     string
	subslot  string
	slotOp   SlotOperator
	useDeps  []*UseDep // sorted; nil when absent
	repo     string
}

// ParseDep parses a package dependency, accepting only the constructs
// the given EAPI allows.
func ParseDep(s string, e *eapi.Eapi) (*Dep, error) {
	return parseDep(s, e)
}

// ParseDepAny parses a package dependency under the extended EAPI,
// accepting every known construct.  Used for user-supplied input rather
// than ebuild metadata.
func ParseDepAny(s string) (*Dep, error) {
	return parseDep(s, eapi.Extended())
}

func parseDep(input string, e *eapi.Eapi) (*Dep, error) {
	fail := func(reason string) (*Dep, error) {
		return nil, parseErr("package dependency", input, reason)
	}

	d := &Dep{}
	s := input

	// blocker
	switch {
	case strings.HasPrefix(s, "!!"):
		if !e.Has(eapi.StrongBlockers) {
			return nil, eapi.Unsupported(e, eapi.StrongBlockers)
		}
		d.blocker, s = BlockerStrong, s[2:]
	case strings.HasPrefix(s, "!"):
		if !e.Has(eapi.Blockers) {
			return nil, eapi.Unsupported(e, eapi.Blockers)
		}
		d.blocker, s = BlockerWeak, s[1:]
	}

	// version operator prefix
	op := OpNone
	switch {
	case strings.HasPrefix(s, "<="):
		op, s = OpLessOrEqual, s[2:]
	case strings.HasPrefix(s, "<"):
		op, s = OpLess, s[1:]
	case strings.HasPrefix(s, ">="):
		op, s = OpGreaterOrEqual, s[2:]
	case strings.HasPrefix(s, ">"):
		op, s = OpGreater, s[1:]
	case strings.HasPrefix(s, "="):
		op, s = OpEqual, s[1:]
	case strings.HasPrefix(s, "~"):
		op, s = OpApproximate, s[1:]
	}

	// category
	slash := strings.IndexByte(s, '/')
	if slash < 0 {
		return fail("missing category/package separator")
	}
	d.category = s[:slash]
	if !ValidCategory(d.category) {
		return fail("invalid category name")
	}
	s = s[slash+1:]

	// package name plus optional version, up to the first restriction
	end := len(s)
	for i := 0; i < len(s); i++ {
		if s[i] == ':' || s[i] == '[' {
			end = i
			break
		}
	}
	pkgver := s[:end]
	s = s[end:]

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
		if op == OpApproximate && ver.Revision().Present() {
			return fail("~ operator can't be used with a revision")
		}
		verCopy := *ver
		verCopy.op = op
		d.version = &verCopy
		d.pkg = pkg
	} else {
		if _, _, ok := splitVersionTail(pkgver); ok {
			return fail("version requires an operator")
		}
		d.pkg = pkgver
	}
	if !ValidPackageName(d.pkg) {
		return fail("invalid package name")
	}

	// slot restriction
	if strings.HasPrefix(s, ":") && !strings.HasPrefix(s, "::") {
		s = s[1:]
		end := len(s)
		for i := 0; i < len(s); i++ {
			if s[i] == '[' || s[i] == ':' {
				end = i
				break
			}
		}
		slotStr := s[:end]
		s = s[end:]
		if err := d.parseSlot(slotStr, e); err != nil {
			var unsupported *eapi.UnsupportedError
			if errors.As(err, &unsupported) {
				return nil, err
			}
			return nil, parseErr("package dependency", input, err.Error())
		}
	}

	// USE dependencies
	if strings.HasPrefix(s, "[") {
		if !e.Has(eapi.UseDeps) {
			return nil, eapi.Unsupported(e, eapi.UseDeps)
		}
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return fail("unterminated USE dependency list")
		}
		var deps []*UseDep
		for _, tok := range strings.Split(s[1:end], ",") {
			u, err := ParseUseDep(tok)
			if err != nil {
				return nil, err
			}
			if u.Default != UseDepDefaultNone && !e.Has(eapi.UseDepDefaults) {
				return nil, eapi.Unsupported(e, eapi.UseDepDefaults)
			}
			deps = append(deps, u)
		}
		if len(deps) == 0 {
			return fail("empty USE dependency list")
		}
		d.useDeps = normalizeUseDeps(deps)
		s = s[end+1:]
	}

	// repository
	if strings.HasPrefix(s, "::") {
		if !e.Has(eapi.RepoIds) {
			return nil, eapi.Unsupported(e, eapi.RepoIds)
		}
		d.repo = s[2:]
		if !ValidRepoName(d.repo) {
			return fail("invalid repository name")
		}
		s = ""
	}

	if s != "" {
		return fail("trailing characters")
	}
	return d, nil
}

func (d *Dep) parseSlot(s string, e *eapi.Eapi) error {
	switch s {
	case "":
		return parseErr("slot restriction", s, "empty slot")
	case "=":
		if !e.Has(eapi.SlotOpDeps) {
			return eapi.Unsupported(e, eapi.SlotOpDeps)
		}
		d.slotOp = SlotOpEqual
		return nil
	case "*":
		if !e.Has(eapi.SlotOpDeps) {
			return eapi.Unsupported(e, eapi.SlotOpDeps)
		}
		d.slotOp = SlotOpStar
		return nil
	}

	if !e.Has(eapi.SlotDeps) {
		return eapi.Unsupported(e, eapi.SlotDeps)
	}

	if strings.HasSuffix(s, "=") {
		if !e.Has(eapi.SlotOpDeps) {
			return eapi.Unsupported(e, eapi.SlotOpDeps)
		}
		d.slotOp = SlotOpEqual
		s = s[:len(s)-1]
	}

	slot, subslot, found := strings.Cut(s, "/")
	if found {
		if !e.Has(eapi.SubslotDeps) {
			return eapi.Unsupported(e, eapi.SubslotDeps)
		}
		if !ValidSlotName(subslot) {
			return parseErr("slot restriction", s, "invalid subslot name")
		}
		d.subslot = subslot
	}
	if !ValidSlotName(slot) {
		return parseErr("slot restriction", s, "invalid slot name")
	}
	d.slot = slot
	return nil
}

// splitVersionTail splits "pkg-1.2-r3" into ("pkg", "1.2-r3").  The
// rightmost hyphen whose tail parses as a complete version wins, so
// package names containing version-like interior segments stay intact.
func splitVersionTail(pkgver string) (pkg, ver string, ok bool) {
	for i := len(pkgver) - 1; i > 0; i-- {
		if pkgver[i] != '-' {
			continue
		}
		tail := pkgver[i+1:]
		if v, rest, err := scanVersion(tail); err == nil && rest == "" && v != nil {
			return pkgver[:i], tail, true
		}
	}
	return "", "", false
}

// normalizeUseDeps sorts tokens by their first character at or above '0'
// (a stable sort, so same-key tokens keep their written order) and drops
// duplicates.
func normalizeUseDeps(deps []*UseDep) []*UseDep {
	sort.SliceStable(deps, func(i, j int) bool {
		return deps[i].sortChar() < deps[j].sortChar()
	})
	ret := deps[:0]
	for _, d := range deps {
		dup := false
		for _, seen := range ret {
			if seen.Cmp(d) == 0 {
				dup = true
				break
			}
		}
		if !dup {
			ret = append(ret, d)
		}
	}
	return ret
}

// Category returns the dependency's category.
func (d *Dep) Category() string { return d.category }

// Package returns the dependency's package name.
func (d *Dep) Package() string { return d.pkg }

// Blocker returns the dependency's blocker.
func (d *Dep) Blocker() Blocker { return d.blocker }

// Version returns the dependency's version constraint, nil when
// unversioned.
func (d *Dep) Version() *Version { return d.version }

// Op returns the version operator, OpNone when unversioned.
func (d *Dep) Op() Operator {
	if d.version == nil {
		return OpNone
	}
	return d.version.Op()
}

// Slot returns the slot restriction, empty when absent.
func (d *Dep) Slot() string { return d.slot }

// Subslot returns the subslot restriction, empty when absent.
func (d *Dep) Subslot() string { return d.subslot }

// SlotOp returns the slot operator.
func (d *Dep) SlotOp() SlotOperator { return d.slotOp }

// UseDeps returns the USE dependency tokens in their normalized order.
func (d *Dep) UseDeps() []*UseDep { return d.useDeps }

// Repo returns the repository restriction, empty when absent.
func (d *Dep) Repo() string { return d.repo }

// P returns "pkg-ver" without the revision, or the bare package name.
func (d *Dep) P() string {
	if d.version != nil {
		return d.pkg + "-" + d.version.Base()
	}
	return d.pkg
}

// PF returns "pkg-ver-rN", or the bare package name.
func (d *Dep) PF() string {
	if d.version != nil {
		return d.pkg + "-" + d.PVR()
	}
	return d.pkg
}

// PR returns "rN" (defaulting to "r0"), or empty when unversioned.
func (d *Dep) PR() string {
	if d.version == nil {
		return ""
	}
	if rev := d.version.Revision(); rev.Present() {
		return "r" + rev.String()
	}
	return "r0"
}

// PV returns the version without the revision, empty when unversioned.
func (d *Dep) PV() string {
	if d.version == nil {
		return ""
	}
	return d.version.Base()
}

// PVR returns the version including any revision, empty when
// unversioned.
func (d *Dep) PVR() string {
	if d.version == nil {
		return ""
	}
	return d.version.Text()
}

// CpnString returns "cat/pkg".
func (d *Dep) CpnString() string {
	return d.category + "/" + d.pkg
}

// CpvString returns "cat/pkg-ver" when versioned, "cat/pkg" otherwise.
func (d *Dep) CpvString() string {
	if d.version != nil {
		return d.category + "/" + d.pkg + "-" + d.version.Text()
	}
	return d.CpnString()
}

// Cpn returns the dependency's (category, package) pair.
func (d *Dep) Cpn() Cpn {
	return Cpn{Category: d.category, Package: d.pkg}
}

// String implements fmt.Stringer, reconstructing the canonical form.
func (d *Dep) String() string {
	var b strings.Builder
	b.WriteString(d.blocker.String())

	cpv := d.CpvString()
	switch d.Op() {
	case OpNone:
		b.WriteString(cpv)
	case OpEqualGlob:
		b.WriteString("=")
		b.WriteString(cpv)
		b.WriteString("*")
	default:
		b.WriteString(d.Op().String())
		b.WriteString(cpv)
	}

	switch {
	case d.slot != "" && d.subslot != "":
		b.WriteString(":" + d.slot + "/" + d.subslot + d.slotOp.String())
	case d.slot != "":
		b.WriteString(":" + d.slot + d.slotOp.String())
	case d.slotOp != SlotOpNone:
		b.WriteString(":" + d.slotOp.String())
	}

	if d.useDeps != nil {
		toks := make([]string, 0, len(d.useDeps))
		for _, u := range d.useDeps {
			toks = append(toks, u.String())
		}
		b.WriteString("[" + strings.Join(toks, ",") + "]")
	}

	if d.repo != "" {
		b.WriteString("::" + d.repo)
	}
	return b.String()
}

// Cmp totally orders package dependencies over (category, package,
// version, blocker, slot, subslot, slot operator, USE deps, repo).
func (d *Dep) Cmp(other *Dep) int {
	if c := strings.Compare(d.category, other.category); c != 0 {
		return c
	}
	if c := strings.Compare(d.pkg, other.pkg); c != 0 {
		return c
	}
	switch {
	case d.version == nil && other.version != nil:
		return -1
	case d.version != nil && other.version == nil:
		return 1
	case d.version != nil:
		if c := d.version.Cmp(other.version); c != 0 {
			return c
		}
	}
	if c := int(d.blocker) - int(other.blocker); c != 0 {
		return c
	}
	if c := strings.Compare(d.slot, other.slot); c != 0 {
		return c
	}
	if c := strings.Compare(d.subslot, other.subslot); c != 0 {
		return c
	}
	if c := int(d.slotOp) - int(other.slotOp); c != 0 {
		return c
	}
	if c := cmpUseDeps(d.useDeps, other.useDeps); c != 0 {
		return c
	}
	return strings.Compare(d.repo, other.repo)
}

func cmpUseDeps(a, b []*UseDep) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := a[i].Cmp(b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

// Equal reports equivalence under Cmp.
func (d *Dep) Equal(other *Dep) bool {
	return d.Cmp(other) == 0
}

// Hash returns a hash consistent with Equal.
func (d *Dep) Hash() uint64 {
	h := fnv.New64a()
	hashStr(h, d.category)
	hashStr(h, d.pkg)
	if d.version != nil {
		hashUint(h, uint64(d.version.op)+1)
		d.version.hashInto(h)
	}
	hashUint(h, uint64(d.blocker))
	hashStr(h, d.slot)
	hashStr(h, d.subslot)
	hashUint(h, uint64(d.slotOp))
	for _, u := range d.useDeps {
		hashStr(h, u.String())
	}
	hashStr(h, d.repo)
	return h.Sum64()
}

// Intersects reports whether two package dependencies can be satisfied
// by a common package, ignoring blockers.
func (d *Dep) Intersects(other *Dep) bool {
	if d.category != other.category || d.pkg != other.pkg {
		return false
	}
	if d.slot != "" && other.slot != "" && d.slot != other.slot {
		return false
	}
	if d.subslot != "" && other.subslot != "" && d.subslot != other.subslot {
		return false
	}
	if d.useDeps != nil && other.useDeps != nil && useDepsConflict(d.useDeps, other.useDeps) {
		return false
	}
	if d.repo != "" && other.repo != "" && d.repo != other.repo {
		return false
	}
	if d.version != nil && other.version != nil {
		return d.version.Intersects(other.version)
	}
	return true
}

// useDepsConflict reports whether the symmetric difference of the two
// token sets requires a flag both enabled and disabled.
func useDepsConflict(a, b []*UseDep) bool {
	inA := make(map[string]bool, len(a))
	for _, u := range a {
		inA[u.String()] = true
	}
	inB := make(map[string]bool, len(b))
	for _, u := range b {
		inB[u.String()] = true
	}
	diff := make(map[string]bool)
	for tok := range inA {
		if !inB[tok] {
			diff[tok] = true
		}
	}
	for tok := range inB {
		if !inA[tok] {
			diff[tok] = true
		}
	}
	for tok := range diff {
		if strings.HasPrefix(tok, "-") && diff[tok[1:]] {
			return true
		}
	}
	return false
}

// IntersectsCpv reports whether the dependency covers the given Cpv.
func (d *Dep) IntersectsCpv(cpv *Cpv) bool {
	if d.category != cpv.Category || d.pkg != cpv.Package {
		return false
	}
	if d.version == nil {
		return true
	}
	return d.version.Intersects(cpv.Version)
}

// ValidCategory reports whether s is a valid category name.
func ValidCategory(s string) bool {
	if s == "" || !isWordStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !isAlnum(c) && c != '+' && c != '_' && c != '.' && c != '-' {
			return false
		}
	}
	return true
}

// ValidPackageName reports whether s is a valid package name.
func ValidPackageName(s string) bool {
	if s == "" || !isWordStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !isAlnum(c) && c != '+' && c != '_' && c != '-' {
			return false
		}
	}
	return true
}

// ValidSlotName reports whether s is a valid slot or subslot name.
func ValidSlotName(s string) bool {
	if s == "" || !isWordStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !isAlnum(c) && c != '+' && c != '_' && c != '.' && c != '-' {
			return false
		}
	}
	return true
}

// ValidRepoName reports whether s is a valid repository name.
func ValidRepoName(s string) bool {
	if s == "" || !isWordStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !isAlnum(c) && c != '_' && c != '-' {
			return false
		}
	}
	return true
}

func isWordStart(c byte) bool {
	return isAlnum(c) || c == '_'
}

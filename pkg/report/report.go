// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

// Package report defines the structured findings produced by scans: a
// kind drawn from a fixed registry, a scope pinning the finding to a
// repo, category, package, or version, and a message.  Reports order
// totally and serialize to line-delimited JSON for replay.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
)

// Level grades the severity of a report kind.
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelStyle
	LevelInfo
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelStyle:
		return "style"
	case LevelInfo:
		return "info"
	default:
		panic(fmt.Sprintf("invalid Level: %d", int(l)))
	}
}

// ParseLevel resolves a level name.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "error":
		return LevelError, nil
	case "warning":
		return LevelWarning, nil
	case "style":
		return LevelStyle, nil
	case "info":
		return LevelInfo, nil
	default:
		return 0, fmt.Errorf("unknown report level: %q", s)
	}
}

// Kind names one variety of finding.
type Kind string

// The registered report kinds.
const (
	CheckError                Kind = "CheckError"
	DependencyDeprecated      Kind = "DependencyDeprecated"
	DependencyInvalid         Kind = "DependencyInvalid"
	DependencyRevisionMissing Kind = "DependencyRevisionMissing"
	EapiBanned                Kind = "EapiBanned"
	EapiDeprecated            Kind = "EapiDeprecated"
	EapiInvalid               Kind = "EapiInvalid"
	EbuildNameInvalid         Kind = "EbuildNameInvalid"
	EbuildVersionsEqual       Kind = "EbuildVersionsEqual"
	IgnoreInvalid             Kind = "IgnoreInvalid"
	IgnoreUnused              Kind = "IgnoreUnused"
	KeywordsUnsorted          Kind = "KeywordsUnsorted"
	KeywordsOverlapping       Kind = "KeywordsOverlapping"
	LicenseInvalid            Kind = "LicenseInvalid"
	ManifestCollide           Kind = "ManifestCollide"
	ManifestConflict          Kind = "ManifestConflict"
	ManifestInvalid           Kind = "ManifestInvalid"
	MetadataError             Kind = "MetadataError"
	PackageOverride           Kind = "PackageOverride"
	PropertiesInvalid         Kind = "PropertiesInvalid"
	RepoCategoryEmpty         Kind = "RepoCategoryEmpty"
	RepoPackageEmpty          Kind = "RepoPackageEmpty"
	RestrictInvalid           Kind = "RestrictInvalid"
	SlotMissing               Kind = "SlotMissing"
	UriInvalid                Kind = "UriInvalid"
	WhitespaceInvalid         Kind = "WhitespaceInvalid"
)

var kindLevels = map[Kind]Level{
	CheckError:                LevelError,
	DependencyDeprecated:      LevelWarning,
	DependencyInvalid:         LevelError,
	DependencyRevisionMissing: LevelStyle,
	EapiBanned:                LevelError,
	EapiDeprecated:            LevelWarning,
	EapiInvalid:               LevelError,
	EbuildNameInvalid:         LevelError,
	EbuildVersionsEqual:       LevelError,
	IgnoreInvalid:             LevelWarning,
	IgnoreUnused:              LevelWarning,
	KeywordsUnsorted:          LevelStyle,
	KeywordsOverlapping:       LevelError,
	LicenseInvalid:            LevelError,
	ManifestCollide:           LevelError,
	ManifestConflict:          LevelError,
	ManifestInvalid:           LevelError,
	MetadataError:             LevelError,
	PackageOverride:           LevelWarning,
	PropertiesInvalid:         LevelError,
	RepoCategoryEmpty:         LevelWarning,
	RepoPackageEmpty:          LevelWarning,
	RestrictInvalid:           LevelError,
	SlotMissing:               LevelWarning,
	UriInvalid:                LevelError,
	WhitespaceInvalid:         LevelStyle,
}

// Kinds returns every registered kind in sorted order.
func Kinds() []Kind {
	ret := make([]Kind, 0, len(kindLevels))
	for k := range kindLevels {
		ret = append(ret, k)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

// ParseKind resolves a kind name.
func ParseKind(s string) (Kind, error) {
	if _, ok := kindLevels[Kind(s)]; !ok {
		return "", fmt.Errorf("unknown report kind: %q", s)
	}
	return Kind(s), nil
}

// Level returns the kind's severity.
func (k Kind) Level() Level { return kindLevels[k] }

// ScopeKind grades the granularity of a scope, narrowest first.
type ScopeKind int

const (
	ScopeVersion ScopeKind = iota
	ScopePackage
	ScopeCategory
	ScopeRepo
)

// String implements fmt.Stringer.
func (s ScopeKind) String() string {
	switch s {
	case ScopeVersion:
		return "version"
	case ScopePackage:
		return "package"
	case ScopeCategory:
		return "category"
	case ScopeRepo:
		return "repo"
	default:
		panic(fmt.Sprintf("invalid ScopeKind: %d", int(s)))
	}
}

// ParseScopeKind resolves a scope name.
func ParseScopeKind(s string) (ScopeKind, error) {
	switch s {
	case "version":
		return ScopeVersion, nil
	case "package":
		return ScopePackage, nil
	case "category":
		return ScopeCategory, nil
	case "repo":
		return ScopeRepo, nil
	default:
		return 0, fmt.Errorf("unknown scope: %q", s)
	}
}

// A Scope pins a report to a repo, category, package, or version, with
// an optional line number for version scopes.
type Scope struct {
	Kind     ScopeKind
	Repo     string
	Category string
	Package  string
	Version  string
	Line     int // 0 when absent
}

// RepoScope returns the scope covering a whole repo.
func RepoScope(repo string) Scope {
	return Scope{Kind: ScopeRepo, Repo: repo}
}

// CategoryScope returns the scope covering one category.
func CategoryScope(repo, category string) Scope {
	return Scope{Kind: ScopeCategory, Repo: repo, Category: category}
}

// PackageScope returns the scope covering one package.
func PackageScope(repo string, cpn atom.Cpn) Scope {
	return Scope{Kind: ScopePackage, Repo: repo, Category: cpn.Category, Package: cpn.Package}
}

// VersionScope returns the scope covering one release.
func VersionScope(repo string, cpv *atom.Cpv) Scope {
	return Scope{
		Kind:     ScopeVersion,
		Repo:     repo,
		Category: cpv.Category,
		Package:  cpv.Package,
		Version:  cpv.Version.Text(),
	}
}

// WithLine returns a copy of the scope carrying a source line.
func (s Scope) WithLine(line int) Scope {
	s.Line = line
	return s
}

// String renders the scope location, e.g. "cat/pkg-1.2.3, line 4".
func (s Scope) String() string {
	var b strings.Builder
	switch s.Kind {
	case ScopeRepo:
		b.WriteString(s.Repo)
	case ScopeCategory:
		b.WriteString(s.Category)
	case ScopePackage:
		b.WriteString(s.Category + "/" + s.Package)
	case ScopeVersion:
		b.WriteString(s.Category + "/" + s.Package + "-" + s.Version)
	}
	if s.Line > 0 {
		b.WriteString(", line " + strconv.Itoa(s.Line))
	}
	return b.String()
}

// Cmp orders scopes by location: category, package, version, line, then
// granularity.
func (s Scope) Cmp(other Scope) int {
	if c := strings.Compare(s.Repo, other.Repo); c != 0 {
		return c
	}
	if c := strings.Compare(s.Category, other.Category); c != 0 {
		return c
	}
	if c := strings.Compare(s.Package, other.Package); c != 0 {
		return c
	}
	if c := cmpVersions(s.Version, other.Version); c != 0 {
		return c
	}
	if c := s.Line - other.Line; c != 0 {
		return c
	}
	return int(s.Kind) - int(other.Kind)
}

func cmpVersions(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return -1
	case b == "":
		return 1
	}
	av, aerr := atom.ParseVersion(a)
	bv, berr := atom.ParseVersion(b)
	if aerr != nil || berr != nil {
		return strings.Compare(a, b)
	}
	return av.Cmp(bv)
}

// A Report is one structured finding.
type Report struct {
	Kind    Kind
	Scope   Scope
	Message string
}

// New builds a report.
func New(kind Kind, scope Scope, message string) *Report {
	return &Report{Kind: kind, Scope: scope, Message: message}
}

// Level returns the report's severity.
func (r *Report) Level() Level { return r.Kind.Level() }

// String renders "Kind: message", or just "Kind" when the message is
// empty; the scope location is not included.
func (r *Report) String() string {
	msg := string(r.Kind)
	if r.Message != "" {
		msg += ": " + r.Message
	}
	return msg
}

// Cmp totally orders reports over (scope, kind, message).
func (r *Report) Cmp(other *Report) int {
	if c := r.Scope.Cmp(other.Scope); c != 0 {
		return c
	}
	if c := strings.Compare(string(r.Kind), string(other.Kind)); c != 0 {
		return c
	}
	return strings.Compare(r.Message, other.Message)
}

type reportJSON struct {
	Kind     string `json:"kind"`
	Scope    string `json:"scope"`
	Repo     string `json:"repo,omitempty"`
	Category string `json:"category,omitempty"`
	Package  string `json:"package,omitempty"`
	Version  string `json:"version,omitempty"`
	Line     int    `json:"line,omitempty"`
	Message  string `json:"message,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportJSON{
		Kind:     string(r.Kind),
		Scope:    r.Scope.Kind.String(),
		Repo:     r.Scope.Repo,
		Category: r.Scope.Category,
		Package:  r.Scope.Package,
		Version:  r.Scope.Version,
		Line:     r.Scope.Line,
		Message:  r.Message,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Report) UnmarshalJSON(data []byte) error {
	var raw reportJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind, err := ParseKind(raw.Kind)
	if err != nil {
		return err
	}
	scopeKind, err := ParseScopeKind(raw.Scope)
	if err != nil {
		return err
	}
	r.Kind = kind
	r.Scope = Scope{
		Kind:     scopeKind,
		Repo:     raw.Repo,
		Category: raw.Category,
		Package:  raw.Package,
		Version:  raw.Version,
		Line:     raw.Line,
	}
	r.Message = raw.Message
	return nil
}

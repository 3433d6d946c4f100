// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

// Package eapi maintains the registry of package-manager API revisions.
// Each EAPI is an immutable record describing the parser features,
// metadata keys, dependency keys, and build phases available to ebuilds
// declaring it.  The registry is populated once at init time and never
// mutated afterwards.
package eapi

import (
	"fmt"
	"strconv"
	"strings"
)

// Feature names a boolean capability that gates parser branches and
// build-time behavior.
type Feature string

const (
	// SlotDeps allows ":slot" restrictions in package dependencies.
	SlotDeps Feature = "slot_deps"
	// SubslotDeps allows ":slot/subslot" restrictions.
	SubslotDeps Feature = "subslot_deps"
	// SlotOpDeps allows ":=", ":*", and ":slot=" slot operators.
	SlotOpDeps Feature = "slot_op_deps"
	// UseDeps allows "[flag]" USE restrictions on package dependencies.
	UseDeps Feature = "use_deps"
	// UseDepDefaults allows "(+)" and "(-)" defaults on USE restrictions.
	UseDepDefaults Feature = "use_dep_defaults"
	// Blockers allows "!" weak blockers.
	Blockers Feature = "blockers"
	// StrongBlockers allows "!!" strong blockers.
	StrongBlockers Feature = "strong_blockers"
	// RepoIds allows "::repo" restrictions, an extension never accepted
	// by official EAPIs.
	RepoIds Feature = "repo_ids"
	// SrcUriRenames allows "uri -> name" renames in SRC_URI.
	SrcUriRenames Feature = "src_uri_renames"
	// RequiredUse enables the REQUIRED_USE metadata key and grammar.
	RequiredUse Feature = "required_use"
	// RequiredUseOneOf enables the "??" at-most-one-of group.
	RequiredUseOneOf Feature = "required_use_one_of"
	// Properties enables the PROPERTIES metadata key.
	Properties Feature = "properties"
	// TestPhase exposes the src_test phase.
	TestPhase Feature = "test_phase"
)

// An Eapi is one revision of the package-manager API.  Values are
// registered at init and shared; callers must treat them as immutable.
type Eapi struct {
	id       string
	index    int
	features map[Feature]bool
	metadata []string
	depKeys  []string
	phases   []Phase
}

// A Phase is a build phase together with its eclass hook points.
type Phase struct {
	Name string
	// PreHook and PostHook name the functions run around the phase, or
	// are empty when the phase has none.
	PreHook  string
	PostHook string
}

// Id returns the EAPI identifier, e.g. "8".
func (e *Eapi) Id() string { return e.id }

// String implements fmt.Stringer.
func (e *Eapi) String() string { return e.id }

// Has reports whether the EAPI supports the named feature.
func (e *Eapi) Has(f Feature) bool { return e.features[f] }

// MetadataKeys returns the recognized metadata keys in canonical order.
func (e *Eapi) MetadataKeys() []string { return e.metadata }

// DependencyKeys returns the metadata keys parsed with the package
// dependency grammar.
func (e *Eapi) DependencyKeys() []string { return e.depKeys }

// Phases returns the build phases in run order.
func (e *Eapi) Phases() []Phase { return e.phases }

// Cmp compares two EAPIs by release sequence.
func (e *Eapi) Cmp(other *Eapi) int {
	switch {
	case e.index < other.index:
		return -1
	case e.index > other.index:
		return 1
	default:
		return 0
	}
}

// UnsupportedError is returned for unknown EAPI identifiers and for
// inputs using constructs forbidden by the active EAPI.
type UnsupportedError struct {
	Id      string
	Feature Feature
}

func (e *UnsupportedError) Error() string {
	if e.Feature != "" {
		return fmt.Sprintf("EAPI %s: unsupported feature: %s", e.Id, e.Feature)
	}
	return fmt.Sprintf("unsupported EAPI: %s", e.Id)
}

// Unsupported returns the error reported when a parse uses a construct
// the given EAPI forbids.
func Unsupported(e *Eapi, f Feature) error {
	return &UnsupportedError{Id: e.id, Feature: f}
}

// Parse resolves an EAPI identifier against the registry.
func Parse(s string) (*Eapi, error) {
	if e, ok := registryById[s]; ok {
		return e, nil
	}
	return nil, &UnsupportedError{Id: s}
}

// All returns every registered EAPI, oldest first.
func All() []*Eapi { return registry }

// Latest returns the newest registered EAPI.
func Latest() *Eapi { return registry[len(registry)-1] }

// Range resolves a bounded range expression over the registry: "..8",
// "7..", "5..=8", or "5..8".  The "..=" form includes its upper bound;
// ".." excludes it.
func Range(s string) ([]*Eapi, error) {
	sep, inclusive := "..", false
	if strings.Contains(s, "..=") {
		sep, inclusive = "..=", true
	}
	lo, hi, found := strings.Cut(s, sep)
	if !found {
		return nil, fmt.Errorf("invalid EAPI range: %q", s)
	}

	start := 0
	if lo != "" {
		e, err := Parse(lo)
		if err != nil {
			return nil, fmt.Errorf("invalid EAPI range: %q: %w", s, err)
		}
		start = e.index
	}

	end := len(registry)
	if hi != "" {
		e, err := Parse(hi)
		if err != nil {
			return nil, fmt.Errorf("invalid EAPI range: %q: %w", s, err)
		}
		end = e.index
		if inclusive {
			end++
		}
	} else if inclusive {
		return nil, fmt.Errorf("invalid EAPI range: %q", s)
	}

	if start > end {
		return nil, fmt.Errorf("invalid EAPI range: %q", s)
	}
	return registry[start:end], nil
}

var (
	registry     []*Eapi
	registryById = make(map[string]*Eapi)
	extended     *Eapi
)

// Extended returns the internal superset EAPI: the latest official EAPI
// plus the extensions (e.g. "::repo" dependencies) accepted when parsing
// user input rather than ebuild metadata.  It is not resolvable through
// Parse.
func Extended() *Eapi { return extended }

func register(id string, features []Feature, metadata, depKeys []string, phases []Phase) *Eapi {
	e := &Eapi{
		id:       id,
		index:    len(registry),
		features: make(map[Feature]bool, len(features)),
		metadata: metadata,
		depKeys:  depKeys,
		phases:   phases,
	}
	for _, f := range features {
		e.features[f] = true
	}
	registry = append(registry, e)
	registryById[id] = e
	return e
}

func phases(names ...string) []Phase {
	ret := make([]Phase, 0, len(names))
	for _, name := range names {
		ret = append(ret, Phase{
			Name:     name,
			PreHook:  "pre_" + name,
			PostHook: "post_" + name,
		})
	}
	return ret
}

func init() {
	baseMetadata := []string{
		"DEPEND", "RDEPEND", "PDEPEND", "SLOT", "SRC_URI", "LICENSE",
		"RESTRICT", "HOMEPAGE", "DESCRIPTION", "KEYWORDS", "IUSE", "EAPI",
		"INHERIT", "INHERITED", "DEFINED_PHASES",
	}
	baseDepKeys := []string{"DEPEND", "RDEPEND", "PDEPEND"}
	basePhases := phases(
		"pkg_setup", "src_unpack", "src_compile", "src_test", "src_install",
		"pkg_preinst", "pkg_postinst", "pkg_prerm", "pkg_postrm",
	)

	withKeys := func(base []string, extra ...string) []string {
		ret := append([]string{}, base...)
		ret = append(ret, extra...)
		return ret
	}

	features := []Feature{Blockers, TestPhase}
	register("0", features, baseMetadata, baseDepKeys, basePhases)

	features = append(features, SlotDeps)
	register("1", features, baseMetadata, baseDepKeys, basePhases)

	features = append(features, StrongBlockers, SrcUriRenames)
	eapi2Phases := phases(
		"pkg_setup", "src_unpack", "src_prepare", "src_configure",
		"src_compile", "src_test", "src_install",
		"pkg_preinst", "pkg_postinst", "pkg_prerm", "pkg_postrm",
	)
	register("2", features, baseMetadata, baseDepKeys, eapi2Phases)

	register("3", features, baseMetadata, baseDepKeys, eapi2Phases)

	features = append(features, UseDeps, UseDepDefaults, RequiredUse, Properties)
	eapi4Metadata := withKeys(baseMetadata, "REQUIRED_USE", "PROPERTIES")
	eapi4Phases := phases(
		"pkg_pretend", "pkg_setup", "src_unpack", "src_prepare",
		"src_configure", "src_compile", "src_test", "src_install",
		"pkg_preinst", "pkg_postinst", "pkg_prerm", "pkg_postrm",
	)
	register("4", features, eapi4Metadata, baseDepKeys, eapi4Phases)

	features = append(features, SubslotDeps, SlotOpDeps, RequiredUseOneOf)
	register("5", features, eapi4Metadata, baseDepKeys, eapi4Phases)
	register("6", features, eapi4Metadata, baseDepKeys, eapi4Phases)

	eapi7Metadata := withKeys(eapi4Metadata, "BDEPEND")
	eapi7DepKeys := withKeys(baseDepKeys, "BDEPEND")
	register("7", features, eapi7Metadata, eapi7DepKeys, eapi4Phases)

	eapi8Metadata := withKeys(eapi7Metadata, "IDEPEND")
	eapi8DepKeys := withKeys(eapi7DepKeys, "IDEPEND")
	latest := register("8", features, eapi8Metadata, eapi8DepKeys, eapi4Phases)

	extended = &Eapi{
		id:       "ebuildkit",
		index:    latest.index + 1,
		features: make(map[Feature]bool, len(latest.features)+1),
		metadata: latest.metadata,
		depKeys:  latest.depKeys,
		phases:   latest.phases,
	}
	for f := range latest.features {
		extended.features[f] = true
	}
	extended.features[RepoIds] = true
}

// IsValidId reports whether s is a syntactically plausible EAPI
// identifier (used to reject junk before registry lookup).
func IsValidId(s string) bool {
	if s == "" {
		return false
	}
	if _, err := strconv.Atoi(s); err == nil {
		return true
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9', r == '_', r == '.', r == '-', r == '+':
		default:
			return false
		}
	}
	return true
}

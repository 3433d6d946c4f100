// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package atom

import "strings"

// UseDepKind classifies a USE dependency token.
type UseDepKind int

const (
	// UseDepPlain is a direct requirement: "flag" or "-flag".
	UseDepPlain UseDepKind = iota
	// UseDepConditional binds the requirement to the parent package's
	// flag state: "flag?" or "!flag?".
	UseDepConditional
	// UseDepEqual requires the flag state to match the parent's:
	// "flag=" or "!flag=".
	UseDepEqual
)

// UseDepDefault is the fallback state for packages not exposing the
// flag.
type UseDepDefault int

const (
	UseDepDefaultNone UseDepDefault = iota
	// UseDepDefaultEnabled is the "(+)" default.
	UseDepDefaultEnabled
	// UseDepDefaultDisabled is the "(-)" default.
	UseDepDefaultDisabled
)

// A UseDep is a single USE dependency token.  It doubles as the guard of
// conditional dependency groups ("flag? ( ... )").
type UseDep struct {
	Flag    string
	Kind    UseDepKind
	Enabled bool
	Default UseDepDefault
}

// ParseUseDep parses a single USE dependency token.
func ParseUseDep(s string) (*UseDep, error) {
	fail := func(reason string) (*UseDep, error) {
		return nil, parseErr("USE dependency", s, reason)
	}

	d := &UseDep{Enabled: true}
	tok := s
	negated := false
	switch {
	case strings.HasPrefix(tok, "!"):
		negated = true
		tok = tok[1:]
	case strings.HasPrefix(tok, "-"):
		d.Enabled = false
		tok = tok[1:]
	}

	switch {
	case strings.HasSuffix(tok, "?"):
		d.Kind = UseDepConditional
		d.Enabled = !negated
		tok = tok[:len(tok)-1]
	case strings.HasSuffix(tok, "="):
		d.Kind = UseDepEqual
		d.Enabled = !negated
		tok = tok[:len(tok)-1]
	default:
		if negated {
			return fail("! is only valid with ? or = suffixes")
		}
	}

	switch {
	case strings.HasSuffix(tok, "(+)"):
		d.Default = UseDepDefaultEnabled
		tok = tok[:len(tok)-3]
	case strings.HasSuffix(tok, "(-)"):
		d.Default = UseDepDefaultDisabled
		tok = tok[:len(tok)-3]
	}

	if !validUseFlag(tok) {
		return fail("invalid USE flag name")
	}
	d.Flag = tok
	return d, nil
}

// String reconstructs the token text.
func (d *UseDep) String() string {
	var b strings.Builder
	switch d.Kind {
	case UseDepPlain:
		if !d.Enabled {
			b.WriteByte('-')
		}
	case UseDepConditional, UseDepEqual:
		if !d.Enabled {
			b.WriteByte('!')
		}
	}
	b.WriteString(d.Flag)
	switch d.Default {
	case UseDepDefaultEnabled:
		b.WriteString("(+)")
	case UseDepDefaultDisabled:
		b.WriteString("(-)")
	}
	switch d.Kind {
	case UseDepConditional:
		b.WriteByte('?')
	case UseDepEqual:
		b.WriteByte('=')
	}
	return b.String()
}

// Cmp totally orders USE dependencies by flag, kind, polarity, then
// default.
func (d *UseDep) Cmp(other *UseDep) int {
	if c := strings.Compare(d.Flag, other.Flag); c != 0 {
		return c
	}
	if c := int(d.Kind) - int(other.Kind); c != 0 {
		return c
	}
	if d.Enabled != other.Enabled {
		if other.Enabled {
			return -1
		}
		return 1
	}
	return int(d.Default) - int(other.Default)
}

// sortChar is the character the USE dependency set orders by: the first
// character of the token at or above '0', skipping prefix punctuation.
// The grammar is ASCII-only, keeping the rule well defined.
func (d *UseDep) sortChar() byte {
	s := d.String()
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' {
			return s[i]
		}
	}
	return 0
}

func validUseFlag(s string) bool {
	if s == "" {
		return false
	}
	if !isAlnum(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !isAlnum(c) && c != '+' && c != '_' && c != '@' && c != '-' {
			return false
		}
	}
	return true
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

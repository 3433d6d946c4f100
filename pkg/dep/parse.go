// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package dep

import (
	"fmt"
	"strings"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/eapi"
)

// A ParseError reports input rejected by one of the dependency
// grammars, carrying the offending token and its offset.
type ParseError struct {
	What   string
	Input  string
	Token  string
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("invalid %s: %q: at offset %d (%q): %s",
			e.What, e.Input, e.Offset, e.Token, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %q: %s", e.What, e.Input, e.Reason)
}

// ParsePackage parses a package dependency set (DEPEND and friends).
func ParsePackage(s string, e *eapi.Eapi) (*DepSet[*atom.Dep], error) {
	g := grammar[*atom.Dep]{
		kind:       KindPackage,
		what:       "package dependencies",
		allowAnyOf: true,
		leaf: func(p *parser[*atom.Dep], tok token) (*Dependency[*atom.Dep], error) {
			d, err := atom.ParseDep(tok.text, e)
			if err != nil {
				return nil, err
			}
			return NewEnabled(d), nil
		},
	}
	return g.parse(s, e)
}

// ParseSrcUri parses a SRC_URI set.
func ParseSrcUri(s string, e *eapi.Eapi) (*DepSet[*Uri], error) {
	g := grammar[*Uri]{
		kind: KindSrcUri,
		what: "SRC_URI",
		leaf: func(p *parser[*Uri], tok token) (*Dependency[*Uri], error) {
			rename := ""
			if next, ok := p.peek(); ok && next.text == "->" {
				if !e.Has(eapi.SrcUriRenames) {
					return nil, eapi.Unsupported(e, eapi.SrcUriRenames)
				}
				p.next() // the arrow
				target, ok := p.next()
				if !ok {
					return nil, p.fail(tok, "-> missing rename target")
				}
				rename = target.text
			}
			u, err := NewUri(tok.text, rename)
			if err != nil {
				return nil, err
			}
			return NewEnabled(u), nil
		},
	}
	return g.parse(s, e)
}

// ParseLicense parses a LICENSE set.
func ParseLicense(s string, e *eapi.Eapi) (*DepSet[Token], error) {
	g := tokenGrammar(KindLicense, "LICENSE", true)
	return g.parse(s, e)
}

// ParseProperties parses a PROPERTIES set.
func ParseProperties(s string, e *eapi.Eapi) (*DepSet[Token], error) {
	g := tokenGrammar(KindProperties, "PROPERTIES", false)
	return g.parse(s, e)
}

// ParseRestrict parses a RESTRICT set.
func ParseRestrict(s string, e *eapi.Eapi) (*DepSet[Token], error) {
	g := tokenGrammar(KindRestrict, "RESTRICT", false)
	return g.parse(s, e)
}

// ParseRequiredUse parses a REQUIRED_USE set; the only grammar allowing
// negated leaves and the ^^ / ?? groups.
func ParseRequiredUse(s string, e *eapi.Eapi) (*DepSet[Token], error) {
	if !e.Has(eapi.RequiredUse) {
		return nil, eapi.Unsupported(e, eapi.RequiredUse)
	}
	g := grammar[Token]{
		kind:       KindRequiredUse,
		what:       "REQUIRED_USE",
		allowAnyOf: true,
		allowOneOf: true,
		leaf: func(p *parser[Token], tok token) (*Dependency[Token], error) {
			text := tok.text
			disabled := strings.HasPrefix(text, "!")
			if disabled {
				text = text[1:]
			}
			if !validToken(text) {
				return nil, p.fail(tok, "invalid USE flag token")
			}
			if disabled {
				return NewDisabled(Token(text)), nil
			}
			return NewEnabled(Token(text)), nil
		},
	}
	return g.parse(s, e)
}

func tokenGrammar(kind Kind, what string, allowAnyOf bool) grammar[Token] {
	return grammar[Token]{
		kind:          kind,
		what:          what,
		allowAnyOf:    allowAnyOf,
		rejectNegated: true,
		leaf: func(p *parser[Token], tok token) (*Dependency[Token], error) {
			if !validToken(tok.text) {
				return nil, p.fail(tok, "invalid token")
			}
			return NewEnabled(Token(tok.text)), nil
		},
	}
}

func validToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '+', c == '_', c == '.', c == '-', c == '@':
		default:
			return false
		}
	}
	return true
}

type grammar[T Leaf[T]] struct {
	kind          Kind
	what          string
	allowAnyOf    bool
	allowOneOf    bool
	rejectNegated bool
	leaf          func(*parser[T], token) (*Dependency[T], error)
}

type token struct {
	text   string
	offset int
}

type parser[T Leaf[T]] struct {
	what  string
	input string
	toks  []token
	i     int
}

func (p *parser[T]) next() (token, bool) {
	if p.i >= len(p.toks) {
		return token{}, false
	}
	tok := p.toks[p.i]
	p.i++
	return tok, true
}

func (p *parser[T]) peek() (token, bool) {
	if p.i >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.i], true
}

func (p *parser[T]) fail(tok token, reason string) error {
	return &ParseError{
		What:   p.what,
		Input:  p.input,
		Token:  tok.text,
		Offset: tok.offset,
		Reason: reason,
	}
}

func tokenize(s string) []token {
	var toks []token
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n') {
			i++
		}
		start := i
		for i < len(s) && s[i] != ' ' && s[i] != '\t' && s[i] != '\n' {
			i++
		}
		if i > start {
			toks = append(toks, token{text: s[start:i], offset: start})
		}
	}
	return toks
}

type frame[T Leaf[T]] struct {
	variant Variant
	cond    *atom.UseDep
	nodes   []*Dependency[T]
}

func (g *grammar[T]) parse(s string, e *eapi.Eapi) (*DepSet[T], error) {
	p := &parser[T]{what: g.what, input: s, toks: tokenize(s)}

	var stack []*frame[T]
	var top []*Dependency[T]

	// a group marker awaiting its opening paren
	var pending *frame[T]

	appendNode := func(node *Dependency[T]) {
		if len(stack) > 0 {
			f := stack[len(stack)-1]
			f.nodes = append(f.nodes, node)
		} else {
			top = append(top, node)
		}
	}

	for {
		tok, ok := p.next()
		if !ok {
			break
		}

		if pending != nil && tok.text != "(" {
			return nil, p.fail(tok, "group marker must be followed by (")
		}

		switch {
		case tok.text == "(":
			f := pending
			pending = nil
			if f == nil {
				f = &frame[T]{variant: AllOf}
			}
			stack = append(stack, f)

		case tok.text == ")":
			if len(stack) == 0 {
				return nil, p.fail(tok, "unbalanced parens")
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(f.nodes) == 0 {
				return nil, p.fail(tok, "empty group")
			}
			var node *Dependency[T]
			switch f.variant {
			case AllOf:
				node = NewAllOf(f.nodes...)
			case AnyOf:
				node = NewAnyOf(f.nodes...)
			case ExactlyOneOf:
				node = NewExactlyOneOf(f.nodes...)
			case AtMostOneOf:
				node = NewAtMostOneOf(f.nodes...)
			case Conditional:
				node = NewConditional(f.cond, f.nodes...)
			}
			appendNode(node)

		case tok.text == "||":
			if !g.allowAnyOf {
				return nil, p.fail(tok, "|| groups are not allowed in this context")
			}
			pending = &frame[T]{variant: AnyOf}

		case tok.text == "^^":
			if !g.allowOneOf {
				return nil, p.fail(tok, "^^ groups are not allowed in this context")
			}
			pending = &frame[T]{variant: ExactlyOneOf}

		case tok.text == "??":
			if !g.allowOneOf {
				return nil, p.fail(tok, "?? groups are not allowed in this context")
			}
			if !e.Has(eapi.RequiredUseOneOf) {
				return nil, eapi.Unsupported(e, eapi.RequiredUseOneOf)
			}
			pending = &frame[T]{variant: AtMostOneOf}

		// a conditional guard; leaves can end in "?" too (USE
		// restrictions like "cat/pkg[u?]"), so exclude anything with
		// structure beyond a bare flag
		case strings.HasSuffix(tok.text, "?") && !strings.ContainsAny(tok.text, "/[]"):
			guard, err := atom.ParseUseDep(tok.text)
			if err != nil {
				return nil, p.fail(tok, err.Error())
			}
			if guard.Kind != atom.UseDepConditional || guard.Default != atom.UseDepDefaultNone {
				return nil, p.fail(tok, "invalid conditional guard")
			}
			pending = &frame[T]{variant: Conditional, cond: guard}

		default:
			if strings.HasPrefix(tok.text, "!") && g.rejectNegated {
				return nil, p.fail(tok, "negated tokens are only allowed in REQUIRED_USE")
			}
			node, err := g.leaf(p, tok)
			if err != nil {
				return nil, err
			}
			appendNode(node)
		}
	}

	if pending != nil {
		return nil, &ParseError{What: g.what, Input: s, Reason: "group marker missing its group"}
	}
	if len(stack) > 0 {
		return nil, &ParseError{What: g.what, Input: s, Reason: "unclosed group"}
	}
	return NewDepSet[T](g.kind, top...), nil
}

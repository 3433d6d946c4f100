// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/ebuildkit/ebuildkit/pkg/report"
)

// A Reporter renders a report stream for the user.
type Reporter interface {
	Report(r *report.Report) error
	Close() error
}

// NewReporter builds a reporter by name: "simple" (one line per report
// grouped by package), "json" (one object per line), or "format" with a
// user template using {name}, {kind}, {scope}, {message}, and
// {location} placeholders.  An empty name picks simple for terminals
// and json otherwise.
func NewReporter(name, format string, w io.Writer) (Reporter, error) {
	if name == "" {
		name = "json"
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			name = "simple"
		}
	}
	switch name {
	case "simple":
		return &simpleReporter{w: w}, nil
	case "json":
		return &jsonReporter{enc: json.NewEncoder(w)}, nil
	case "format":
		if format == "" {
			return nil, fmt.Errorf("the format reporter requires --format")
		}
		return &formatReporter{w: w, format: format}, nil
	default:
		return nil, fmt.Errorf("unknown reporter: %q", name)
	}
}

// simpleReporter prints reports grouped under their package header.
type simpleReporter struct {
	w    io.Writer
	last string
}

func (r *simpleReporter) Report(rep *report.Report) error {
	header := rep.Scope.String()
	if header != r.last {
		if r.last != "" {
			if _, err := fmt.Fprintln(r.w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(r.w, "%s\n", header); err != nil {
			return err
		}
		r.last = header
	}
	_, err := fmt.Fprintf(r.w, "  %s\n", rep)
	return err
}

func (r *simpleReporter) Close() error { return nil }

type jsonReporter struct {
	enc *json.Encoder
}

func (r *jsonReporter) Report(rep *report.Report) error { return r.enc.Encode(rep) }
func (r *jsonReporter) Close() error                    { return nil }

type formatReporter struct {
	w      io.Writer
	format string
}

func (r *formatReporter) Report(rep *report.Report) error {
	line := strings.NewReplacer(
		"{name}", string(rep.Kind),
		"{kind}", string(rep.Kind),
		"{scope}", rep.Scope.Kind.String(),
		"{message}", rep.Message,
		"{location}", rep.Scope.String(),
	).Replace(r.format)
	_, err := fmt.Fprintln(r.w, line)
	return err
}

func (r *formatReporter) Close() error { return nil }

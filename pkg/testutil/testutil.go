// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds shared test helpers: structural assertions
// with readable diffs, and a builder for throwaway ebuild repositories.
package testutil

import (
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/assert"
)

var spewConfig = spew.ConfigState{
	Indent:                  "  ",
	DisableCapacities:       true,
	DisablePointerAddresses: true,
	SortKeys:                true,
}

// AssertEqual compares two values structurally and, on mismatch, fails
// with a unified diff of their dumped forms, which reads better than
// one-line mismatches for nested trees.
func AssertEqual(t *testing.T, expected, actual interface{}, msgAndArgs ...interface{}) bool {
	t.Helper()
	if assert.ObjectsAreEqual(expected, actual) {
		return true
	}
	exp := spewConfig.Sdump(expected)
	act := spewConfig.Sdump(actual)
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(exp),
		B:        difflib.SplitLines(act),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	})
	return assert.Fail(t, "Not equal:\n"+diff, msgAndArgs...)
}

// Dedent strips the common leading tab indentation from a raw-string
// fixture so test files can indent them naturally.
func Dedent(s string) string {
	s = strings.TrimPrefix(s, "\n")
	lines := strings.Split(s, "\n")
	prefix := ""
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		trimmed := strings.TrimLeft(line, "\t")
		candidate := line[:len(line)-len(trimmed)]
		if prefix == "" || len(candidate) < len(prefix) {
			prefix = candidate
		}
	}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.Join(lines, "\n")
}

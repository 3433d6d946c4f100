// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package cliutil_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/cliutil"
	"github.com/ebuildkit/ebuildkit/pkg/report"
	"github.com/ebuildkit/ebuildkit/pkg/testutil"
)

func sampleReports(t *testing.T) []*report.Report {
	t.Helper()
	cpv1, err := atom.ParseCpv("cat/pkg-1")
	require.NoError(t, err)
	cpv2, err := atom.ParseCpv("cat/pkg-2")
	require.NoError(t, err)
	return []*report.Report{
		report.New(report.DependencyDeprecated,
			report.VersionScope("r", cpv1), "DEPEND: cat/old"),
		report.New(report.KeywordsUnsorted,
			report.VersionScope("r", cpv1), "unsorted KEYWORDS"),
		report.New(report.LicenseInvalid,
			report.VersionScope("r", cpv2), "missing LICENSE"),
	}
}

func render(t *testing.T, name, format string) string {
	t.Helper()
	var b strings.Builder
	r, err := cliutil.NewReporter(name, format, &b)
	require.NoError(t, err)
	for _, rep := range sampleReports(t) {
		require.NoError(t, r.Report(rep))
	}
	require.NoError(t, r.Close())
	return b.String()
}

func TestSimpleReporter(t *testing.T) {
	t.Parallel()

	expected := testutil.Dedent(`
		cat/pkg-1
		  DependencyDeprecated: DEPEND: cat/old
		  KeywordsUnsorted: unsorted KEYWORDS

		cat/pkg-2
		  LicenseInvalid: missing LICENSE
	`)
	assert.Equal(t, expected, render(t, "simple", ""))
}

func TestJsonReporter(t *testing.T) {
	t.Parallel()

	out := render(t, "json", "")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"kind":"DependencyDeprecated"`)
	assert.Contains(t, lines[0], `"version":"1"`)
}

func TestFormatReporter(t *testing.T) {
	t.Parallel()

	out := render(t, "format", "{kind}|{scope}|{location}|{message}")
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t,
		"DependencyDeprecated|version|cat/pkg-1|DEPEND: cat/old", lines[0])

	_, err := cliutil.NewReporter("format", "", &strings.Builder{})
	assert.Error(t, err, "the format reporter requires a template")

	_, err = cliutil.NewReporter("bogus", "", &strings.Builder{})
	assert.Error(t, err)
}

// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package service_test

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebuildkit/ebuildkit/pkg/report"
	"github.com/ebuildkit/ebuildkit/pkg/repo"
	"github.com/ebuildkit/ebuildkit/pkg/scan"
	"github.com/ebuildkit/ebuildkit/pkg/service"
	"github.com/ebuildkit/ebuildkit/pkg/testutil"
)

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()

	b := testutil.NewRepo(t, "testrepo")
	r, err := repo.Open(b.Root())
	require.NoError(t, err)

	srv := httptest.NewServer(service.New(r, scan.Options{}).Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/version")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, service.Version, body["version"])
}

func TestScanEndpoint(t *testing.T) {
	t.Parallel()
	requireBash(t)

	b := testutil.NewRepo(t, "testrepo")
	b.File("profiles/package.deprecated", "cat/deprecated\n")
	b.Ebuild("cat", "pkg", "1", `
		EAPI=8
		DESCRIPTION="depends on a deprecated package"
		SLOT="0"
		DEPEND="cat/deprecated"
	`)
	b.SimpleEbuild("cat", "deprecated", "1")
	r, err := repo.Open(b.Root())
	require.NoError(t, err)

	srv := httptest.NewServer(service.New(r, scan.Options{
		Enabled: map[report.Kind]bool{report.DependencyDeprecated: true},
	}).Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/scan")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var reports []*report.Report
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rep report.Report
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rep))
		reports = append(reports, &rep)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, reports, 1)
	assert.Equal(t, report.DependencyDeprecated, reports[0].Kind)
	assert.Equal(t, "cat/pkg-1", reports[0].Scope.String())
}

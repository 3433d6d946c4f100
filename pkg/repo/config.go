// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ebuildkit/ebuildkit/pkg/manifest"
)

// Config is the repository configuration read from metadata/layout.conf
// and profiles/.
type Config struct {
	// Id is the repository name from profiles/repo_name, falling back
	// to the root directory's basename.
	Id string
	// Priority orders repositories in a set; higher wins.
	Priority int
	// Masters names the repositories this one inherits from.
	Masters []string
	// ThinManifests restricts Manifests to DIST entries.
	ThinManifests bool
	// ManifestHashes are the digest kinds recorded when writing.
	ManifestHashes []manifest.HashKind
	// ManifestRequiredHashes are the digest kinds enforced when
	// verifying.
	ManifestRequiredHashes []manifest.HashKind
	// Categories is the profiles/categories allowlist; empty means the
	// filesystem is scanned instead.
	Categories []string
	// EapisBanned lists EAPIs new ebuilds must not use.
	EapisBanned []string
	// EapisDeprecated lists EAPIs new ebuilds should migrate off.
	EapisDeprecated []string
}

func defaultConfig(root string) *Config {
	return &Config{
		Id:                     filepath.Base(root),
		ManifestHashes:         []manifest.HashKind{manifest.Blake2b, manifest.Sha512},
		ManifestRequiredHashes: []manifest.HashKind{manifest.Blake2b},
	}
}

// loadConfig reads the repository configuration under root.
func loadConfig(root string) (*Config, error) {
	cfg := defaultConfig(root)

	if data, err := os.ReadFile(filepath.Join(root, "profiles", "repo_name")); err == nil {
		if name := strings.TrimSpace(string(data)); name != "" {
			cfg.Id = name
		}
	}

	if err := cfg.loadLayoutConf(filepath.Join(root, "metadata", "layout.conf")); err != nil {
		return nil, err
	}

	cats, err := readLines(filepath.Join(root, "profiles", "categories"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg.Categories = cats

	return cfg, nil
}

// loadLayoutConf parses the "key = value" format of layout.conf.
func (cfg *Config) loadLayoutConf(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, found := strings.Cut(line, "=")
		if !found {
			return fmt.Errorf("%s: line %d: malformed line: %q", path, lineno, line)
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		switch key {
		case "masters":
			cfg.Masters = strings.Fields(val)
		case "thin-manifests":
			cfg.ThinManifests = val == "true"
		case "manifest-hashes":
			cfg.ManifestHashes = parseHashKinds(val)
		case "manifest-required-hashes":
			cfg.ManifestRequiredHashes = parseHashKinds(val)
		case "eapis-banned":
			cfg.EapisBanned = strings.Fields(val)
		case "eapis-deprecated":
			cfg.EapisDeprecated = strings.Fields(val)
		}
	}
	return scanner.Err()
}

func parseHashKinds(val string) []manifest.HashKind {
	var ret []manifest.HashKind
	for _, name := range strings.Fields(val) {
		ret = append(ret, manifest.HashKind(strings.ToUpper(name)))
	}
	return ret
}

// RequiredHashSet returns the enforced digest kinds as a set.
func (cfg *Config) RequiredHashSet() map[manifest.HashKind]bool {
	ret := make(map[manifest.HashKind]bool, len(cfg.ManifestRequiredHashes))
	for _, k := range cfg.ManifestRequiredHashes {
		ret[k] = true
	}
	return ret
}

// HasMaster reports whether the repository's master chain declares the
// named repository.
func (cfg *Config) HasMaster(name string) bool {
	for _, m := range cfg.Masters {
		if m == name {
			return true
		}
	}
	return false
}

// readLines reads a newline-separated list file, dropping blanks and
// "#" comments.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var ret []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ret = append(ret, line)
	}
	return ret, scanner.Err()
}

// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

// Package manifest implements the per-package Manifest file: a table of
// (kind, name, size, checksums) rows, with verification against files on
// disk and regeneration after fetching.
package manifest

import (
	"bufio"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
	"lukechampine.com/blake3"
)

// EntryKind classifies a manifest row.
type EntryKind string

const (
	// Aux covers files under the package's files/ directory.
	Aux EntryKind = "AUX"
	// Dist covers fetched distfiles.
	Dist EntryKind = "DIST"
	// Ebuild covers the build files themselves.
	Ebuild EntryKind = "EBUILD"
	// Misc covers remaining package-directory files.
	Misc EntryKind = "MISC"
)

func parseEntryKind(s string) (EntryKind, error) {
	switch EntryKind(s) {
	case Aux, Dist, Ebuild, Misc:
		return EntryKind(s), nil
	default:
		return "", fmt.Errorf("unknown manifest entry kind: %q", s)
	}
}

// HashKind names a checksum algorithm.
type HashKind string

const (
	Blake2b HashKind = "BLAKE2B"
	Blake3  HashKind = "BLAKE3"
	Sha512  HashKind = "SHA512"
)

// hashers maps the supported hash kinds to constructors.  The table is
// extensible: registering a kind here is all a new algorithm needs.
var hashers = map[HashKind]func() hash.Hash{
	Blake2b: func() hash.Hash {
		h, err := blake2b.New512(nil)
		if err != nil {
			panic(err)
		}
		return h
	},
	Blake3: func() hash.Hash { return blake3.New(32, nil) },
	Sha512: sha512.New,
}

// Supported reports whether the hash kind can be computed.
func (k HashKind) Supported() bool {
	_, ok := hashers[k]
	return ok
}

// An Entry is one manifest row.
type Entry struct {
	Kind   EntryKind
	Name   string
	Size   int64
	Hashes map[HashKind]string
}

// A Manifest is the parsed contents of one Manifest file.
type Manifest struct {
	entries []*Entry
}

// Parse reads a line-oriented Manifest.  Each line is
// "KIND NAME SIZE (HASH HEX)+"; at least one hash pair is required and
// an empty manifest is rejected.
func Parse(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineno, err)
		}
		m.entries = append(m.entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(m.entries) == 0 {
		return nil, fmt.Errorf("empty manifest")
	}
	return m, nil
}

// ParseFile reads the Manifest at path.
func ParseFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func parseLine(line string) (*Entry, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return nil, fmt.Errorf("malformed manifest line: %q", line)
	}
	if (len(fields)-3)%2 != 0 {
		return nil, fmt.Errorf("odd hash token count: %q", line)
	}

	kind, err := parseEntryKind(fields[0])
	if err != nil {
		return nil, err
	}
	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil || size < 0 {
		return nil, fmt.Errorf("invalid size: %q", fields[2])
	}

	entry := &Entry{
		Kind:   kind,
		Name:   fields[1],
		Size:   size,
		Hashes: make(map[HashKind]string, (len(fields)-3)/2),
	}
	for i := 3; i < len(fields); i += 2 {
		kind := HashKind(fields[i])
		digest := strings.ToLower(fields[i+1])
		if _, err := hex.DecodeString(digest); err != nil {
			return nil, fmt.Errorf("invalid %s digest: %q", kind, fields[i+1])
		}
		if _, dup := entry.Hashes[kind]; dup {
			return nil, fmt.Errorf("duplicate %s digest for %s", kind, entry.Name)
		}
		entry.Hashes[kind] = digest
	}
	return entry, nil
}

// Entries returns the manifest rows sorted by (kind, name).
func (m *Manifest) Entries() []*Entry {
	ret := append([]*Entry{}, m.entries...)
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].Kind != ret[j].Kind {
			return ret[i].Kind < ret[j].Kind
		}
		return ret[i].Name < ret[j].Name
	})
	return ret
}

// Get returns the entry with the given kind and name.
func (m *Manifest) Get(kind EntryKind, name string) *Entry {
	for _, e := range m.entries {
		if e.Kind == kind && e.Name == name {
			return e
		}
	}
	return nil
}

// Distfiles returns the DIST entries.
func (m *Manifest) Distfiles() []*Entry {
	var ret []*Entry
	for _, e := range m.entries {
		if e.Kind == Dist {
			ret = append(ret, e)
		}
	}
	return ret
}

// Len returns the number of rows.
func (m *Manifest) Len() int { return len(m.entries) }

// Insert adds or replaces the entry with the same kind and name.
func (m *Manifest) Insert(entry *Entry) {
	for i, e := range m.entries {
		if e.Kind == entry.Kind && e.Name == entry.Name {
			m.entries[i] = entry
			return
		}
	}
	m.entries = append(m.entries, entry)
}

// Remove deletes the entry with the given kind and name, reporting
// whether it was present.
func (m *Manifest) Remove(kind EntryKind, name string) bool {
	for i, e := range m.entries {
		if e.Kind == kind && e.Name == name {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return true
		}
	}
	return false
}

// WriteTo writes the manifest in canonical order with a trailing
// newline.
func (m *Manifest) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for _, e := range m.Entries() {
		kinds := make([]string, 0, len(e.Hashes))
		for k := range e.Hashes {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		parts := make([]string, 0, 3+2*len(kinds))
		parts = append(parts, string(e.Kind), e.Name, strconv.FormatInt(e.Size, 10))
		for _, k := range kinds {
			parts = append(parts, k, e.Hashes[HashKind(k)])
		}
		n, err := fmt.Fprintln(w, strings.Join(parts, " "))
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// A VerifyError reports a single entry failing verification.
type VerifyError struct {
	Entry  *Entry
	Hash   HashKind // empty for size/existence failures
	Reason string
}

func (e *VerifyError) Error() string {
	if e.Hash != "" {
		return fmt.Sprintf("%s: %s checksum failed: %s", e.Entry.Name, e.Hash, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Entry.Name, e.Reason)
}

// Resolver maps a manifest entry to the on-disk file backing it: DIST
// entries resolve into the distdir, AUX entries into files/, and the
// rest into the package directory.
type Resolver func(e *Entry) string

// DirResolver returns the standard layout resolver for a package
// directory and distfile directory.
func DirResolver(pkgdir, distdir string) Resolver {
	return func(e *Entry) string {
		switch e.Kind {
		case Dist:
			return filepath.Join(distdir, e.Name)
		case Aux:
			return filepath.Join(pkgdir, "files", e.Name)
		default:
			return filepath.Join(pkgdir, e.Name)
		}
	}
}

// Verify checks every entry's existence and size and, for the hash kinds
// in the required set, its digests, returning one error per failing
// entry.  Hash kinds outside the required set are parsed but not checked.
func (m *Manifest) Verify(resolve Resolver, required map[HashKind]bool) []error {
	var errs []error
	for _, e := range m.Entries() {
		if err := e.verify(resolve(e), required); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (e *Entry) verify(path string, required map[HashKind]bool) error {
	info, err := os.Stat(path)
	if err != nil {
		return &VerifyError{Entry: e, Reason: fmt.Sprintf("missing file: %s", path)}
	}
	if info.Size() != e.Size {
		return &VerifyError{
			Entry:  e,
			Reason: fmt.Sprintf("size mismatch: expected %d, got %d", e.Size, info.Size()),
		}
	}

	kinds := make([]HashKind, 0, len(e.Hashes))
	for k := range e.Hashes {
		if required[k] {
			kinds = append(kinds, k)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	for _, k := range kinds {
		digest, err := HashFile(path, k)
		if err != nil {
			return &VerifyError{Entry: e, Hash: k, Reason: err.Error()}
		}
		if digest != e.Hashes[k] {
			return &VerifyError{
				Entry:  e,
				Hash:   k,
				Reason: fmt.Sprintf("expected %s, got %s", e.Hashes[k], digest),
			}
		}
	}
	return nil
}

// HashFile computes the named digest over the file at path.
func HashFile(path string, kind HashKind) (string, error) {
	mk, ok := hashers[kind]
	if !ok {
		return "", fmt.Errorf("unsupported hash kind: %s", kind)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := mk()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// EntryForFile builds a manifest entry for the file at path under the
// given hash kinds.
func EntryForFile(kind EntryKind, name, path string, hashes []HashKind) (*Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	entry := &Entry{
		Kind:   kind,
		Name:   name,
		Size:   info.Size(),
		Hashes: make(map[HashKind]string, len(hashes)),
	}
	for _, k := range hashes {
		digest, err := HashFile(path, k)
		if err != nil {
			return nil, err
		}
		entry.Hashes[k] = digest
	}
	return entry, nil
}

// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// UpdateOptions configures a manifest rebuild.
type UpdateOptions struct {
	// Pkgdir is the package directory owning the Manifest.
	Pkgdir string
	// Distdir holds the realized distfiles.
	Distdir string
	// Distfiles names the distfiles the package's SRC_URI realizes to.
	Distfiles []string
	// Hashes are the digest kinds to record.
	Hashes []HashKind
	// Thin restricts the manifest to DIST entries.
	Thin bool
}

// Update rebuilds the package's Manifest in place, preserving thin or
// thick mode.  An empty result removes the Manifest file entirely.
func Update(opts UpdateOptions) error {
	m := &Manifest{}

	for _, name := range opts.Distfiles {
		entry, err := EntryForFile(Dist, name, filepath.Join(opts.Distdir, name), opts.Hashes)
		if err != nil {
			return fmt.Errorf("distfile %s: %w", name, err)
		}
		m.Insert(entry)
	}

	if !opts.Thin {
		if err := addPkgdirEntries(m, opts); err != nil {
			return err
		}
	}

	path := filepath.Join(opts.Pkgdir, "Manifest")
	if m.Len() == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	return writeAtomic(path, m)
}

func addPkgdirEntries(m *Manifest, opts UpdateOptions) error {
	dirents, err := os.ReadDir(opts.Pkgdir)
	if err != nil {
		return err
	}
	var names []string
	for _, de := range dirents {
		names = append(names, de.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(opts.Pkgdir, name)
		switch {
		case name == "Manifest":
		case strings.HasSuffix(name, ".ebuild"):
			entry, err := EntryForFile(Ebuild, name, path, opts.Hashes)
			if err != nil {
				return err
			}
			m.Insert(entry)
		case name == "files":
			if err := addAuxEntries(m, path, opts.Hashes); err != nil {
				return err
			}
		default:
			if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
				entry, err := EntryForFile(Misc, name, path, opts.Hashes)
				if err != nil {
					return err
				}
				m.Insert(entry)
			}
		}
	}
	return nil
}

func addAuxEntries(m *Manifest, filesdir string, hashes []HashKind) error {
	return filepath.Walk(filesdir, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.Mode().IsRegular() {
			return err
		}
		name, err := filepath.Rel(filesdir, path)
		if err != nil {
			return err
		}
		entry, err := EntryForFile(Aux, name, path, hashes)
		if err != nil {
			return err
		}
		m.Insert(entry)
		return nil
	})
}

// writeAtomic writes the manifest through a same-directory temp file so
// a crashed writer never leaves a truncated Manifest behind.
func writeAtomic(path string, m *Manifest) (err error) {
	tmp := path + "." + uuid.NewString()
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()
	if _, err = m.WriteTo(f); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package dep

import "strings"

// A Uri is a SRC_URI leaf: the original URI plus the local distfile
// name it realizes to.
type Uri struct {
	uri      string
	filename string
	rename   bool
}

// NewUri builds a Uri, deriving the filename from the URI's final path
// segment unless a rename target is given.
func NewUri(uri, rename string) (*Uri, error) {
	uri = strings.TrimSpace(uri)
	filename := rename
	if filename == "" {
		filename = uri
		if i := strings.LastIndexByte(uri, '/'); i >= 0 {
			filename = uri[i+1:]
		}
	}

	// rudimentary validity check since URIs aren't fully parsed
	if filename == "" {
		return nil, &ParseError{What: "URI", Input: uri, Reason: "missing filename"}
	}

	return &Uri{uri: uri, filename: filename, rename: rename != ""}, nil
}

// Uri returns the original URI text.
func (u *Uri) Uri() string { return u.uri }

// Filename returns the distfile name the URI realizes to.
func (u *Uri) Filename() string { return u.filename }

// Renamed reports whether the filename came from a "-> name" rename.
func (u *Uri) Renamed() bool { return u.rename }

// Cmp totally orders URIs over (uri, filename, renamed).
func (u *Uri) Cmp(other *Uri) int {
	if c := strings.Compare(u.uri, other.uri); c != 0 {
		return c
	}
	if c := strings.Compare(u.filename, other.filename); c != 0 {
		return c
	}
	switch {
	case u.rename == other.rename:
		return 0
	case other.rename:
		return -1
	default:
		return 1
	}
}

// String implements fmt.Stringer.
func (u *Uri) String() string {
	if u.rename {
		return u.uri + " -> " + u.filename
	}
	return u.uri
}

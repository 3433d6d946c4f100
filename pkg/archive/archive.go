// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

// Package archive dispatches archive unpacking and packing to external
// commands by filename extension.
package archive

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/datawire/dlib/dexec"
)

type format struct {
	exts   []string
	unpack func(src, destdir string) []string
	pack   func(src, dest string) []string
}

var formats = []format{
	{
		exts: []string{".tar.gz", ".tgz", ".tar.bz2", ".tbz2", ".tar.xz", ".txz", ".tar.zst", ".tar"},
		unpack: func(src, destdir string) []string {
			return []string{"tar", "-xf", src, "-C", destdir}
		},
		pack: func(src, dest string) []string {
			return []string{"tar", "-caf", dest, "-C", src, "."}
		},
	},
	{
		exts: []string{".gz"},
		unpack: func(src, destdir string) []string {
			return []string{"sh", "-c", fmt.Sprintf("gzip -dc %q > %q", src,
				filepath.Join(destdir, strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))))}
		},
	},
	{
		exts: []string{".bz2"},
		unpack: func(src, destdir string) []string {
			return []string{"sh", "-c", fmt.Sprintf("bzip2 -dc %q > %q", src,
				filepath.Join(destdir, strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))))}
		},
	},
	{
		exts: []string{".xz"},
		unpack: func(src, destdir string) []string {
			return []string{"sh", "-c", fmt.Sprintf("xz -dc %q > %q", src,
				filepath.Join(destdir, strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))))}
		},
	},
	{
		exts: []string{".zst"},
		unpack: func(src, destdir string) []string {
			return []string{"zstd", "-dfo",
				filepath.Join(destdir, strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))), src}
		},
	},
	{
		exts: []string{".zip"},
		unpack: func(src, destdir string) []string {
			return []string{"unzip", "-qo", src, "-d", destdir}
		},
	},
}

func lookup(name string) (*format, error) {
	lower := strings.ToLower(name)
	for i := range formats {
		for _, ext := range formats[i].exts {
			if strings.HasSuffix(lower, ext) {
				return &formats[i], nil
			}
		}
	}
	return nil, fmt.Errorf("unknown archive format: %s", name)
}

// Unpack extracts src into destdir using the command matching its
// extension.
func Unpack(ctx context.Context, src, destdir string) error {
	f, err := lookup(src)
	if err != nil {
		return err
	}
	argv := f.unpack(src, destdir)
	return dexec.CommandContext(ctx, argv[0], argv[1:]...).Run()
}

// Pack archives the src directory into dest; only formats with a pack
// command support this.
func Pack(ctx context.Context, src, dest string) error {
	f, err := lookup(dest)
	if err != nil {
		return err
	}
	if f.pack == nil {
		return fmt.Errorf("packing unsupported for: %s", dest)
	}
	argv := f.pack(src, dest)
	return dexec.CommandContext(ctx, argv[0], argv[1:]...).Run()
}

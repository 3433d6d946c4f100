// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

package repo

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ebuildkit/ebuildkit/pkg/atom"
	"github.com/ebuildkit/ebuildkit/pkg/dep"
	"github.com/ebuildkit/ebuildkit/pkg/eapi"
	"github.com/ebuildkit/ebuildkit/pkg/shell"
)

// An EclassHash records one inherited eclass and the content hash it
// had at generation time.
type EclassHash struct {
	Name string
	Md5  string
}

// Metadata is the parsed per-release metadata record.
type Metadata struct {
	Eapi *eapi.Eapi

	Description string
	Slot        string
	Subslot     string
	Homepage    []string
	Keywords    []string
	Iuse        []string
	Inherit     []string
	Inherited   []EclassHash

	// DefinedPhases lists the build phases the ebuild or its eclasses
	// define, sorted.
	DefinedPhases []string

	Depend  *dep.DepSet[*atom.Dep]
	Rdepend *dep.DepSet[*atom.Dep]
	Pdepend *dep.DepSet[*atom.Dep]
	Bdepend *dep.DepSet[*atom.Dep]
	Idepend *dep.DepSet[*atom.Dep]

	License     *dep.DepSet[dep.Token]
	Properties  *dep.DepSet[dep.Token]
	Restrict    *dep.DepSet[dep.Token]
	RequiredUse *dep.DepSet[dep.Token]

	SrcUri *dep.DepSet[*dep.Uri]

	// raw holds the unparsed values keyed by metadata key, preserved
	// for cache encoding.
	raw map[string]string

	// EbuildMd5 is the hash of the build file the record was generated
	// from.
	EbuildMd5 string

	// Output is the collaborator's diagnostic buffer.
	Output []byte
}

// DependencySet returns the parsed package dependency set for a
// dependency key.
func (m *Metadata) DependencySet(key string) *dep.DepSet[*atom.Dep] {
	switch key {
	case "DEPEND":
		return m.Depend
	case "RDEPEND":
		return m.Rdepend
	case "PDEPEND":
		return m.Pdepend
	case "BDEPEND":
		return m.Bdepend
	case "IDEPEND":
		return m.Idepend
	default:
		return nil
	}
}

// Raw returns the unparsed value of a metadata key.
func (m *Metadata) Raw(key string) string { return m.raw[key] }

// generate produces the metadata record for a release, consulting the
// on-disk cache first and writing back when useCache is set.
func (r *Repo) generate(ctx context.Context, cpv *atom.Cpv, useCache bool) (*Metadata, error) {
	path := r.EbuildPath(cpv)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &InvalidPkgError{Cpv: cpv, Err: err}
	}
	sum := md5.Sum(data)
	ebuildMd5 := hex.EncodeToString(sum[:])

	if useCache {
		if meta, err := r.loadCache(cpv, ebuildMd5); err == nil && meta != nil {
			return meta, nil
		}
	}

	meta, err := r.source(ctx, cpv, path)
	if err != nil {
		return nil, &InvalidPkgError{Cpv: cpv, Err: err}
	}
	meta.EbuildMd5 = ebuildMd5

	if useCache {
		if err := r.writeCache(cpv, meta); err != nil {
			return nil, &InvalidPkgError{Cpv: cpv, Err: err}
		}
	}
	return meta, nil
}

// source runs the shell collaborator over the build file and validates
// the result into a Metadata record.
func (r *Repo) source(ctx context.Context, cpv *atom.Cpv, path string) (*Metadata, error) {
	tmp, err := os.MkdirTemp("", "ebuildkit-src-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmp)

	env := map[string]string{
		"CATEGORY":  cpv.Category,
		"P":         cpv.P(),
		"PN":        cpv.Package,
		"PV":        cpv.PV(),
		"PVR":       cpv.PVR(),
		"PF":        cpv.PF(),
		"PR":        cpv.PR(),
		"SLOT":      "",
		"FILESDIR":  filepath.Join(filepath.Dir(path), "files"),
		"ECLASSDIR": r.EclassDir(),
		"T":         tmp,
		"D":         filepath.Join(tmp, "image"),
		"ED":        filepath.Join(tmp, "image"),
		"DESTDIR":   filepath.Join(tmp, "image"),
	}

	// the ebuild's declared EAPI decides which keys are recognized, so
	// peek at it before the full parse
	e := eapi.Latest()
	if id := scanEapi(path); id != "" {
		if !eapi.IsValidId(id) {
			return nil, fmt.Errorf("malformed EAPI assignment: %q", id)
		}
		parsed, err := eapi.Parse(id)
		if err != nil {
			return nil, err
		}
		e = parsed
	}

	res, err := r.sourcer.Source(ctx, &shell.SourceRequest{
		Path: path,
		Eapi: e,
		Env:  env,
	})
	if err != nil {
		return nil, err
	}
	return r.buildMetadata(cpv, e, res)
}

// scanEapi extracts the EAPI assignment from the head of a build file
// without sourcing it.
func scanEapi(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if val, ok := strings.CutPrefix(line, "EAPI="); ok {
			return strings.Trim(val, `"'`)
		}
	}
	return ""
}

func (r *Repo) buildMetadata(cpv *atom.Cpv, e *eapi.Eapi, res *shell.SourceResult) (*Metadata, error) {
	meta := &Metadata{
		Eapi:   e,
		raw:    make(map[string]string),
		Output: res.Output,
	}

	if id, ok := res.Vars["EAPI"]; ok && id != e.Id() {
		return nil, fmt.Errorf("EAPI mismatch: assigned %q after sourcing", id)
	}

	for _, key := range e.MetadataKeys() {
		if val, ok := res.Vars[key]; ok {
			meta.raw[key] = strings.Join(strings.Fields(val), " ")
		}
	}
	meta.raw["EAPI"] = e.Id()

	slot, ok := res.Vars["SLOT"]
	if !ok || strings.TrimSpace(slot) == "" {
		return nil, fmt.Errorf("missing required metadata key: SLOT")
	}
	meta.Slot, meta.Subslot, _ = strings.Cut(strings.TrimSpace(slot), "/")
	if !atom.ValidSlotName(meta.Slot) {
		return nil, fmt.Errorf("invalid SLOT: %q", slot)
	}
	if meta.Subslot != "" && !atom.ValidSlotName(meta.Subslot) {
		return nil, fmt.Errorf("invalid subslot: %q", slot)
	}

	meta.Description = res.Vars["DESCRIPTION"]
	meta.Homepage = strings.Fields(res.Vars["HOMEPAGE"])
	meta.Keywords = strings.Fields(res.Vars["KEYWORDS"])
	meta.Iuse = strings.Fields(res.Vars["IUSE"])
	meta.Inherit = strings.Fields(res.Vars["INHERIT"])

	// hash the inherited eclasses in declaration order
	for _, name := range strings.Fields(res.Vars["INHERITED"]) {
		sum, err := fileMd5(r.EclassPath(name))
		if err != nil {
			return nil, fmt.Errorf("inherited eclass %s: %w", name, err)
		}
		meta.Inherited = append(meta.Inherited, EclassHash{Name: name, Md5: sum})
	}

	meta.DefinedPhases = definedPhases(e, res.Functions)
	meta.raw["DEFINED_PHASES"] = strings.Join(meta.DefinedPhases, " ")
	if len(meta.DefinedPhases) == 0 {
		meta.raw["DEFINED_PHASES"] = "-"
	}

	if err := meta.parseKeys(e); err != nil {
		return nil, err
	}
	return meta, nil
}

// parseKeys parses the dependency-bearing raw values into DepSets.
func (m *Metadata) parseKeys(e *eapi.Eapi) error {
	var err error
	parsePkg := func(key string) *dep.DepSet[*atom.Dep] {
		if err != nil {
			return nil
		}
		var set *dep.DepSet[*atom.Dep]
		set, err = dep.ParsePackage(m.raw[key], e)
		if err != nil {
			err = fmt.Errorf("%s: %w", key, err)
		}
		return set
	}

	for _, key := range e.DependencyKeys() {
		switch key {
		case "DEPEND":
			m.Depend = parsePkg(key)
		case "RDEPEND":
			m.Rdepend = parsePkg(key)
		case "PDEPEND":
			m.Pdepend = parsePkg(key)
		case "BDEPEND":
			m.Bdepend = parsePkg(key)
		case "IDEPEND":
			m.Idepend = parsePkg(key)
		}
	}
	if err != nil {
		return err
	}

	if m.License, err = dep.ParseLicense(m.raw["LICENSE"], e); err != nil {
		return fmt.Errorf("LICENSE: %w", err)
	}
	if m.Restrict, err = dep.ParseRestrict(m.raw["RESTRICT"], e); err != nil {
		return fmt.Errorf("RESTRICT: %w", err)
	}
	if e.Has(eapi.Properties) {
		if m.Properties, err = dep.ParseProperties(m.raw["PROPERTIES"], e); err != nil {
			return fmt.Errorf("PROPERTIES: %w", err)
		}
	}
	if e.Has(eapi.RequiredUse) {
		if m.RequiredUse, err = dep.ParseRequiredUse(m.raw["REQUIRED_USE"], e); err != nil {
			return fmt.Errorf("REQUIRED_USE: %w", err)
		}
	}
	if m.SrcUri, err = dep.ParseSrcUri(m.raw["SRC_URI"], e); err != nil {
		return fmt.Errorf("SRC_URI: %w", err)
	}
	return nil
}

// definedPhases filters the sourced function names down to the phases
// the EAPI recognizes, sorted.
func definedPhases(e *eapi.Eapi, functions []string) []string {
	known := make(map[string]bool)
	for _, phase := range e.Phases() {
		known[phase.Name] = true
	}
	var ret []string
	for _, fn := range functions {
		if known[fn] {
			ret = append(ret, fn)
		}
	}
	sort.Strings(ret)
	return ret
}

func fileMd5(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// Encode renders the cache file representation: one KEY=VALUE line per
// recognized key in canonical order, the _eclasses_ line, and the
// _md5_ trailer.
func (m *Metadata) Encode() []byte {
	var b bytes.Buffer
	for _, key := range m.Eapi.MetadataKeys() {
		if key == "INHERITED" || key == "INHERIT" {
			continue
		}
		if val, ok := m.raw[key]; ok && val != "" {
			fmt.Fprintf(&b, "%s=%s\n", key, val)
		}
	}
	if len(m.Inherited) > 0 {
		parts := make([]string, 0, 2*len(m.Inherited))
		for _, ec := range m.Inherited {
			parts = append(parts, ec.Name, ec.Md5)
		}
		fmt.Fprintf(&b, "_eclasses_=%s\n", strings.Join(parts, "\t"))
	}
	fmt.Fprintf(&b, "_md5_=%s\n", m.EbuildMd5)
	return b.Bytes()
}

// loadCache decodes the on-disk cache entry, returning nil when the
// entry is absent or stale.
func (r *Repo) loadCache(cpv *atom.Cpv, ebuildMd5 string) (*Metadata, error) {
	data, err := os.ReadFile(r.CachePath(cpv))
	if err != nil {
		return nil, nil
	}
	meta, err := decodeCache(data)
	if err != nil {
		return nil, err
	}
	if meta.EbuildMd5 != ebuildMd5 {
		return nil, nil
	}
	// inherited eclass changes invalidate the entry as well
	for _, ec := range meta.Inherited {
		sum, err := fileMd5(r.EclassPath(ec.Name))
		if err != nil || sum != ec.Md5 {
			return nil, nil
		}
	}
	return meta, nil
}

// decodeCache parses a cache file.  Unknown keys are ignored; malformed
// lines are rejected.
func decodeCache(data []byte) (*Metadata, error) {
	raw := make(map[string]string)
	var eclasses []EclassHash
	ebuildMd5 := ""

	for i, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		key, val, found := strings.Cut(line, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("malformed cache line %d: %q", i+1, line)
		}
		switch key {
		case "_eclasses_":
			fields := strings.Split(val, "\t")
			if len(fields)%2 != 0 {
				return nil, fmt.Errorf("malformed _eclasses_ line: %q", val)
			}
			for i := 0; i < len(fields); i += 2 {
				eclasses = append(eclasses, EclassHash{Name: fields[i], Md5: fields[i+1]})
			}
		case "_md5_":
			ebuildMd5 = val
		default:
			raw[key] = val
		}
	}
	if ebuildMd5 == "" {
		return nil, fmt.Errorf("cache entry missing _md5_ trailer")
	}

	e, err := eapi.Parse(raw["EAPI"])
	if err != nil {
		return nil, err
	}

	meta := &Metadata{
		Eapi:      e,
		raw:       raw,
		Inherited: eclasses,
		EbuildMd5: ebuildMd5,
	}
	slot := raw["SLOT"]
	if slot == "" {
		return nil, fmt.Errorf("cache entry missing SLOT")
	}
	meta.Slot, meta.Subslot, _ = strings.Cut(slot, "/")
	meta.Description = raw["DESCRIPTION"]
	meta.Homepage = strings.Fields(raw["HOMEPAGE"])
	meta.Keywords = strings.Fields(raw["KEYWORDS"])
	meta.Iuse = strings.Fields(raw["IUSE"])
	if phases := raw["DEFINED_PHASES"]; phases != "" && phases != "-" {
		meta.DefinedPhases = strings.Fields(phases)
	}
	if err := meta.parseKeys(e); err != nil {
		return nil, err
	}
	return meta, nil
}

// writeCache atomically persists the record and fsyncs the containing
// directory so a crash can't drop the rename.
func (r *Repo) writeCache(cpv *atom.Cpv, meta *Metadata) error {
	path := r.CachePath(cpv)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp := path + "." + uuid.NewString()
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(meta.Encode()); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return syncDir(dir)
}

var syncDirMu sync.Mutex

// syncDir serializes directory-level fsyncs; concurrent fsyncs of one
// directory provide no extra durability and contend on the same inode.
func syncDir(dir string) error {
	syncDirMu.Lock()
	defer syncDirMu.Unlock()
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

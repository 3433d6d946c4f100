// Copyright (C) 2023-2024  The ebuildkit authors
//
// SPDX-License-Identifier: Apache-2.0

// Package shell sources build files through an external bash process and
// reports the resulting variable assignments and declared functions.
// Each Source call runs an isolated subprocess, so a single Sourcer is
// safe to share across goroutines; Pool bounds how many run at once.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/datawire/dlib/dexec"

	"github.com/ebuildkit/ebuildkit/pkg/eapi"
)

// A SourceRequest asks for one build file to be sourced.
type SourceRequest struct {
	// Path is the absolute path of the build file.
	Path string
	// Eapi selects the variables to extract.
	Eapi *eapi.Eapi
	// Env is the environment exposed to the build file (CATEGORY, P,
	// PN, PV, PVR, PF, SLOT, FILESDIR, T, D, ED, DESTDIR, ...).
	Env map[string]string
	// Keys lists extra variables to extract beyond the EAPI's metadata
	// keys.
	Keys []string
}

// A SourceResult is the outcome of sourcing a build file.
type SourceResult struct {
	// Vars holds the top-level variable assignments for the requested
	// keys; unset variables are absent.
	Vars map[string]string
	// Functions lists the shell functions defined by the build file and
	// its inherited eclasses, used to detect declared phases.
	Functions []string
	// Output is the combined diagnostic buffer (stdout and stderr).
	Output []byte
}

// A SourceError reports a build file failing to source.
type SourceError struct {
	Path   string
	Status int
	Output []byte
}

func (e *SourceError) Error() string {
	msg := fmt.Sprintf("sourcing %s failed with status %d", e.Path, e.Status)
	if out := strings.TrimSpace(string(e.Output)); out != "" {
		msg += ": " + out
	}
	return msg
}

// A Sourcer sources build files.
type Sourcer interface {
	Source(ctx context.Context, req *SourceRequest) (*SourceResult, error)
}

// BashSourcer sources build files under bash with subprocess isolation.
type BashSourcer struct {
	// Bash is the interpreter to run; "bash" from PATH when empty.
	Bash string
}

// The sourcing script reads the target path from $1 and the variables to
// dump from the remaining arguments.  fd 3 is rebound to the original
// stdout and the build file's own stdout is folded into stderr, so
// diagnostics can't corrupt the NUL-delimited protocol records.
const sourceScript = `
set -u
exec 3>&1 1>&2
path=$1; shift

# minimal build-environment surface for top-level sourcing
die() { echo "die: $*" >&2; exit 1; }
EXPORT_FUNCTIONS() { :; }
debug-print() { :; }
debug-print-function() { :; }
inherit() {
	local e
	for e in "$@"; do
		[[ -n ${ECLASSDIR:-} ]] || die "inherit used without ECLASSDIR"
		INHERITED="${INHERITED:+${INHERITED} }${e}"
		source "${ECLASSDIR}/${e}.eclass" || die "failed inheriting ${e}"
	done
}

source "$path" || exit $?
for var in "$@"; do
	if [[ -n ${!var+x} ]]; then
		printf 'V%s=%s\0' "$var" "${!var}" >&3
	fi
done
while read -r _ _ fn; do
	printf 'F%s\0' "$fn" >&3
done < <(declare -F)
`

// Source implements Sourcer.
func (b *BashSourcer) Source(ctx context.Context, req *SourceRequest) (*SourceResult, error) {
	bash := b.Bash
	if bash == "" {
		bash = "bash"
	}

	keys := append([]string{}, req.Eapi.MetadataKeys()...)
	keys = append(keys, req.Keys...)

	args := append([]string{"--norc", "--noprofile", "-c", sourceScript, "ebuild-source", req.Path}, keys...)
	cmd := dexec.CommandContext(ctx, bash, args...)
	cmd.DisableLogging = true

	env := make([]string, 0, len(req.Env)+1)
	env = append(env, "PATH="+os.Getenv("PATH"))
	for k, v := range req.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	var protoBuf, diag bytes.Buffer
	cmd.Stdout = &protoBuf
	cmd.Stderr = &diag

	if err := cmd.Run(); err != nil {
		status := 1
		var exitErr *dexec.ExitError
		if errors.As(err, &exitErr) {
			status = exitErr.ExitCode()
		}
		return nil, &SourceError{Path: req.Path, Status: status, Output: diag.Bytes()}
	}

	ret := &SourceResult{
		Vars:   make(map[string]string),
		Output: diag.Bytes(),
	}
	for _, record := range bytes.Split(protoBuf.Bytes(), []byte{0}) {
		if len(record) == 0 {
			continue
		}
		switch record[0] {
		case 'V':
			key, val, found := strings.Cut(string(record[1:]), "=")
			if !found {
				return nil, fmt.Errorf("sourcing %s: malformed variable record", req.Path)
			}
			ret.Vars[key] = val
		case 'F':
			ret.Functions = append(ret.Functions, string(record[1:]))
		default:
			return nil, fmt.Errorf("sourcing %s: malformed record", req.Path)
		}
	}
	return ret, nil
}

// A Pool bounds the number of concurrently sourcing subprocesses.
type Pool struct {
	inner Sourcer
	slots chan struct{}
}

// NewPool wraps a Sourcer with a concurrency bound.
func NewPool(inner Sourcer, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{inner: inner, slots: make(chan struct{}, size)}
}

// Source implements Sourcer, waiting for a free slot.
func (p *Pool) Source(ctx context.Context, req *SourceRequest) (*SourceResult, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.slots }()
	return p.inner.Source(ctx, req)
}

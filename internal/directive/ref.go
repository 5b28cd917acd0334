// Package directive extracts the module a script declares on its shebang
// line and reads the annotation line npx-scripts keeps near the top of the
// file. Everything here is pure text analysis over a slice of lines.
package directive

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrEmptyRef is returned when a reference is built from an empty string.
var ErrEmptyRef = errors.New("empty module reference")

var (
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	dotRuns     = regexp.MustCompile(`\.{2,}`)
)

// Ref identifies a package declared by a script, e.g. "@scope/pkg@1.2.0".
// The zero value is not a valid reference; use ParseRef.
type Ref struct {
	full    string
	name    string
	version string
}

// ParseRef splits full on the first interior '@' into name and version.
// A leading '@' belongs to the scope and never starts a version.
func ParseRef(full string) (Ref, error) {
	full = strings.TrimSpace(full)
	if full == "" {
		return Ref{}, ErrEmptyRef
	}

	r := Ref{full: full, name: full}
	if at := strings.Index(full[1:], "@"); at >= 0 {
		r.name = full[:at+1]
		r.version = full[at+2:]
	}
	if r.name == "" || r.name == "@" {
		return Ref{}, fmt.Errorf("invalid module reference %q", full)
	}
	return r, nil
}

// MustParseRef is like ParseRef but panics on error. Intended for tests
// and constants.
func MustParseRef(full string) Ref {
	r, err := ParseRef(full)
	if err != nil {
		panic(err)
	}
	return r
}

// Full returns the reference exactly as declared.
func (r Ref) Full() string { return r.full }

// Name returns the package name, including any scope.
func (r Ref) Name() string { return r.name }

// Version returns the declared version, or "" when none was given.
func (r Ref) Version() string { return r.version }

// HasVersion reports whether a version was declared.
func (r Ref) HasVersion() bool { return r.version != "" }

// IsZero reports whether r is the zero value.
func (r Ref) IsZero() bool { return r.full == "" }

// Equal reports whether both references were declared identically.
func (r Ref) Equal(other Ref) bool { return r.full == other.full }

// Safe returns a filesystem-safe key derived from the reference: any run of
// characters outside [A-Za-z0-9._-] becomes a single dot, and leading or
// trailing dots are removed.
func (r Ref) Safe() string {
	s := unsafeChars.ReplaceAllString(r.full, ".")
	s = dotRuns.ReplaceAllString(s, ".")
	return strings.Trim(s, ".")
}

// Directive builds a shebang line that runs the reference through launcher.
func (r Ref) Directive(launcher string) string {
	return fmt.Sprintf("#!/usr/bin/env %s %s", launcher, r.full)
}

// String implements fmt.Stringer.
func (r Ref) String() string { return r.full }

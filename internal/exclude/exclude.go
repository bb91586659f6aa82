// Package exclude matches filesystem paths against a list of regular
// expression patterns, the embedder-side replacement for a core engine
// that has no exclusion concept of its own.
package exclude

import (
	"fmt"
	"regexp"
	"strings"
)

// pattern pairs a compiled expression with whether it only applies to
// directories, the Go analogue of the original matcher's "pattern ending
// in a trailing slash" convention.
type pattern struct {
	re    *regexp.Regexp
	dirs  bool
	label string
}

// Set is a list of exclude patterns tested in the order they were added.
type Set struct {
	patterns []pattern
}

// New returns an empty Set.
func New() *Set {
	return &Set{}
}

// Add compiles expr and appends it to the set. A trailing "/" on expr
// restricts the pattern to directories, mirroring the original matcher's
// dir-only convention, and is stripped before compilation.
func (s *Set) Add(expr string) error {
	dirsOnly := strings.HasSuffix(expr, "/")
	body := expr
	if dirsOnly {
		body = strings.TrimSuffix(expr, "/")
	}
	re, err := regexp.Compile(body)
	if err != nil {
		return fmt.Errorf("exclude: invalid pattern %q: %w", expr, err)
	}
	s.patterns = append(s.patterns, pattern{re: re, dirs: dirsOnly, label: expr})
	return nil
}

// MustAdd is Add, panicking on a compile error; useful for default
// patterns registered at construction time.
func (s *Set) MustAdd(expr string) *Set {
	if err := s.Add(expr); err != nil {
		panic(err)
	}
	return s
}

// Match reports whether path should be excluded. isDir indicates whether
// path names a directory, so dir-only patterns can be skipped for files.
func (s *Set) Match(path string, isDir bool) bool {
	for _, p := range s.patterns {
		if p.dirs && !isDir {
			continue
		}
		if p.re.MatchString(path) {
			return true
		}
	}
	return false
}

// Len reports the number of registered patterns.
func (s *Set) Len() int {
	return len(s.patterns)
}

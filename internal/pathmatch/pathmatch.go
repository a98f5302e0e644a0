// Package pathmatch evaluates backup path-exclusion patterns using
// git-wildmatch semantics, matching the behavior original_source achieves
// via Python's pathspec.PathSpec.from_lines(GitWildMatchPattern, ...).
//
// Grounded on go-git/v5's plumbing/format/gitignore pattern compiler.
package pathmatch

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Matcher evaluates a fixed set of exclude patterns against candidate
// paths.
type Matcher struct {
	multi []gitignore.Pattern
}

// New compiles patterns (one git-wildmatch pattern per entry, e.g.
// "*.tmp", "/var/cache/**", "!keep.me") into a Matcher.
func New(patterns []string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		m.multi = append(m.multi, gitignore.ParsePattern(p, nil))
	}
	return m
}

// Excluded reports whether path should be excluded from the backup set.
// path is a slash-separated relative path; isDir indicates whether it
// names a directory. The last matching pattern wins, honoring negated
// ("!") patterns, per git-wildmatch semantics.
func (m *Matcher) Excluded(path string, isDir bool) bool {
	if m == nil || len(m.multi) == 0 {
		return false
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")

	excluded := false
	for _, p := range m.multi {
		switch p.Match(segments, isDir) {
		case gitignore.Exclude:
			excluded = true
		case gitignore.Include:
			excluded = false
		}
	}
	return excluded
}

// Empty reports whether the matcher has no compiled patterns.
func (m *Matcher) Empty() bool {
	return m == nil || len(m.multi) == 0
}

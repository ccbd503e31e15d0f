// Package ignore implements gitignore-style path exclusion for directory
// scanning.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	pathpkg "path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Status encodes the ignoredness state of a path after evaluation against a
// set of patterns.
type Status uint8

const (
	// StatusNominal indicates that a path is neither explicitly ignored nor
	// explicitly unignored by any pattern.
	StatusNominal Status = iota
	// StatusIgnored indicates that a path is explicitly ignored.
	StatusIgnored
	// StatusUnignored indicates that a path is explicitly unignored (the
	// last pattern that matched it was a negated pattern).
	StatusUnignored
)

// cleanPreservingTrailingSlash is a variant of path.Clean that preserves a
// trailing slash, which path.Clean would otherwise strip.
func cleanPreservingTrailingSlash(path string) string {
	var needTrailingSlash bool
	if l := len(path); l > 1 {
		needTrailingSlash = path[l-1] == '/'
	}
	if result := pathpkg.Clean(path); needTrailingSlash {
		return result + "/"
	} else {
		return result
	}
}

// pattern represents a single parsed gitignore-style pattern.
type pattern struct {
	// negated indicates that the pattern re-includes paths excluded by an
	// earlier pattern.
	negated bool
	// directoryOnly indicates that the pattern only matches directories.
	directoryOnly bool
	// matchLeaf indicates that the pattern should also be matched against a
	// path's base name, because it contains no slash and isn't anchored.
	matchLeaf bool
	// raw is the pattern text used for matching.
	raw string
}

// newPattern validates and parses a single ignore pattern line.
func newPattern(text string) (*pattern, error) {
	if len(text) == 0 {
		return nil, errors.New("empty pattern")
	}

	var negated bool
	if text[0] == '!' {
		negated = true
		text = text[1:]
	}
	if text == "" {
		return nil, errors.New("negated empty pattern")
	}

	text = cleanPreservingTrailingSlash(text)

	if text == "/" || text == "//" {
		return nil, errors.New("pattern matches scan root")
	}

	var rooted bool
	if text[0] == '/' {
		rooted = true
		text = text[1:]
	}

	var directoryOnly bool
	if text[len(text)-1] == '/' {
		directoryOnly = true
		text = text[:len(text)-1]
	}

	containsSlash := strings.IndexByte(text, '/') >= 0

	if _, err := doublestar.Match(text, "a"); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", text, err)
	}

	return &pattern{
		negated:       negated,
		directoryOnly: directoryOnly,
		matchLeaf:     !rooted && !containsSlash,
		raw:           text,
	}, nil
}

// matches reports whether the pattern applies to path, which is relative to
// the scan root and uses forward slashes regardless of platform.
func (p *pattern) matches(path string, isDir bool) bool {
	if p.directoryOnly && !isDir {
		return false
	}
	if match, _ := doublestar.Match(p.raw, path); match {
		return true
	}
	if p.matchLeaf && path != "" {
		if match, _ := doublestar.Match(p.raw, pathpkg.Base(path)); match {
			return true
		}
	}
	return false
}

// Matcher evaluates paths against an ordered set of gitignore-style
// patterns. A Matcher is not safe for concurrent use.
type Matcher struct {
	patterns     []*pattern
	negatedCount uint
}

// New compiles a Matcher from a list of gitignore-style pattern lines, in
// the order they should be applied (later patterns take precedence).
func New(patterns []string) (*Matcher, error) {
	compiled := make([]*pattern, 0, len(patterns))
	var negatedCount uint
	for _, text := range patterns {
		p, err := newPattern(text)
		if err != nil {
			return nil, fmt.Errorf("unable to parse pattern %q: %w", text, err)
		}
		compiled = append(compiled, p)
		if p.negated {
			negatedCount++
		}
	}
	return &Matcher{patterns: compiled, negatedCount: negatedCount}, nil
}

// NewFromGitignore reads newline-delimited gitignore syntax from r, skipping
// blank lines and '#' comments, and compiles the result into a Matcher.
func NewFromGitignore(r io.Reader) (*Matcher, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("unable to read gitignore content: %w", err)
	}
	return New(lines)
}

// Merge returns a new Matcher applying m's patterns before other's, such
// that other's patterns take precedence (matching the convention that a
// nested .gitignore overrides its parent).
func (m *Matcher) Merge(other *Matcher) *Matcher {
	if m == nil {
		return other
	}
	if other == nil {
		return m
	}
	combined := make([]*pattern, 0, len(m.patterns)+len(other.patterns))
	combined = append(combined, m.patterns...)
	combined = append(combined, other.patterns...)
	negated := m.negatedCount + other.negatedCount
	return &Matcher{patterns: combined, negatedCount: negated}
}

// Match evaluates path (root-relative, forward-slash separated) against the
// compiled patterns and returns its ignore status along with whether
// traversal should continue into the entry if it is a directory. Traversal
// continues only when a directory's status is nominal or unignored; once a
// directory itself is ignored, its contents are never visited, so a
// negated pattern further down the list cannot unignore anything beneath
// it.
func (m *Matcher) Match(path string, isDir bool) (status Status, continueTraversal bool) {
	if m == nil || len(m.patterns) == 0 {
		return StatusNominal, isDir
	}

	remaining := m.negatedCount
	for _, p := range m.patterns {
		if status == StatusIgnored && remaining == 0 {
			break
		} else if p.negated {
			remaining--
			if status == StatusUnignored {
				continue
			}
		} else if status == StatusIgnored {
			continue
		}

		if !p.matches(path, isDir) {
			continue
		} else if p.negated {
			status = StatusUnignored
		} else {
			status = StatusIgnored
		}
	}

	if isDir && (status == StatusNominal || status == StatusUnignored) {
		return status, true
	}
	return status, false
}

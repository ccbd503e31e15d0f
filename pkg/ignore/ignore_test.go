package ignore

import (
	"strings"
	"testing"
)

// TestNewInvalidPatterns tests that New rejects patterns that can never
// match anything meaningful.
func TestNewInvalidPatterns(t *testing.T) {
	tests := []struct {
		pattern string
		valid   bool
	}{
		{"", false},
		{"!", false},
		{"/", false},
		{"//", false},
		{"!//", false},
		{"some pattern", true},
		{"some/pattern", true},
		{"/some/pattern", true},
		{"/some/pattern/", true},
		{"*.log", true},
		{"!*.log", true},
	}
	for i, test := range tests {
		_, err := New([]string{test.pattern})
		if test.valid && err != nil {
			t.Errorf("test index %d: unexpected error for %q: %v", i, test.pattern, err)
		} else if !test.valid && err == nil {
			t.Errorf("test index %d: expected error for %q but got none", i, test.pattern)
		}
	}
}

// TestMatch tests Matcher.Match against a representative set of patterns,
// mirroring the classification rules exercised during a directory scan.
func TestMatch(t *testing.T) {
	tests := []struct {
		name              string
		patterns          []string
		path              string
		isDir             bool
		expectedStatus    Status
		expectedTraversal bool
	}{
		{"no patterns", nil, "a/b.txt", false, StatusNominal, false},
		{"simple file match", []string{"*.log"}, "debug.log", false, StatusIgnored, false},
		{"simple file non-match", []string{"*.log"}, "debug.txt", false, StatusNominal, false},
		{"directory-only pattern against file", []string{"build/"}, "build", false, StatusNominal, false},
		{"directory-only pattern against directory", []string{"build/"}, "build", true, StatusIgnored, false},
		{"rooted pattern matches only at root", []string{"/cache"}, "sub/cache", false, StatusNominal, false},
		{"leaf match for unrooted pattern", []string{"cache"}, "sub/cache", false, StatusIgnored, false},
		{"negation re-includes", []string{"*.log", "!important.log"}, "important.log", false, StatusUnignored, false},
		{"ignored directory is pruned even if a negation names its contents", []string{"build", "!build/keep.txt"}, "build", true, StatusIgnored, false},
		{"nominal directory always traverses", []string{"*.log"}, "src", true, StatusNominal, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m, err := New(test.patterns)
			if err != nil {
				t.Fatalf("unable to compile patterns: %v", err)
			}
			status, traverse := m.Match(test.path, test.isDir)
			if status != test.expectedStatus {
				t.Errorf("status mismatch: got %v, expected %v", status, test.expectedStatus)
			}
			if traverse != test.expectedTraversal {
				t.Errorf("traversal mismatch: got %v, expected %v", traverse, test.expectedTraversal)
			}
		})
	}
}

// TestNewFromGitignore tests that NewFromGitignore correctly skips comments
// and blank lines while compiling the remaining patterns.
func TestNewFromGitignore(t *testing.T) {
	content := "# a comment\n\n*.log\n!keep.log\n"
	m, err := NewFromGitignore(strings.NewReader(content))
	if err != nil {
		t.Fatalf("unable to parse gitignore content: %v", err)
	}
	if status, _ := m.Match("debug.log", false); status != StatusIgnored {
		t.Errorf("expected debug.log to be ignored, got status %v", status)
	}
	if status, _ := m.Match("keep.log", false); status != StatusUnignored {
		t.Errorf("expected keep.log to be unignored, got status %v", status)
	}
}

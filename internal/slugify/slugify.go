// Package slugify derives URL-safe post identifiers from titles.
package slugify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
)

const (
	fallbackSlug = "untitled"
	maxAttempts  = 1000

	// MaxLength bounds the base slug so "<slug>-N.md" and its temp file
	// stay well under file system name limits.
	MaxLength = 96
)

var ErrNoFreeSlug = errors.New("no free slug")

// Generate returns the slug for title, at most MaxLength bytes. Titles with
// nothing sluggable map to "untitled".
func Generate(title string) string {
	s := truncate(slug.Make(title), MaxLength)
	if s == "" {
		return fallbackSlug
	}
	return s
}

// truncate cuts s to at most n bytes, at the last hyphen when there is one.
// Slugs are ASCII, so byte offsets are character offsets.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	if i := strings.LastIndexByte(s, '-'); i > 0 {
		s = s[:i]
	}
	return strings.Trim(s, "-")
}

// Valid reports whether s is safe to use as a post key and file name.
func Valid(s string) bool {
	return slug.IsSlug(s)
}

// Unique returns the first of base, base-2, base-3, ... that taken reports as free.
func Unique(title string, taken func(string) (bool, error)) (string, error) {
	base := Generate(title)
	candidate := base
	for i := 2; i <= maxAttempts+1; i++ {
		used, err := taken(candidate)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !used {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return "", fmt.Errorf("%w for %q", ErrNoFreeSlug, base)
}

package domain

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	slugStrip = regexp.MustCompile(`[^\w\s-]`)
	slugSpace = regexp.MustCompile(`[-\s_]+`)
)

// Slugify lowercases text, drops punctuation and joins words with hyphens.
func Slugify(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSpace.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// NormalizeName folds a display name for lookups: lowercase, trimmed,
// inner whitespace collapsed.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// StripDepartmentPrefix removes a leading "Department of the " or
// "Department of " from a normalized name.
func StripDepartmentPrefix(normalized string) string {
	for _, prefix := range []string{"department of the ", "department of "} {
		if rest, ok := strings.CutPrefix(normalized, prefix); ok {
			return rest
		}
	}
	return normalized
}

// UniqueSlug returns base, or base-1, base-2, ... for the first value taken
// does not report. An empty base becomes "item".
func UniqueSlug(base string, taken func(string) bool) string {
	if base == "" {
		base = "item"
	}
	slug := base
	for i := 1; taken(slug); i++ {
		slug = base + "-" + strconv.Itoa(i)
	}
	return slug
}

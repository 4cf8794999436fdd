package catalog

import (
	"strings"
	"unicode/utf8"
)

// DescriptionMax is the longest description any entity stores.
const DescriptionMax = 500

// trim strips surrounding whitespace in place. Codes are not trimmed so that
// a padded code fails the code pattern instead of being silently fixed.
func trim(fields ...*string) {
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// emptyToNil maps "" to a NULL column value.
func emptyToNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

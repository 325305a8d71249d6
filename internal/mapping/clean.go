package mapping

import (
	"regexp"
	"strings"
)

var (
	controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// CleanText strips non-printable control characters, collapses internal
// whitespace runs to a single space and trims the result. Exports from
// legacy systems routinely embed stray control bytes inside text columns.
func CleanText(s string) string {
	s = controlChars.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

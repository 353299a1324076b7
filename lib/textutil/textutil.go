package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize lowercases text and removes all whitespace, so labels that
// differ only in case or wrapping compare equal.
func Normalize(text string) string {
	text = strings.ToLower(text)
	return whitespaceRegex.ReplaceAllString(text, "")
}

// ContainsAny reports whether the normalized text contains any of the
// normalized needles. Empty needles never match.
func ContainsAny(text string, needles []string) bool {
	text = Normalize(text)
	for _, n := range needles {
		n = Normalize(n)
		if n != "" && strings.Contains(text, n) {
			return true
		}
	}
	return false
}

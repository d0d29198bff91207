package extract

import (
	"regexp"
	"strings"
)

// Decoration characters that inquiry forms wrap around labels and values.
var (
	decorationChars = regexp.MustCompile(`[】【\[\]()（）▼]`)
	whitespaceRuns  = regexp.MustCompile(`[\s　]+`)
)

// NormalizeText strips bracket/arrow decoration and collapses whitespace
// runs to a single space, then trims.
func NormalizeText(s string) string {
	s = decorationChars.ReplaceAllString(s, "")
	s = whitespaceRuns.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeIdentity normalizes a string that participates in the
// deduplication identity: NormalizeText plus lower-casing.
func NormalizeIdentity(s string) string {
	return strings.ToLower(NormalizeText(s))
}

// stripDecoration removes decoration characters without touching interior
// whitespace. Used where a captured value is re-scanned by sub-patterns.
func stripDecoration(s string) string {
	return strings.TrimSpace(decorationChars.ReplaceAllString(s, ""))
}

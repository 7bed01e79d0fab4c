package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer strips combining marks after NFD decomposition. Latin
// diacritics disappear and the Cyrillic diacritic letters fold with them
// (ё -> е, й -> и), which is what misspelled-query matching wants.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases a string and removes diacritics. Used for query hashing,
// highlighting, and suggestion deduplication.
func Fold(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	folded, _, err := transform.String(foldTransformer, lower)
	if err != nil {
		return lower
	}
	return folded
}

// Terms splits folded query text into highlightable terms of minimum
// length 2, deduplicated.
func Terms(text string) []string {
	fields := strings.FieldsFunc(Fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Fold lowercases the input and strips diacritic marks so that case- and
// accent-insensitive comparisons reduce to plain string operations. The input
// is returned unchanged (lowercased) when the transform fails.
func Fold(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	folded, _, err := transform.String(foldTransformer, value)
	if err != nil {
		return value
	}
	return folded
}

// FoldPrefixBound returns the upper bound for a prefix range scan over folded
// strings: the smallest string greater than every string with the given
// prefix. Empty input yields an empty bound, which callers treat as unbounded.
func FoldPrefixBound(prefix string) string {
	prefix = Fold(prefix)
	if prefix == "" {
		return ""
	}
	rs := []rune(prefix)
	rs[len(rs)-1]++
	return string(rs)
}

package scholar

import (
	"regexp"
	"strings"
)

var (
	doiPrefixRe = regexp.MustCompile(`(?i)^https?://(dx\.)?doi\.org/`)
	yearRe      = regexp.MustCompile(`(19|20)\d\d`)
	wsRe        = regexp.MustCompile(`\s+`)
	// DOIPattern matches a DOI anywhere inside free text.
	DOIPattern = regexp.MustCompile(`(?i)10\.\d{4,9}/[-._;()/:A-Z0-9]+`)
)

// NormalizeDOI lowercases a DOI and strips any doi.org URL prefix. The
// operation is idempotent.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return ""
	}
	doi = doiPrefixRe.ReplaceAllString(doi, "")
	return strings.ToLower(doi)
}

// ParseYear accepts an integer in [1000, 2100] and returns 0 otherwise.
func ParseYear(year int) int {
	if year >= 1000 && year <= 2100 {
		return year
	}
	return 0
}

// ParseYearString finds the first (19|20)\d\d occurrence in a string.
// Returns 0 when none is present.
func ParseYearString(s string) int {
	m := yearRe.FindString(s)
	if m == "" {
		return 0
	}
	year := 0
	for _, r := range m {
		year = year*10 + int(r-'0')
	}
	return year
}

// NormalizeWhitespace collapses runs of whitespace to single spaces and trims.
func NormalizeWhitespace(s string) string {
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

// NormalizeTitle lowercases a title and reduces it to a single-spaced
// alphanumeric token stream, for dedupe keys.
func NormalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return NormalizeWhitespace(b.String())
}

// TitleTokens returns the normalized title's token set.
func TitleTokens(title string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(NormalizeTitle(title)) {
		tokens[tok] = struct{}{}
	}
	return tokens
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

package scoring

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize folds case and strips diacritics so that "Género" and "genero"
// compare equal. The result is trimmed. Normalize is idempotent.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	// Lowercase first: some uppercase runes decompose into a base letter plus a mark.
	lowered := strings.ToLower(s)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, lowered)
	if err != nil {
		folded = lowered
	}

	return strings.TrimSpace(folded)
}

// NormalizeSet normalizes every value and drops empty results.
func NormalizeSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if n := Normalize(v); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Slug turns free text into a lowercase dash-separated token.
func Slug(s string) string {
	return strings.Trim(nonSlugChars.ReplaceAllString(Normalize(s), "-"), "-")
}

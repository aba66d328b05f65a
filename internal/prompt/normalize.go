package prompt

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases s, strips diacritics ("Krajiny s horami" -> "krajiny s horami")
// and collapses everything that is not a letter or digit into single spaces.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, _ = transform.String(t, s)
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(words, " ")
}

// hasWordPrefix reports whether some word of text starts with prefix. Both
// arguments must already be normalized; prefix may span several words.
func hasWordPrefix(text, prefix string) bool {
	if prefix == "" {
		return false
	}
	return strings.Contains(" "+text, " "+prefix)
}

// hasWord reports whether word occurs as whole word(s) in text.
func hasWord(text, word string) bool {
	if word == "" {
		return false
	}
	return strings.Contains(" "+text+" ", " "+word+" ")
}

package stationfinder

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes accented characters and drops the combining marks,
// so "é" becomes "e" and "ü" becomes "u".
var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// Normalize canonicalizes free text for comparison: lowercase, trim,
// accent-stripped, every non-alphanumeric run collapsed to a single space.
// Normalize(Normalize(x)) == Normalize(x) for all x.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ToLower(strings.TrimSpace(text))

	if stripped, _, err := transform.String(stripMarks, text); err == nil {
		text = stripped
	}

	var b strings.Builder
	b.Grow(len(text))
	prevSpace := false
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevSpace = false
			continue
		}
		if !prevSpace {
			b.WriteByte(' ')
			prevSpace = true
		}
	}

	return strings.TrimSpace(b.String())
}

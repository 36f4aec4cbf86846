package layout

import (
	"regexp"
	"unicode"
)

// HeadingFontRatio is how much larger than the document average a block's
// font must be to count as a heading on size alone.
const HeadingFontRatio = 1.2

// titlePhrase matches a short title-case phrase: a capital letter followed only
// by letters, whitespace and hyphens.
var titlePhrase = regexp.MustCompile(`^[A-Z][a-zA-Z\s\-]+$`)

// IsHeading reports whether a block looks like a section heading. It is a pure
// function of the block text, the block font size and the document average.
// Empty text is never a heading.
func IsHeading(text string, size, avg float64) bool {
	if text == "" {
		return false
	}
	return size > avg*HeadingFontRatio || isUpper(text) || titlePhrase.MatchString(text)
}

// isUpper reports whether s has at least one cased letter and no lower-case
// ones. Digits and punctuation are ignored.
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			return false
		case unicode.IsUpper(r) || unicode.IsTitle(r):
			cased = true
		}
	}
	return cased
}

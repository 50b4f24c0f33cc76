package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"
)

// Normalize prepares raw citation text for matching. Surrounding whitespace
// is trimmed, full-width forms are folded to their ASCII equivalents, letters
// are upper-cased and interior whitespace is removed. Punctuation is kept;
// patterns that allow dashes say so themselves.
func Normalize(text string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return ""
	}
	s = width.Fold.String(s)
	// A Caser carries state, so one is made per call.
	s = cases.Upper(language.Und).String(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

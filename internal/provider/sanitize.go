package provider

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var bracketed = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|\{[^}]*\}`)

// queryPunct are characters provider query grammars treat as syntax:
// quotes break free-text query parsers outright, the rest are operators or
// separators in one grammar or another. Brackets are included for the
// unbalanced stragglers the qualifier regexp leaves behind.
const queryPunct = "\"'`“”‘’:;,.!?*&+=/\\|<>#%~@$^_()[]{}"

// SanitizeQuery normalizes a game title into a form safe to embed in any
// provider's query grammar: trademark glyphs and bracketed qualifiers are
// removed, syntactically significant punctuation becomes whitespace, and
// whitespace runs collapse to single spaces.
func SanitizeQuery(s string) string {
	s = bracketed.ReplaceAllString(s, " ")

	var b strings.Builder

	for _, r := range s {
		switch {
		case r == '™' || r == '®' || r == '©' || r == '℠':
			// dropped entirely, no separator
		case strings.ContainsRune(queryPunct, r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Join(strings.Fields(b.String()), " ")
	if out == "" {
		// Never hand an empty query to a provider; fall back to the
		// whitespace-collapsed input.
		out = strings.Join(strings.Fields(s), " ")
	}

	return out
}

// StripHTML removes markup from provider-supplied text so error messages
// and descriptions are safe to display verbatim.
func StripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return strings.Join(strings.Fields(s), " ")
	}

	var b strings.Builder

	tok := html.NewTokenizer(strings.NewReader(s))

	for {
		tt := tok.Next()
		if tt == html.ErrorToken {
			break
		}

		if tt == html.TextToken {
			b.Write(tok.Text())
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

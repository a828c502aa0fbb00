package parser

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var punctuation = strings.NewReplacer(
	"--", "—",
	"...", "…",
)

// CleanText normalizes a run of manuscript text: NFC normalization,
// whitespace collapsed to single spaces, "--" to an em dash, "..." to an
// ellipsis and straight quotes to typographic quotes. It is idempotent.
func CleanText(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	s = punctuation.Replace(s)
	return smartQuotes(s)
}

// smartQuotes replaces straight quotes. A quote opens at the start of the
// text or after whitespace, an opening bracket or a dash, and closes
// everywhere else, which turns apostrophes into right single quotes.
func smartQuotes(s string) string {
	if !strings.ContainsAny(s, `"'`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	prev := rune(0)
	for _, r := range s {
		switch r {
		case '"':
			if opens(prev) {
				b.WriteRune('“')
			} else {
				b.WriteRune('”')
			}
		case '\'':
			if opens(prev) {
				b.WriteRune('‘')
			} else {
				b.WriteRune('’')
			}
		default:
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}

func opens(prev rune) bool {
	if prev == 0 || unicode.IsSpace(prev) {
		return true
	}
	switch prev {
	case '(', '[', '{', '—', '–', '“', '‘':
		return true
	}
	return false
}

package ssml

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// escape replaces the characters reserved in SSML with entities.
func escape(s string) string {
	return xmlEscaper.Replace(s)
}

var typographic = strings.NewReplacer(
	"’", "'", "‘", "'",
	"“", `"`, "”", `"`,
	"—", ", ", "–", "-",
	"…", "...",
)

// foldASCII reduces text to ASCII for backends that reject other characters:
// typographic punctuation becomes its ASCII form, accents are stripped, and
// anything left outside ASCII is dropped.
func foldASCII(s string) string {
	s = typographic.Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, folded)
}

// PlainText strips markup from an SSML document and returns the text a
// backend would speak.
func PlainText(doc string) string {
	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(doc))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return sb.String()
		case html.TextToken:
			sb.Write(z.Text())
		}
	}
}

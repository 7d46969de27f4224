package ssml

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var commonAbbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {},
	"st": {}, "mt": {}, "vs": {}, "etc": {}, "no": {}, "vol": {}, "rev": {},
	"fig": {}, "al": {}, "inc": {}, "ltd": {}, "co": {}, "dept": {}, "est": {},
	"jan": {}, "feb": {}, "mar": {}, "apr": {}, "jun": {}, "jul": {}, "aug": {},
	"sep": {}, "sept": {}, "oct": {}, "nov": {}, "dec": {}, "ch": {}, "pp": {},
	"a.m": {}, "p.m": {}, "e.g": {}, "i.e": {}, "u.s": {}, "u.k": {},
}

// Sentences splits text into trimmed, non-empty sentences. Lyric files use
// it to time lines inside a synthesized segment.
func Sentences(text string) []string {
	var out []string
	for _, s := range splitSentences(text) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitSentences splits text into sentences. Each piece keeps the whitespace
// that follows it, so joining the pieces yields text unchanged.
func splitSentences(text string) []string {
	var out []string
	start := 0

	for i := 0; i < len(text); i++ {
		ch := text[i]
		if !isSentencePunctuation(ch) {
			continue
		}
		if ch == '.' && shouldSkipPeriodSplit(text, i) {
			continue
		}
		if !isBoundary(text, i) {
			continue
		}

		end := skipClosing(text, i+1)
		end = skipSpace(text, end)
		out = append(out, text[start:end])
		start = end
		i = end - 1
	}

	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// splitClauses splits at clause punctuation followed by whitespace, and
// after dashes. Joining the pieces yields text unchanged.
func splitClauses(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		next := i + size
		if isClauseBoundaryRune(r) && next < len(text) && isSpace(text[next]) {
			end := skipSpace(text, next)
			out = append(out, text[start:end])
			start = end
			i = end
			continue
		}
		if (r == '—' || r == '–') && next < len(text) {
			end := skipSpace(text, next)
			out = append(out, text[start:end])
			start = end
			i = end
			continue
		}
		i = next
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// splitWords splits at whitespace. Each word keeps its trailing whitespace
// and leading whitespace stays with the first word.
func splitWords(text string) []string {
	var out []string
	start := 0
	i := skipSpace(text, 0)
	for i < len(text) {
		for i < len(text) && !isSpace(text[i]) {
			i++
		}
		i = skipSpace(text, i)
		out = append(out, text[start:i])
		start = i
	}
	if start < len(text) {
		// whitespace-only input
		out = append(out, text[start:])
	}
	return out
}

func shouldSkipPeriodSplit(text string, idx int) bool {
	// Ellipsis
	if (idx > 0 && text[idx-1] == '.') || (idx+1 < len(text) && text[idx+1] == '.') {
		return true
	}

	// Decimal numbers
	if idx > 0 && idx+1 < len(text) && isDigit(text[idx-1]) && isDigit(text[idx+1]) {
		return true
	}

	token := tokenBeforePeriod(text, idx)
	if token == "" {
		return false
	}

	// Initials and single-letter abbreviations (e.g., "A.")
	if utf8.RuneCountInString(token) == 1 {
		r, _ := utf8.DecodeRuneInString(token)
		if unicode.IsLetter(r) {
			return true
		}
	}

	if _, ok := commonAbbreviations[strings.ToLower(token)]; ok {
		return true
	}

	return false
}

func tokenBeforePeriod(text string, idx int) string {
	i := idx - 1
	for i >= 0 && !isTokenBoundary(text[i]) {
		i--
	}
	return text[i+1 : idx]
}

func isBoundary(text string, punctIdx int) bool {
	i := skipClosing(text, punctIdx+1)
	if i >= len(text) {
		return true
	}
	if !isSpace(text[i]) {
		return false
	}
	i = skipSpace(text, i)
	if i >= len(text) {
		return true
	}
	return isLikelySentenceStart(text, i)
}

func isLikelySentenceStart(text string, idx int) bool {
	for idx < len(text) {
		r, size := utf8.DecodeRuneInString(text[idx:])
		if unicode.IsUpper(r) || unicode.IsDigit(r) {
			return true
		}
		if !isOpeningQuoteOrBracket(r) {
			return false
		}
		idx += size
	}
	return false
}

// skipClosing advances past closing quotes and brackets.
func skipClosing(text string, i int) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isClosingPunctuation(r) {
			break
		}
		i += size
	}
	return i
}

func skipSpace(text string, i int) int {
	for i < len(text) && isSpace(text[i]) {
		i++
	}
	return i
}

func isSentencePunctuation(ch byte) bool {
	return ch == '.' || ch == '!' || ch == '?'
}

func isClauseBoundaryRune(r rune) bool {
	switch r {
	case ',', ';', ':':
		return true
	default:
		return false
	}
}

func isTokenBoundary(ch byte) bool {
	return isSpace(ch) || ch == '"' || ch == '\'' || ch == '(' || ch == ')' || ch == '[' || ch == ']' || ch == '{' || ch == '}'
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\t' || ch == '\r'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isClosingPunctuation(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '”', '’', '»':
		return true
	default:
		return false
	}
}

func isOpeningQuoteOrBracket(r rune) bool {
	switch r {
	case '"', '\'', '(', '[', '{', '“', '‘', '«':
		return true
	default:
		return false
	}
}

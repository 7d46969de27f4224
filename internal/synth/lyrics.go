package synth

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/jackzampolin/narrate/internal/providers"
	"github.com/jackzampolin/narrate/internal/ssml"
)

// LRCHeader carries the ID tags written at the top of a lyric file.
type LRCHeader struct {
	Artist string
	Album  string
	Title  string
}

// lyricLine is one timed line of a track.
type lyricLine struct {
	OffsetMS int
	Text     string
}

// timedSentences times each sentence of a segment. A sentence starts at the
// first word mark at or after its position in text; without one, sentences
// are spread across the duration in proportion to their position.
func timedSentences(text string, startMS, durationMS int, marks []providers.Mark) []lyricLine {
	sentences := ssml.Sentences(text)
	if len(sentences) == 0 {
		return nil
	}
	total := utf8.RuneCountInString(text)
	marks = slices.Clone(marks)
	slices.SortStableFunc(marks, func(a, b providers.Mark) int { return cmp.Compare(a.Offset, b.Offset) })

	out := make([]lyricLine, 0, len(sentences))
	cursor := 0
	for _, s := range sentences {
		pos := cursor
		if i := strings.Index(text[cursor:], s); i >= 0 {
			pos = cursor + i
			cursor = pos + len(s)
		}
		at := utf8.RuneCountInString(text[:pos])

		offset := startMS
		if t, ok := markTime(marks, at); ok {
			offset += min(t, durationMS)
		} else if total > 0 {
			offset += durationMS * at / total
		}
		out = append(out, lyricLine{OffsetMS: offset, Text: s})
	}
	return out
}

// markTime returns the time of the first mark at or after rune offset at.
func markTime(marks []providers.Mark, at int) (int, bool) {
	i, _ := slices.BinarySearchFunc(marks, at, func(m providers.Mark, at int) int { return cmp.Compare(m.Offset, at) })
	if i == len(marks) {
		return 0, false
	}
	return marks[i].TimeMS, true
}

// formatLRCTime renders milliseconds as mm:ss.xx.
func formatLRCTime(ms int) string {
	if ms < 0 {
		ms = 0
	}
	cs := ms / 10
	return fmt.Sprintf("%02d:%02d.%02d", cs/6000, (cs/100)%60, cs%100)
}

// writeLRC renders a simple LRC lyric file.
func writeLRC(w io.Writer, h LRCHeader, lines []lyricLine) error {
	bw := bufio.NewWriter(w)
	if h.Artist != "" {
		fmt.Fprintf(bw, "[ar:%s]\n", h.Artist)
	}
	if h.Album != "" {
		fmt.Fprintf(bw, "[al:%s]\n", h.Album)
	}
	if h.Title != "" {
		fmt.Fprintf(bw, "[ti:%s]\n", h.Title)
	}
	for _, l := range lines {
		fmt.Fprintf(bw, "[%s]%s\n", formatLRCTime(l.OffsetMS), strings.ReplaceAll(l.Text, "\n", " "))
	}
	return bw.Flush()
}

// writeTranscript writes one paragraph per content unit.
func writeTranscript(w io.Writer, paragraphs []string) error {
	bw := bufio.NewWriter(w)
	for i, p := range paragraphs {
		if i > 0 {
			bw.WriteString("\n")
		}
		bw.WriteString(strings.TrimSpace(p))
		bw.WriteString("\n")
	}
	return bw.Flush()
}

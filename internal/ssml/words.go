package ssml

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// WordScore is a word's frequency in a book relative to general usage.
type WordScore struct {
	Word  string  `json:"word"`
	Count int     `json:"count"`
	Score float64 `json:"score"`
}

// RankWords counts the words spoken by queries and scores each by its
// count divided by its general frequency in freq. Words missing from freq
// count as frequency 1, so rare names and invented terms rank first. These
// are the words worth checking for pronunciation before synthesis.
func RankWords(queries []Query, freq map[string]int) []WordScore {
	lower := cases.Lower(language.Und)
	counts := map[string]int{}
	for _, q := range queries {
		text := PlainText(q.SSMLText)
		for _, w := range strings.FieldsFunc(text, func(r rune) bool { return !unicode.IsLetter(r) }) {
			counts[lower.String(w)]++
		}
	}

	out := make([]WordScore, 0, len(counts))
	for w, n := range counts {
		f := freq[w]
		if f < 1 {
			f = 1
		}
		out = append(out, WordScore{Word: w, Count: n, Score: float64(n) / float64(f)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Word < out[j].Word
	})
	return out
}

// LoadFrequencies reads a unigram frequency table: CSV with a header row
// naming "word" and "count" columns.
func LoadFrequencies(r io.Reader) (map[string]int, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read frequency header: %w", err)
	}
	wordCol, countCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "word":
			wordCol = i
		case "count":
			countCol = i
		}
	}
	if wordCol < 0 || countCol < 0 {
		return nil, fmt.Errorf("frequency table needs word and count columns, got %v", header)
	}

	lower := cases.Lower(language.Und)
	freq := map[string]int{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(rec[countCol]))
		if err != nil {
			line, _ := cr.FieldPos(countCol)
			return nil, fmt.Errorf("line %d: invalid count %q", line, rec[countCol])
		}
		freq[lower.String(strings.TrimSpace(rec[wordCol]))] = n
	}
	return freq, nil
}

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrate/internal/artifact"
	"github.com/jackzampolin/narrate/internal/render"
	"github.com/jackzampolin/narrate/internal/ssml"
)

var (
	freqFile string
	wordsTop int
)

// wordList renders ranked words as a table.
type wordList []ssml.WordScore

func (l wordList) Table() ([]string, [][]string, []render.Align) {
	rows := make([][]string, 0, len(l))
	for i, w := range l {
		rows = append(rows, []string{strconv.Itoa(i + 1), w.Word, strconv.Itoa(w.Count), fmt.Sprintf("%.4g", w.Score)})
	}
	return []string{"#", "WORD", "COUNT", "SCORE"}, rows,
		[]render.Align{render.AlignRight, render.AlignLeft, render.AlignRight, render.AlignRight}
}

// rankQueries ranks the words of queries against an optional frequency
// table and keeps the top n.
func rankQueries(queries []ssml.Query, freqPath string, n int) (wordList, error) {
	freq := map[string]int{}
	if freqPath != "" {
		f, err := os.Open(freqPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if freq, err = ssml.LoadFrequencies(f); err != nil {
			return nil, fmt.Errorf("%s: %w", freqPath, err)
		}
	}
	words := ssml.RankWords(queries, freq)
	if n > 0 && len(words) > n {
		words = words[:n]
	}
	return wordList(words), nil
}

var wordsCmd = &cobra.Command{
	Use:   "words <queries.json>",
	Short: "Rank unusual words to check for pronunciation",
	Long: `Rank the words in a query stream by how much more often they appear in
the book than in general usage. Names and invented terms float to the top,
which makes them the words to audition before synthesizing a whole book.

The frequency table is CSV with word and count columns, such as a unigram
frequency list. Without one every word scores its raw count.

Examples:
  narrate words queries.json --freq unigram_freq.csv -o table
  narrate words queries.json --freq unigram_freq.csv --top 0 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var queries []ssml.Query
		if err := artifact.Read(args[0], artifact.KindQueries, &queries); err != nil {
			return err
		}
		words, err := rankQueries(queries, freqFile, wordsTop)
		if err != nil {
			return err
		}
		return render.Output(outFormat, words)
	},
}

func init() {
	wordsCmd.Flags().StringVar(&freqFile, "freq", "", "CSV of general word frequencies (word,count)")
	wordsCmd.Flags().IntVar(&wordsTop, "top", 50, "number of words to list (0 lists all)")
}

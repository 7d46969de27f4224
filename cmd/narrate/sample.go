package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrate/internal/book"
	"github.com/jackzampolin/narrate/internal/epub"
	"github.com/jackzampolin/narrate/internal/render"
)

var sampleCmd = &cobra.Command{
	Use:   "sample [path]",
	Short: "Write a small sample EPUB for trying the pipeline",
	Long: `Write a three chapter sample EPUB.

Pair it with the mock provider to exercise every stage offline:
  narrate sample sample.epub
  NARRATE_PROVIDERS_MOCK_ENABLED=true NARRATE_SYNTH_PROVIDER=mock narrate run sample.epub out/ --yes`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "sample.epub"
		if len(args) > 0 {
			path = args[0]
		}
		if err := sampleBuilder().Build(path); err != nil {
			return err
		}
		return render.Output(outFormat, map[string]string{"epub": path})
	},
}

func sampleBuilder() *epub.Builder {
	p := func(text string) epub.Block { return epub.Block{Role: book.RoleParagraph, Text: text} }
	chapters := []epub.Chapter{
		{
			ID:    "ch1",
			Title: "The Lighthouse",
			Level: 1,
			Blocks: []epub.Block{
				{Role: book.RoleHeading, Text: "The Lighthouse"},
				p("The lamp had not been lit in eleven years. Mara climbed the stairs anyway, counting each step out loud."),
				p("At the top the glass was salted white. She wiped a circle clear with her sleeve and looked out at the grey water."),
			},
		},
		{
			ID:    "ch2",
			Title: "The Keeper's Log",
			Level: 1,
			Blocks: []epub.Block{
				{Role: book.RoleHeading, Text: "The Keeper's Log"},
				p("The log was bound in oilcloth. Most entries recorded the weather: wind from the north, fog, a ship sighted at dusk."),
				{Role: book.RoleBlockquote, Text: "Lamp trimmed at six. No vessels. The gulls are restless tonight."},
				p("The last entry was dated the night her grandfather disappeared."),
			},
		},
		{
			ID:    "ch3",
			Title: "Landfall",
			Level: 1,
			Blocks: []epub.Block{
				{Role: book.RoleHeading, Text: "Landfall"},
				p("By morning the fog had lifted. A small boat lay on the shingle below the cliff, its oars shipped neatly along the thwarts."),
			},
		},
	}
	return epub.NewBuilder(epub.Book{
		Title:       "The Keeper",
		Author:      "Narrate Sample",
		Language:    "en",
		Series:      "Samples",
		SeriesIndex: "1",
		Description: "A short three chapter story for testing narration.",
	}, chapters)
}

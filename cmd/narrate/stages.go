package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrate/internal/artifact"
	"github.com/jackzampolin/narrate/internal/book"
	"github.com/jackzampolin/narrate/internal/epub"
	"github.com/jackzampolin/narrate/internal/finalize"
	"github.com/jackzampolin/narrate/internal/metadata"
	"github.com/jackzampolin/narrate/internal/pipeline/stages"
	"github.com/jackzampolin/narrate/internal/render"
	"github.com/jackzampolin/narrate/internal/ssml"
)

var (
	coverDir  string
	mapping   string
	exportDir string
)

// outputPath returns args[i] when given, else name next to the input.
func outputPath(args []string, i int, input, name string) string {
	if len(args) > i {
		return args[i]
	}
	return filepath.Join(filepath.Dir(input), name)
}

// stageSummary is what the single-stage commands print.
type stageSummary struct {
	Stage  string         `json:"stage" yaml:"stage"`
	Output string         `json:"output" yaml:"output"`
	Counts map[string]int `json:"counts" yaml:"counts"`
}

func readBook(path string) (*book.GeneralBook, error) {
	var gb book.GeneralBook
	if err := artifact.Read(path, artifact.KindBook, &gb); err != nil {
		return nil, err
	}
	if err := gb.Validate(); err != nil {
		return nil, err
	}
	return &gb, nil
}

var interpretCmd = &cobra.Command{
	Use:   "interpret <epub> [book.json]",
	Short: "Parse an EPUB into the general book model",
	Long: `Parse an EPUB container into a general book document.

The book document holds metadata, manifest, spine, table of contents and the
ordered content units every later stage reads. It is written next to the
EPUB as book.json unless an output path is given.

Examples:
  narrate interpret novel.epub
  narrate interpret novel.epub out/book.json --cover-dir out`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		opts := stages.InterpretOptions(services.Config, services.Logger)

		gb, err := epub.Interpret(ctx, args[0], opts)
		if err != nil {
			return err
		}
		out := outputPath(args, 1, args[0], stages.BookFile)
		if err := artifact.Write(out, gb); err != nil {
			return err
		}

		if coverDir != "" {
			cover, err := epub.ExtractCover(args[0], gb, coverDir, opts)
			switch {
			case errors.Is(err, epub.ErrNoCover):
				services.Logger.Warn("epub has no cover image")
			case err != nil:
				return err
			default:
				services.Logger.Info("cover extracted", "path", cover)
			}
		}

		return render.Output(outFormat, stageSummary{
			Stage:  stages.Interpret,
			Output: out,
			Counts: map[string]int{
				"spine":   len(gb.Spine),
				"content": len(gb.Content),
			},
		})
	},
}

var ssmlCmd = &cobra.Command{
	Use:   "ssml <book.json> [queries.json]",
	Short: "Generate SSML queries from a book document",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		gb, err := readBook(args[0])
		if err != nil {
			return err
		}
		res, err := ssml.Generate(cmd.Context(), gb, stages.SSMLOptions(services.Config, services.Logger))
		if err != nil {
			return err
		}
		for _, ue := range res.Unresolved {
			services.Logger.Warn("query exceeds capacity", "error", ue)
		}
		out := outputPath(args, 1, args[0], stages.QueriesFile)
		if err := artifact.Write(out, res.Queries); err != nil {
			return err
		}
		return render.Output(outFormat, stageSummary{
			Stage:  stages.SSML,
			Output: out,
			Counts: map[string]int{
				"queries":      len(res.Queries),
				"unresolved":   len(res.Unresolved),
				"billed_chars": res.BilledChars,
			},
		})
	},
}

var metadataCmd = &cobra.Command{
	Use:   "metadata <book.json> [metadata.json]",
	Short: "Map book metadata into ID3, NFO and Plex targets",
	Long: `Map the book's metadata through a mapping file into tag targets.

--mapping takes a file path or the name of a file in ~/.narrate/mappings.
Without it the configured mapping, or the built-in one, is used.

Examples:
  narrate metadata book.json
  narrate metadata book.json --mapping plex-only --export-dir out`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		gb, err := readBook(args[0])
		if err != nil {
			return err
		}
		cfg := *services.Config
		if mapping != "" {
			cfg.Metadata.MappingFile = mapping
		}
		mcfg, err := stages.MappingConfig(&cfg, services.Home)
		if err != nil {
			return err
		}
		mapped, err := metadata.Map(cmd.Context(), gb.Metadata, mcfg, metadata.Options{Logger: services.Logger})
		if err != nil {
			return err
		}
		out := outputPath(args, 1, args[0], stages.MetadataFile)
		if err := artifact.Write(out, mapped); err != nil {
			return err
		}

		counts := map[string]int{"targets": len(mapped.Targets)}
		if exportDir != "" {
			written, err := metadata.Export(exportDir, mapped)
			if err != nil {
				return err
			}
			counts["exports"] = len(written)
		}
		return render.Output(outFormat, stageSummary{Stage: stages.Metadata, Output: out, Counts: counts})
	},
}

var finalizeCmd = &cobra.Command{
	Use:   "finalize <book.json> <queries.json> <metadata.json> [jobs.json]",
	Short: "Merge queries and metadata into ordered synthesis jobs",
	Args:  cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		gb, err := readBook(args[0])
		if err != nil {
			return err
		}
		var queries []ssml.Query
		if err := artifact.Read(args[1], artifact.KindQueries, &queries); err != nil {
			return err
		}
		var mapped metadata.Mapped
		if err := artifact.Read(args[2], artifact.KindMetadata, &mapped); err != nil {
			return err
		}

		res, err := finalize.Finalize(gb, &mapped, queries, stages.FinalizeOptions(services.Config, services.Logger))
		if err != nil {
			return err
		}
		out := outputPath(args, 3, args[0], stages.JobsFile)
		if err := artifact.Write(out, res.Jobs); err != nil {
			return err
		}
		return render.Output(outFormat, stageSummary{
			Stage:  stages.Finalize,
			Output: out,
			Counts: map[string]int{
				"jobs":       len(res.Jobs),
				"tracks":     res.Tracks,
				"excluded":   res.Excluded,
				"unresolved": res.Unresolved,
			},
		})
	},
}

func readJobs(path string) ([]finalize.Job, error) {
	var jobs []finalize.Job
	if err := artifact.Read(path, artifact.KindJobs, &jobs); err != nil {
		return nil, err
	}
	if err := finalize.CheckOrder(jobs); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return jobs, nil
}

func init() {
	interpretCmd.Flags().StringVar(&coverDir, "cover-dir", "", "directory to extract the cover image into")
	metadataCmd.Flags().StringVar(&mapping, "mapping", "", "mapping file or name in ~/.narrate/mappings")
	metadataCmd.Flags().StringVar(&exportDir, "export-dir", "", "directory to write NFO, Plex and ID3 exports into")
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrate/internal/home"
	"github.com/jackzampolin/narrate/internal/pipeline"
	"github.com/jackzampolin/narrate/internal/pipeline/stages"
	"github.com/jackzampolin/narrate/internal/render"
	"github.com/jackzampolin/narrate/internal/synth"
)

var (
	runUntil string
	runForce bool
	runRerun []string
)

// runResult is what `narrate run` prints.
type runResult struct {
	Dir    string                 `json:"dir" yaml:"dir"`
	Stages []pipeline.StageResult `json:"stages" yaml:"stages"`
	Report *synth.Report          `json:"report,omitempty" yaml:"report,omitempty"`
}

var runCmd = &cobra.Command{
	Use:   "run <epub> [outdir]",
	Short: "Run the whole pipeline on an EPUB",
	Long: `Run every stage from interpretation to synthesis.

Stage artifacts (book.json, queries.json, metadata.json, jobs.json) are kept
in the output directory. A rerun loads finished stages from them instead of
recomputing, and synthesis resumes from its ledger. The output directory
defaults to ~/.narrate/books/<epub name>.

Examples:
  narrate run novel.epub
  narrate run novel.epub out/ --until finalize
  narrate run novel.epub out/ --rerun metadata --yes
  narrate run novel.epub out/ --tracks 1-2 --yes`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		source := args[0]
		if _, err := os.Stat(source); err != nil {
			return err
		}

		var dir string
		if len(args) > 1 {
			dir = args[1]
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
		} else {
			var err error
			if dir, err = services.Home.EnsureBookDir(home.Slug(source)); err != nil {
				return err
			}
		}

		reg := stages.NewRegistry()
		bk := pipeline.NewBook(source, dir)
		opts := pipeline.RunOptions{
			Until:  runUntil,
			Force:  runForce,
			Rerun:  runRerun,
			Logger: services.Logger,
		}

		// Stop before synthesis so the cost can be confirmed.
		synthesize := opts.Until == "" || opts.Until == stages.Synthesize
		if synthesize {
			opts.Until = stages.Finalize
		}
		results, err := pipeline.Run(ctx, reg, bk, opts)
		if err != nil {
			return err
		}

		if synthesize {
			p, err := selectedProvider()
			if err != nil {
				return err
			}
			sopts, err := driverOptions()
			if err != nil {
				return err
			}
			if err := confirm(synth.EstimateJobs(p, bk.Jobs(), sopts.Tracks)); err != nil {
				return err
			}
			// Earlier stages load from the artifacts just written.
			more, err := pipeline.Run(ctx, reg, bk, pipeline.RunOptions{Logger: services.Logger})
			for _, r := range more {
				if r.Name == stages.Synthesize {
					results = append(results, r)
				}
			}
			if err != nil {
				_ = render.Output(outFormat, runResult{Dir: dir, Stages: results, Report: bk.Report()})
				return err
			}
		}

		return render.Output(outFormat, runResult{Dir: dir, Stages: results, Report: bk.Report()})
	},
}

func init() {
	runCmd.Flags().StringVar(&runUntil, "until", "", "stop after this stage (interpret, ssml, metadata, finalize, synthesize)")
	runCmd.Flags().BoolVar(&runForce, "force", false, "recompute every stage even when its artifact exists")
	runCmd.Flags().StringSliceVar(&runRerun, "rerun", nil, "recompute these stages and everything after them")
	runCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the cost confirmation")
}

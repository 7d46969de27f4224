package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrate/internal/finalize"
	"github.com/jackzampolin/narrate/internal/pipeline/stages"
	"github.com/jackzampolin/narrate/internal/providers"
	"github.com/jackzampolin/narrate/internal/render"
	"github.com/jackzampolin/narrate/internal/synth"
)

var (
	assumeYes bool
	preview   bool
	trackSpec string
)

// planView renders an estimate as a per-track cost table.
type planView struct {
	synth.Estimate `yaml:",inline"`
}

func (p planView) Table() ([]string, [][]string, []render.Align) {
	headers := []string{"#", "TRACK", "JOBS", "CHARS", "COST", "DURATION"}
	aligns := []render.Align{render.AlignRight, render.AlignLeft, render.AlignRight, render.AlignRight, render.AlignRight, render.AlignRight}

	rows := make([][]string, 0, len(p.Tracks)+1)
	for _, t := range p.Tracks {
		rows = append(rows, []string{
			strconv.Itoa(t.Number),
			t.Title,
			strconv.Itoa(t.Jobs),
			strconv.Itoa(t.Chars),
			fmt.Sprintf("$%.2f", t.CostUSD),
			formatDuration(t.DurationMS),
		})
	}
	rows = append(rows, []string{
		"",
		fmt.Sprintf("total (%s, %d skipped)", p.Provider, p.Skipped),
		strconv.Itoa(p.Jobs),
		strconv.Itoa(p.Chars),
		fmt.Sprintf("$%.2f", p.CostUSD),
		formatDuration(p.DurationMS),
	})
	return headers, rows, aligns
}

func formatDuration(ms int) string {
	return (time.Duration(ms) * time.Millisecond).Round(time.Second).String()
}

func selectedProvider() (providers.TTSProvider, error) {
	return stages.Provider(services.Config, services.Registry)
}

// driverOptions applies --tracks over synth.tracks and builds the driver
// options.
func driverOptions() (synth.Options, error) {
	if trackSpec != "" {
		services.Config.Synth.Tracks = trackSpec
	}
	return stages.DriverOptions(services.Config, services.Logger)
}

// confirm shows the estimate and asks before spending money. Without a
// terminal on stdin it requires --yes.
func confirm(est *synth.Estimate) error {
	if assumeYes {
		return nil
	}
	if !render.IsTerminal(os.Stdin) {
		return fmt.Errorf("refusing to synthesize %d jobs ($%.2f) without --yes when stdin is not a terminal", est.Jobs, est.CostUSD)
	}
	headers, rows, aligns := planView{*est}.Table()
	fmt.Fprintln(os.Stderr, render.Table(headers, rows, aligns))
	fmt.Fprintf(os.Stderr, "Synthesize %d jobs for about $%.2f? [y/N] ", est.Jobs, est.CostUSD)

	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	default:
		return fmt.Errorf("synthesis cancelled")
	}
}

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize <jobs.json> <outdir>",
	Short: "Synthesize finalized jobs into audio tracks",
	Long: `Synthesize finalized jobs with the configured TTS provider.

Each completed segment is recorded in a ledger inside the output directory,
so an interrupted run picks up where it stopped. Tracks are written as
"NN - Title.mp3" with .lrc, .txt, .json and .tags.json sidecars.

Examples:
  narrate synthesize jobs.json out/
  narrate synthesize jobs.json out/ --preview
  narrate synthesize jobs.json out/ --tracks 3-5
  NARRATE_SYNTH_VOICE=nova narrate synthesize jobs.json out/ --yes`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := readJobs(args[0])
		if err != nil {
			return err
		}
		return synthesize(cmd, jobs, args[1])
	},
}

func synthesize(cmd *cobra.Command, jobs []finalize.Job, outDir string) error {
	p, err := selectedProvider()
	if err != nil {
		return err
	}
	opts, err := driverOptions()
	if err != nil {
		return err
	}
	driver := synth.NewDriver(p, opts)

	if preview {
		file, err := driver.Preview(cmd.Context(), jobs, outDir)
		if err != nil {
			return err
		}
		return render.Output(outFormat, map[string]string{"preview": file})
	}

	if err := confirm(driver.Estimate(jobs)); err != nil {
		return err
	}
	report, err := driver.Run(cmd.Context(), jobs, outDir)
	if report != nil {
		if rerr := render.Output(outFormat, report); rerr != nil && err == nil {
			err = rerr
		}
	}
	return err
}

var planCmd = &cobra.Command{
	Use:   "plan <jobs.json>",
	Short: "Estimate synthesis cost per track",
	Long: `Estimate billed characters, cost and duration of a job list without
calling the provider. Use -o table for a cost table.

Examples:
  narrate plan jobs.json -o table
  NARRATE_SYNTH_PROVIDER=elevenlabs narrate plan jobs.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := readJobs(args[0])
		if err != nil {
			return err
		}
		p, err := selectedProvider()
		if err != nil {
			return err
		}
		opts, err := driverOptions()
		if err != nil {
			return err
		}
		return render.Output(outFormat, planView{*synth.EstimateJobs(p, jobs, opts.Tracks)})
	},
}

func init() {
	synthesizeCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the cost confirmation")
	synthesizeCmd.Flags().BoolVar(&preview, "preview", false, "synthesize only the longest job as preview.mp3")
	for _, c := range []*cobra.Command{synthesizeCmd, planCmd, runCmd} {
		c.Flags().StringVar(&trackSpec, "tracks", "", "only synthesize these tracks (N, N-M, N- or -M)")
	}
}

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrate/internal/home"
	"github.com/jackzampolin/narrate/internal/pipeline"
	"github.com/jackzampolin/narrate/internal/pipeline/stages"
	"github.com/jackzampolin/narrate/internal/render"
)

// stageState is one row of `narrate status`.
type stageState struct {
	Icon        string `json:"icon" yaml:"icon"`
	Stage       string `json:"stage" yaml:"stage"`
	Description string `json:"description" yaml:"description"`
	Complete    bool   `json:"complete" yaml:"complete"`
	Status      any    `json:"status" yaml:"status"`
}

type stageStates []stageState

func (s stageStates) Table() ([]string, [][]string, []render.Align) {
	rows := make([][]string, 0, len(s))
	for _, st := range s {
		done := "pending"
		if st.Complete {
			done = "done"
		}
		rows = append(rows, []string{st.Icon, st.Stage, done, st.Description})
	}
	return []string{"", "STAGE", "STATE", "DESCRIPTION"}, rows, nil
}

var statusCmd = &cobra.Command{
	Use:   "status <outdir|epub>",
	Short: "Show which stages have artifacts in an output directory",
	Long: `Show the state of every stage for a book. Given an EPUB, the default
output directory ~/.narrate/books/<epub name> is inspected.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		if info, err := os.Stat(dir); err == nil && !info.IsDir() {
			dir = services.Home.BookDir(home.Slug(dir))
		}

		ordered, err := stages.NewRegistry().Ordered()
		if err != nil {
			return err
		}
		bk := pipeline.NewBook("", dir)
		out := make(stageStates, 0, len(ordered))
		for _, s := range ordered {
			status, err := s.GetStatus(cmd.Context(), bk)
			if err != nil {
				return err
			}
			out = append(out, stageState{
				Icon:        s.Icon(),
				Stage:       s.Name(),
				Description: s.Description(),
				Complete:    status.IsComplete(),
				Status:      status.Data(),
			})
		}
		return render.Output(outFormat, out)
	},
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrate/internal/render"
	"github.com/jackzampolin/narrate/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return render.Output(outFormat, version.Get())
	},
}

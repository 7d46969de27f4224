package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrate/internal/config"
	"github.com/jackzampolin/narrate/internal/render"
	"github.com/jackzampolin/narrate/internal/voices"
)

var voicesRefresh bool

// voiceList renders cached voices as a table.
type voiceList []voices.Voice

func (l voiceList) Table() ([]string, [][]string, []render.Align) {
	rows := make([][]string, 0, len(l))
	for _, v := range l {
		def := ""
		if v.IsDefault {
			def = "*"
		}
		rows = append(rows, []string{def, v.Provider, v.VoiceID, v.Name, v.Description})
	}
	return []string{"", "PROVIDER", "ID", "NAME", "DESCRIPTION"}, rows, nil
}

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List voices offered by the configured providers",
	Long: `List voices from the local cache, fetching them first when the cache is
empty or --refresh is given. The configured voice of each provider is marked.

Examples:
  narrate voices -o table
  narrate voices --refresh
  narrate voices default nova`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := services.Home.VoicesPath()
		list, err := voices.List(path)
		if err != nil {
			return err
		}
		if voicesRefresh || len(list) == 0 {
			list, err = voices.Sync(cmd.Context(), voices.SyncConfig{
				Registry: services.Registry,
				Path:     path,
				Logger:   services.Logger,
			})
			if err != nil {
				return err
			}
		}
		voices.MarkDefaults(list, services.Config)
		return render.Output(outFormat, voiceList(list))
	},
}

var voicesDefaultCmd = &cobra.Command{
	Use:   "default <voice>",
	Short: "Make a cached voice its provider's configured voice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := voices.List(services.Home.VoicesPath())
		if err != nil {
			return err
		}
		v, err := voices.SetDefault(config.NewStore(configPath()), list, args[0])
		if err != nil {
			return err
		}
		return render.Output(outFormat, v)
	},
}

func init() {
	voicesCmd.Flags().BoolVar(&voicesRefresh, "refresh", false, "fetch voices from the providers")
	voicesCmd.AddCommand(voicesDefaultCmd)
}

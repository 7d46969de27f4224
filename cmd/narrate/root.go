package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/narrate/internal/config"
	"github.com/jackzampolin/narrate/internal/home"
	"github.com/jackzampolin/narrate/internal/providers"
	"github.com/jackzampolin/narrate/internal/render"
	"github.com/jackzampolin/narrate/internal/svcctx"
	"github.com/jackzampolin/narrate/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string

	// Set by the root PersistentPreRunE.
	outFormat render.Format
	services  *svcctx.Services
	cfgMgr    *config.Manager
)

var rootCmd = &cobra.Command{
	Use:   "narrate",
	Short: "Turn EPUB books into narrated audiobooks",
	Long: `Narrate converts an EPUB into audiobook tracks.

The pipeline includes:
  - EPUB interpretation into a general book model
  - SSML query generation sized for TTS request limits
  - Metadata mapping into ID3, Kodi NFO and Plex targets
  - Track assignment from the table of contents
  - Resumable synthesis with OpenAI or ElevenLabs voices`,
	Version:           version.GitRelease,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.narrate/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "narrate home directory (default: ~/.narrate)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml, json or table",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn or error",
	)

	rootCmd.AddCommand(interpretCmd)
	rootCmd.AddCommand(ssmlCmd)
	rootCmd.AddCommand(metadataCmd)
	rootCmd.AddCommand(finalizeCmd)
	rootCmd.AddCommand(wordsCmd)
	rootCmd.AddCommand(synthesizeCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sampleCmd)
	rootCmd.AddCommand(voicesCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads .env, config and the provider registry, then attaches them
// to the command context.
func setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	var err error
	if outFormat, err = render.ParseFormat(outputFormat); err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
		return fmt.Errorf("invalid --log-level %q", logLevel)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	h, err := home.New(homeDir)
	if err != nil {
		return err
	}

	cfgMgr, err = config.NewManager(cfgFile, h.Path())
	if err != nil {
		return err
	}
	cfg := cfgMgr.Get()
	if f := cfgMgr.ConfigFile(); f != "" {
		logger.Debug("config loaded", "file", f)
	}

	reg := providers.NewRegistryFromConfig(cfg.ToProviderRegistryConfig())
	reg.SetLogger(logger)

	services = &svcctx.Services{
		Config:   cfg,
		Registry: reg,
		Logger:   logger,
		Home:     h,
	}
	cmd.SetContext(svcctx.WithServices(cmd.Context(), services))
	return nil
}

// Package stages implements the narrate pipeline stages and registers them
// with a pipeline.Registry.
package stages

import (
	"fmt"
	"log/slog"

	"github.com/jackzampolin/narrate/internal/config"
	"github.com/jackzampolin/narrate/internal/epub"
	"github.com/jackzampolin/narrate/internal/finalize"
	"github.com/jackzampolin/narrate/internal/home"
	"github.com/jackzampolin/narrate/internal/metadata"
	"github.com/jackzampolin/narrate/internal/pipeline"
	"github.com/jackzampolin/narrate/internal/providers"
	"github.com/jackzampolin/narrate/internal/ssml"
	"github.com/jackzampolin/narrate/internal/synth"
)

// Stage names.
const (
	Interpret  = "interpret"
	SSML       = "ssml"
	Metadata   = "metadata"
	Finalize   = "finalize"
	Synthesize = "synthesize"
)

// Artifact file names inside a book directory.
const (
	BookFile     = "book.json"
	QueriesFile  = "queries.json"
	MetadataFile = "metadata.json"
	JobsFile     = "jobs.json"
	ExportsDir   = "exports"
)

// NewRegistry returns a registry with every stage registered.
func NewRegistry() *pipeline.Registry {
	r := pipeline.NewRegistry()
	for _, s := range []pipeline.Stage{
		&InterpretStage{},
		&SSMLStage{},
		&MetadataStage{},
		&FinalizeStage{},
		&SynthesizeStage{},
	} {
		// Names are constants; a duplicate is a programming error.
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	if err := r.Validate(); err != nil {
		panic(err)
	}
	return r
}

// InterpretOptions builds interpreter options from config.
func InterpretOptions(cfg *config.Config, logger *slog.Logger) epub.Options {
	return epub.Options{
		MaxEntrySize: cfg.Interpret.MaxEntrySize,
		MaxEntries:   cfg.Interpret.MaxEntries,
		Concurrency:  cfg.Interpret.Concurrency,
		Logger:       logger,
	}
}

// SSMLOptions builds query generator options from config.
func SSMLOptions(cfg *config.Config, logger *slog.Logger) ssml.Options {
	return ssml.Options{
		MaxChars:    cfg.SSML.MaxChars,
		MaxPayload:  cfg.SSML.MaxPayload,
		FoldASCII:   cfg.SSML.FoldASCII,
		NoMarks:     cfg.SSML.NoMarks,
		Concurrency: cfg.SSML.Concurrency,
		Logger:      logger,
	}
}

// FinalizeOptions builds finalizer options from config.
func FinalizeOptions(cfg *config.Config, logger *slog.Logger) finalize.Options {
	return finalize.Options{
		PerParagraphTracks: cfg.Finalize.PerParagraphTracks,
		NestedLabels:       cfg.Finalize.NestedLabels,
		SkipUnreadable:     cfg.Finalize.SkipUnreadable,
		UnreadableWords:    cfg.Finalize.UnreadableWords,
		MinReadableQueries: cfg.Finalize.MinReadableQueries,
		PreTOCLabel:        cfg.Finalize.PreTOCLabel,
		StrictTOC:          cfg.Finalize.PreTOCLabel == "",
		SpineChapters:      cfg.Finalize.SpineChapters,
		TagTarget:          cfg.Finalize.TagTarget,
		Logger:             logger,
	}
}

// MappingConfig loads the configured metadata mapping. A bare mapping name
// is looked up in the home directory's mappings folder.
func MappingConfig(cfg *config.Config, h *home.Dir) (*metadata.Config, error) {
	path := cfg.Metadata.MappingFile
	if h != nil {
		path = h.MappingPath(path)
	}
	return metadata.LoadConfig(path)
}

// Provider returns the configured synthesis provider from reg.
func Provider(cfg *config.Config, reg *providers.Registry) (providers.TTSProvider, error) {
	if reg == nil {
		reg = providers.NewRegistryFromConfig(cfg.ToProviderRegistryConfig())
	}
	name := cfg.Synth.Provider
	if !reg.Has(name) {
		if pc, ok := cfg.GetProvider(name); ok && !pc.Enabled {
			return nil, fmt.Errorf("TTS provider %q is disabled", name)
		}
		return nil, fmt.Errorf("TTS provider %q is not available (check its API key); configured: %v", name, reg.List())
	}
	return reg.Get(name)
}

// DriverOptions builds synthesis driver options from config.
func DriverOptions(cfg *config.Config, logger *slog.Logger) (synth.Options, error) {
	tracks, err := synth.ParseTrackRange(cfg.Synth.Tracks)
	if err != nil {
		return synth.Options{}, err
	}
	return synth.Options{
		Voice:        cfg.Voice(),
		Instructions: cfg.Synth.Instructions,
		Concurrency:  cfg.Synth.Concurrency,
		RateLimit:    cfg.Synth.RateLimit,
		Tracks:       tracks,
		CheckHealth:  cfg.Synth.CheckHealth,
		Logger:       logger,
	}, nil
}

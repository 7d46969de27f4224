package config

// Config holds narrate configuration.
// Stored at: {home}/config.yaml or ./config.yaml
type Config struct {
	Providers map[string]ProviderCfg `mapstructure:"providers" yaml:"providers"`
	Interpret InterpretCfg           `mapstructure:"interpret" yaml:"interpret"`
	SSML      SSMLCfg                `mapstructure:"ssml" yaml:"ssml"`
	Metadata  MetadataCfg            `mapstructure:"metadata" yaml:"metadata"`
	Finalize  FinalizeCfg            `mapstructure:"finalize" yaml:"finalize"`
	Synth     SynthCfg               `mapstructure:"synth" yaml:"synth"`
}

// ProviderCfg configures a TTS provider.
type ProviderCfg struct {
	Type         string  `mapstructure:"type" yaml:"type"` // "openai", "elevenlabs", "mock"
	Model        string  `mapstructure:"model" yaml:"model"`
	Voice        string  `mapstructure:"voice" yaml:"voice"`
	Format       string  `mapstructure:"format" yaml:"format"`
	Speed        float64 `mapstructure:"speed" yaml:"speed"`
	Instructions string  `mapstructure:"instructions" yaml:"instructions,omitempty"`
	APIKey       string  `mapstructure:"api_key" yaml:"api_key"` // API key (supports ${ENV_VAR} syntax)
	BaseURL      string  `mapstructure:"base_url" yaml:"base_url,omitempty"`
	RateLimit    float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	MaxRetries   int     `mapstructure:"max_retries" yaml:"max_retries"`
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled"`
}

// InterpretCfg bounds EPUB container reads.
type InterpretCfg struct {
	MaxEntrySize int64 `mapstructure:"max_entry_size" yaml:"max_entry_size"` // bytes per zip entry
	MaxEntries   int   `mapstructure:"max_entries" yaml:"max_entries"`
	Concurrency  int   `mapstructure:"concurrency" yaml:"concurrency"`
}

// SSMLCfg configures query generation.
type SSMLCfg struct {
	MaxChars    int  `mapstructure:"max_chars" yaml:"max_chars"`
	MaxPayload  int  `mapstructure:"max_payload" yaml:"max_payload"`
	FoldASCII   bool `mapstructure:"fold_ascii" yaml:"fold_ascii"`
	NoMarks     bool `mapstructure:"no_marks" yaml:"no_marks"`
	Concurrency int  `mapstructure:"concurrency" yaml:"concurrency"`
}

// MetadataCfg points at a user mapping file. Empty uses the built-in one.
type MetadataCfg struct {
	MappingFile string `mapstructure:"mapping_file" yaml:"mapping_file"`
}

// FinalizeCfg configures track assignment.
type FinalizeCfg struct {
	PerParagraphTracks bool     `mapstructure:"per_paragraph_tracks" yaml:"per_paragraph_tracks"`
	NestedLabels       bool     `mapstructure:"nested_labels" yaml:"nested_labels"`
	SkipUnreadable     bool     `mapstructure:"skip_unreadable" yaml:"skip_unreadable"`
	UnreadableWords    []string `mapstructure:"unreadable_words" yaml:"unreadable_words"`
	MinReadableQueries int      `mapstructure:"min_readable_queries" yaml:"min_readable_queries"`
	PreTOCLabel        string   `mapstructure:"pre_toc_label" yaml:"pre_toc_label"`
	SpineChapters      bool     `mapstructure:"spine_chapters" yaml:"spine_chapters"`
	TagTarget          string   `mapstructure:"tag_target" yaml:"tag_target"`
}

// SynthCfg selects the provider and voice for synthesis.
type SynthCfg struct {
	Provider     string  `mapstructure:"provider" yaml:"provider"`
	Voice        string  `mapstructure:"voice" yaml:"voice"` // overrides the provider's voice
	Instructions string  `mapstructure:"instructions" yaml:"instructions"`
	Concurrency  int     `mapstructure:"concurrency" yaml:"concurrency"`
	RateLimit    float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // overrides the provider's rate
	CheckHealth  bool    `mapstructure:"check_health" yaml:"check_health"`
	Tracks       string  `mapstructure:"tracks" yaml:"tracks"` // e.g. "3-7"; empty selects all
}

// GetProvider returns a provider config by name.
func (c *Config) GetProvider(name string) (ProviderCfg, bool) {
	cfg, ok := c.Providers[name]
	return cfg, ok
}

// EnabledProviders returns all enabled providers.
func (c *Config) EnabledProviders() map[string]ProviderCfg {
	result := make(map[string]ProviderCfg)
	for name, cfg := range c.Providers {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// Voice returns the voice used for synthesis: the synth override, else the
// selected provider's configured voice.
func (c *Config) Voice() string {
	if c.Synth.Voice != "" {
		return c.Synth.Voice
	}
	return c.Providers[c.Synth.Provider].Voice
}


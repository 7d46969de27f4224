package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jackzampolin/narrate/internal/epub"
	"github.com/jackzampolin/narrate/internal/finalize"
	"github.com/jackzampolin/narrate/internal/metadata"
	"github.com/jackzampolin/narrate/internal/ssml"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// DefaultEntries returns the default configuration entries.
// Every entry is registered as a viper default, so each key can also be set
// through a NARRATE_ environment variable.
func DefaultEntries() []Entry {
	return []Entry{
		// ===================
		// TTS Providers
		// ===================

		// TTS Providers - OpenAI
		{
			Key:         "providers.openai.type",
			Value:       "openai",
			Description: "TTS provider type for OpenAI",
		},
		{
			Key:         "providers.openai.model",
			Value:       "tts-1-hd",
			Description: "Default OpenAI TTS model",
		},
		{
			Key:         "providers.openai.voice",
			Value:       "onyx",
			Description: "Default OpenAI TTS voice",
		},
		{
			Key:         "providers.openai.format",
			Value:       "mp3",
			Description: "OpenAI audio output format",
		},
		{
			Key:         "providers.openai.speed",
			Value:       1.0,
			Description: "OpenAI speech speed",
		},
		{
			Key:         "providers.openai.api_key",
			Value:       "${OPENAI_API_KEY}",
			Description: "OpenAI API key (uses environment variable)",
		},
		{
			Key:         "providers.openai.rate_limit",
			Value:       8.0,
			Description: "Rate limit in requests per second for OpenAI TTS",
		},
		{
			Key:         "providers.openai.max_retries",
			Value:       5,
			Description: "Maximum retry attempts for failed OpenAI requests",
		},
		{
			Key:         "providers.openai.enabled",
			Value:       true,
			Description: "Whether OpenAI TTS provider is enabled",
		},

		// TTS Providers - ElevenLabs
		{
			Key:         "providers.elevenlabs.type",
			Value:       "elevenlabs",
			Description: "TTS provider type for ElevenLabs",
		},
		{
			Key:         "providers.elevenlabs.model",
			Value:       "eleven_turbo_v2_5",
			Description: "Model name for ElevenLabs TTS",
		},
		{
			Key:         "providers.elevenlabs.voice",
			Value:       "",
			Description: "ElevenLabs voice ID (required to synthesize)",
		},
		{
			Key:         "providers.elevenlabs.format",
			Value:       "mp3_44100_128",
			Description: "ElevenLabs audio output format",
		},
		{
			Key:         "providers.elevenlabs.speed",
			Value:       1.0,
			Description: "ElevenLabs speech speed",
		},
		{
			Key:         "providers.elevenlabs.api_key",
			Value:       "${ELEVENLABS_API_KEY}",
			Description: "ElevenLabs API key (uses environment variable)",
		},
		{
			Key:         "providers.elevenlabs.rate_limit",
			Value:       10.0,
			Description: "Rate limit in requests per second for ElevenLabs",
		},
		{
			Key:         "providers.elevenlabs.max_retries",
			Value:       5,
			Description: "Maximum retry attempts for failed ElevenLabs requests",
		},
		{
			Key:         "providers.elevenlabs.enabled",
			Value:       true,
			Description: "Whether ElevenLabs TTS provider is enabled",
		},

		// TTS Providers - Mock
		{
			Key:         "providers.mock.type",
			Value:       "mock",
			Description: "Offline provider that writes placeholder audio",
		},
		{
			Key:         "providers.mock.enabled",
			Value:       false,
			Description: "Whether the mock provider is enabled",
		},

		// ===================
		// Stages
		// ===================
		{
			Key:         "interpret.max_entry_size",
			Value:       epub.DefaultMaxEntrySize,
			Description: "Largest EPUB container entry read, in bytes",
		},
		{
			Key:         "interpret.max_entries",
			Value:       epub.DefaultMaxEntries,
			Description: "Most entries allowed in an EPUB container",
		},
		{
			Key:         "interpret.concurrency",
			Value:       0,
			Description: "Parallel document flattening (0 uses GOMAXPROCS)",
		},
		{
			Key:         "ssml.max_chars",
			Value:       ssml.DefaultMaxChars,
			Description: "Billed characters allowed per SSML query",
		},
		{
			Key:         "ssml.max_payload",
			Value:       ssml.DefaultMaxPayload,
			Description: "Serialized SSML bytes allowed per query",
		},
		{
			Key:         "ssml.fold_ascii",
			Value:       false,
			Description: "Strip accents and non-ASCII characters from queries",
		},
		{
			Key:         "ssml.no_marks",
			Value:       false,
			Description: "Omit the unit <mark/> from each query",
		},
		{
			Key:         "ssml.concurrency",
			Value:       0,
			Description: "Parallel unit rendering (0 uses GOMAXPROCS)",
		},
		{
			Key:         "metadata.mapping_file",
			Value:       "",
			Description: "Metadata mapping file (YAML or JSON); empty uses the built-in mapping",
		},
		{
			Key:         "finalize.per_paragraph_tracks",
			Value:       false,
			Description: "Give every paragraph its own track",
		},
		{
			Key:         "finalize.nested_labels",
			Value:       false,
			Description: "Join parent TOC labels into track titles",
		},
		{
			Key:         "finalize.skip_unreadable",
			Value:       false,
			Description: "Exclude short front and back matter chapters",
		},
		{
			Key:         "finalize.unreadable_words",
			Value:       finalize.DefaultUnreadableWords,
			Description: "Chapter label words that mark unreadable matter",
		},
		{
			Key:         "finalize.min_readable_queries",
			Value:       3,
			Description: "Chapters with fewer queries may be excluded as unreadable",
		},
		{
			Key:         "finalize.pre_toc_label",
			Value:       finalize.DefaultPreTOCLabel,
			Description: "Chapter label for content before the first TOC entry; empty makes such content an error",
		},
		{
			Key:         "finalize.spine_chapters",
			Value:       false,
			Description: "Use spine documents as chapters and ignore the table of contents",
		},
		{
			Key:         "finalize.tag_target",
			Value:       metadata.TargetID3,
			Description: "Mapped metadata target copied into track tags",
		},
		{
			Key:         "synth.provider",
			Value:       "openai",
			Description: "TTS provider used for synthesis",
		},
		{
			Key:         "synth.voice",
			Value:       "",
			Description: "Voice override; empty uses the provider's voice",
		},
		{
			Key:         "synth.instructions",
			Value:       "",
			Description: "Optional delivery instructions for gpt-4o-mini-tts",
		},
		{
			Key:         "synth.concurrency",
			Value:       0,
			Description: "Concurrent synthesis requests (0 uses the provider's limit)",
		},
		{
			Key:         "synth.rate_limit",
			Value:       0.0,
			Description: "Requests per second override (0 uses the provider's rate)",
		},
		{
			Key:         "synth.check_health",
			Value:       true,
			Description: "Verify provider credentials before synthesizing",
		},
		{
			Key:         "synth.tracks",
			Value:       "",
			Description: "Tracks to synthesize: N, N-M, N- or -M (empty synthesizes all)",
		},
	}
}

// GetDefault returns the default entry for a config key.
// Returns nil if no default exists for the key.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// ResetToDefault resets a config key to its default value.
// Returns ErrNoDefault if no default exists for the key.
func ResetToDefault(store Store, key string) error {
	def := GetDefault(key)
	if def == nil {
		return fmt.Errorf("%w for key %q", ErrNoDefault, key)
	}
	return store.Set(key, def.Value)
}

// DefaultKeys returns every key with a default, sorted.
func DefaultKeys() []string {
	entries := DefaultEntries()
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	sort.Strings(keys)
	return keys
}

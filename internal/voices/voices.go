// Package voices caches the voices offered by configured TTS providers and
// selects the default voice per provider.
package voices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jackzampolin/narrate/internal/config"
	"github.com/jackzampolin/narrate/internal/providers"
)

// ErrNotFound is returned when a voice is not in the cache.
var ErrNotFound = errors.New("voice not found")

// Voice is a cached provider voice.
type Voice struct {
	VoiceID     string `json:"voice_id" yaml:"voice_id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Provider    string `json:"provider" yaml:"provider"`
	IsDefault   bool   `json:"is_default" yaml:"is_default"`
	SyncedAt    string `json:"synced_at,omitempty" yaml:"synced_at,omitempty"`
}

// SyncConfig holds configuration for voice sync.
type SyncConfig struct {
	Registry *providers.Registry
	Path     string // cache file
	Logger   *slog.Logger
}

// Sync fetches voices from every registered provider that can list them and
// replaces the cache. A provider that fails is skipped and its previously
// cached voices are kept.
func Sync(ctx context.Context, cfg SyncConfig) ([]Voice, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	previous, err := List(cfg.Path)
	if err != nil {
		return nil, err
	}
	byProvider := make(map[string][]Voice)
	for _, v := range previous {
		byProvider[v.Provider] = append(byProvider[v.Provider], v)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, name := range cfg.Registry.List() {
		p, err := cfg.Registry.Get(name)
		if err != nil {
			return nil, err
		}
		lister, ok := p.(providers.VoicesLister)
		if !ok {
			cfg.Logger.Debug("provider cannot list voices", "provider", name)
			continue
		}
		apiVoices, err := lister.ListVoices(ctx)
		if err != nil {
			cfg.Logger.Warn("failed to fetch voices", "provider", name, "error", err)
			continue
		}

		fetched := make([]Voice, 0, len(apiVoices))
		for _, v := range apiVoices {
			fetched = append(fetched, Voice{
				VoiceID:     v.VoiceID,
				Name:        v.Name,
				Description: v.Description,
				Provider:    name,
				SyncedAt:    now,
			})
		}
		byProvider[name] = fetched
		cfg.Logger.Info("voices synced", "provider", name, "count", len(fetched))
	}

	var all []Voice
	for _, vs := range byProvider {
		all = append(all, vs...)
	}
	sortVoices(all)
	if err := save(cfg.Path, all); err != nil {
		return nil, err
	}
	return all, nil
}

// List returns the cached voices. A missing cache is empty.
func List(path string) ([]Voice, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read voice cache: %w", err)
	}
	var voices []Voice
	if err := json.Unmarshal(data, &voices); err != nil {
		return nil, fmt.Errorf("failed to parse voice cache %s: %w", path, err)
	}
	return voices, nil
}

// MarkDefaults sets IsDefault on the voices each provider is configured with.
func MarkDefaults(voices []Voice, cfg *config.Config) {
	for i := range voices {
		pc, ok := cfg.GetProvider(voices[i].Provider)
		voices[i].IsDefault = ok && pc.Voice == voices[i].VoiceID
	}
}

// SetDefault makes voiceID the configured voice of its provider. The voice
// may be given by ID or name.
func SetDefault(store config.Store, voices []Voice, voiceID string) (*Voice, error) {
	for _, v := range voices {
		if v.VoiceID != voiceID && v.Name != voiceID {
			continue
		}
		if err := store.Set("providers."+v.Provider+".voice", v.VoiceID); err != nil {
			return nil, fmt.Errorf("failed to set default: %w", err)
		}
		v.IsDefault = true
		return &v, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, voiceID)
}

func sortVoices(voices []Voice) {
	sort.SliceStable(voices, func(i, j int) bool {
		if voices[i].Provider != voices[j].Provider {
			return voices[i].Provider < voices[j].Provider
		}
		return voices[i].Name < voices[j].Name
	})
}

func save(path string, voices []Voice) error {
	data, err := json.MarshalIndent(voices, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create voice cache dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write voice cache: %w", err)
	}
	return os.Rename(tmp, path)
}

package voices

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/jackzampolin/narrate/internal/config"
	"github.com/jackzampolin/narrate/internal/providers"
)

type failingLister struct {
	*providers.MockTTS
}

func (f failingLister) ListVoices(context.Context) ([]providers.Voice, error) {
	return nil, errors.New("unavailable")
}

func TestSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voices.json")
	reg := providers.NewRegistry()
	reg.Register("openai", providers.NewOpenAITTSClient(providers.OpenAITTSConfig{APIKey: "test"}))
	reg.Register("mock", providers.NewMockTTS())
	reg.Register("broken", failingLister{providers.NewMockTTS()})

	cfg := SyncConfig{Registry: reg, Path: path, Logger: slog.New(slog.DiscardHandler)}
	voices, err := Sync(context.Background(), cfg)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(voices) == 0 {
		t.Fatal("expected openai voices")
	}
	for _, v := range voices {
		if v.Provider != "openai" {
			t.Errorf("unexpected provider %q", v.Provider)
		}
	}

	cached, err := List(path)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cached) != len(voices) {
		t.Errorf("cache has %d voices, sync returned %d", len(cached), len(voices))
	}

	t.Run("failed provider keeps cache", func(t *testing.T) {
		reg := providers.NewRegistry()
		reg.Register("openai", failingLister{providers.NewMockTTS()})
		again, err := Sync(context.Background(), SyncConfig{Registry: reg, Path: path, Logger: cfg.Logger})
		if err != nil {
			t.Fatalf("sync: %v", err)
		}
		if len(again) != len(voices) {
			t.Errorf("expected %d cached voices kept, got %d", len(voices), len(again))
		}
	})
}

func TestListMissing(t *testing.T) {
	voices, err := List(filepath.Join(t.TempDir(), "none.json"))
	if err != nil || voices != nil {
		t.Errorf("expected empty list, got %v, %v", voices, err)
	}
}

func TestDefaults(t *testing.T) {
	voices := []Voice{
		{VoiceID: "onyx", Name: "onyx", Provider: "openai"},
		{VoiceID: "nova", Name: "nova", Provider: "openai"},
		{VoiceID: "abc123", Name: "Rachel", Provider: "elevenlabs"},
	}
	cfg := config.DefaultConfig()
	MarkDefaults(voices, cfg)
	if !voices[0].IsDefault || voices[1].IsDefault || voices[2].IsDefault {
		t.Errorf("unexpected defaults: %+v", voices)
	}

	store := config.NewStore(filepath.Join(t.TempDir(), "config.yaml"))
	v, err := SetDefault(store, voices, "Rachel")
	if err != nil {
		t.Fatalf("set default: %v", err)
	}
	if v.VoiceID != "abc123" || !v.IsDefault {
		t.Errorf("unexpected voice %+v", v)
	}
	entry, err := store.Get("providers.elevenlabs.voice")
	if err != nil || entry == nil || entry.Value != "abc123" {
		t.Errorf("expected voice in config, got %+v, %v", entry, err)
	}

	if _, err := SetDefault(store, voices, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

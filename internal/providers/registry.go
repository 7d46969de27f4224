package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds the configured TTS providers and provides thread-safe access.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]TTSProvider
	logger    *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]TTSProvider),
		logger:    slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Register adds a provider by name, replacing any previous one.
func (r *Registry) Register(name string, p TTSProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
	if r.logger != nil {
		r.logger.Debug("registered TTS provider", "name", name, "type", p.Name())
	}
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (TTSProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("TTS provider not found: %s", name)
	}
	return p, nil
}

// Has checks if a provider is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegistryConfig defines the providers to instantiate from config.
type RegistryConfig struct {
	Providers map[string]TTSProviderConfig
}

// TTSProviderConfig matches config.ProviderCfg with a resolved API key.
type TTSProviderConfig struct {
	Type         string // "openai", "elevenlabs", "mock"
	Model        string
	Voice        string
	Format       string
	Speed        float64
	Instructions string
	APIKey       string
	BaseURL      string
	RateLimit    float64 // Requests per second
	MaxRetries   int
	Enabled      bool
}

// NewRegistryFromConfig creates a registry with providers based on configuration.
// Only enabled providers with an API key are registered; the mock needs none.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		if pc.APIKey == "" && pc.Type != MockTTSName {
			r.logger.Debug("skipping TTS provider without API key", "name", name)
			continue
		}
		if p := createTTSProvider(pc); p != nil {
			r.providers[name] = p
		} else {
			r.logger.Warn("unknown TTS provider type", "name", name, "type", pc.Type)
		}
	}
	return r
}

// createTTSProvider creates a provider based on provider type.
func createTTSProvider(cfg TTSProviderConfig) TTSProvider {
	switch cfg.Type {
	case OpenAITTSName:
		return NewOpenAITTSClient(OpenAITTSConfig{
			APIKey:       cfg.APIKey,
			Model:        cfg.Model,
			Voice:        cfg.Voice,
			Speed:        cfg.Speed,
			Instructions: cfg.Instructions,
			RateLimit:    cfg.RateLimit,
			MaxRetries:   cfg.MaxRetries,
			BaseURL:      cfg.BaseURL,
		})
	case ElevenLabsTTSName:
		return NewElevenLabsTTSClient(ElevenLabsTTSConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Voice:      cfg.Voice,
			Format:     cfg.Format,
			Speed:      cfg.Speed,
			RateLimit:  cfg.RateLimit,
			MaxRetries: cfg.MaxRetries,
			BaseURL:    cfg.BaseURL,
		})
	case MockTTSName:
		m := NewMockTTS()
		if cfg.RateLimit > 0 {
			m.RPS = cfg.RateLimit
		}
		return m
	default:
		return nil
	}
}

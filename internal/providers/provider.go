package providers

import (
	"context"
	"time"
)

// TTSProvider converts one job's text into audio.
type TTSProvider interface {
	// Name returns the provider identifier (e.g., "openai", "elevenlabs").
	Name() string

	// SupportsSSML reports whether Synthesize accepts SSML markup. Providers
	// that return false receive the plain text of each query.
	SupportsSSML() bool

	// EstimateCostUSD prices a request of the given billed characters.
	EstimateCostUSD(chars int) float64

	// Synthesize produces audio for a single request.
	Synthesize(ctx context.Context, req *TTSRequest) (*TTSResult, error)

	// Rate limiting properties
	RequestsPerSecond() float64
	MaxConcurrency() int
	MaxRetries() int
	RetryDelayBase() time.Duration
}

// VoicesLister is implemented by providers that can enumerate voices.
type VoicesLister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// Voice is a selectable TTS voice.
type Voice struct {
	VoiceID     string `json:"voice_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// TTSRequest is one synthesis call.
type TTSRequest struct {
	Text   string `json:"text"`
	SSML   bool   `json:"ssml,omitempty"` // Text is an SSML document
	Voice  string `json:"voice,omitempty"`
	Format string `json:"format,omitempty"`

	// Instructions steer models that accept a style prompt.
	Instructions string `json:"instructions,omitempty"`

	// PreviousText and NextText are the plain text spoken around this
	// request in the same track. Providers that support stitching use them
	// to keep prosody continuous across request boundaries.
	PreviousText string `json:"previous_text,omitempty"`
	NextText     string `json:"next_text,omitempty"`
}

// Mark is a named point in the returned audio. Offset is the rune index in
// the request text where the mark begins.
type Mark struct {
	Name   string `json:"name"`
	TimeMS int    `json:"time_ms"`
	Offset int    `json:"offset"`
}

// TTSResult is the response from a TTS provider.
type TTSResult struct {
	Success    bool   `json:"success"`
	Audio      []byte `json:"-"`
	DurationMS int    `json:"duration_ms"` // Estimated unless the provider reports it
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Marks      []Mark `json:"marks,omitempty"`

	// Cost and timing
	CostUSD       float64       `json:"cost_usd"`
	CharCount     int           `json:"char_count"`
	ExecutionTime time.Duration `json:"execution_time"`

	// Request tracking
	RequestID string `json:"request_id,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// EstimateDurationMS approximates speech length at ~150 words per minute
// and ~5 characters per word.
func EstimateDurationMS(chars int) int {
	return (chars * 60 * 1000) / (150 * 5)
}

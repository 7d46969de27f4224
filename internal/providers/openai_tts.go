package providers

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAITTSName         = "openai"
	openAITTSDefaultModel = string(openai.SpeechModelTTS1HD)
	openAITTSDefaultVoice = "onyx"
)

// openAIPricePer1K is USD per 1000 input characters.
var openAIPricePer1K = map[string]float64{
	"tts-1-hd": 0.030,
	"tts-1":    0.015,
	// gpt-4o-mini-tts bills tokens; this approximates typical narration.
	"gpt-4o-mini-tts": 0.012,
}

// OpenAITTSConfig holds configuration for the OpenAI TTS client.
type OpenAITTSConfig struct {
	APIKey       string
	Model        string        // "tts-1-hd" (default), "tts-1", "gpt-4o-mini-tts"
	Voice        string        // "onyx" (default)
	Speed        float64       // 0.25-4.0
	Instructions string        // Used by gpt-4o-mini-tts
	RateLimit    float64       // Requests per second
	MaxRetries   int           // Retry attempts for the driver
	RetryDelay   time.Duration // Base retry delay
	Timeout      time.Duration // HTTP timeout
	BaseURL      string        // Optional (tests)
	HTTPClient   *http.Client  // Optional (tests)
}

// OpenAITTSClient implements TTSProvider using the official OpenAI SDK.
// The speech endpoint takes plain text, so SSML is never sent.
type OpenAITTSClient struct {
	model        string
	voice        string
	speed        float64
	instructions string
	rateLimit    float64
	maxRetries   int
	retryDelay   time.Duration
	client       openai.Client
}

// NewOpenAITTSClient creates a new OpenAI TTS client.
func NewOpenAITTSClient(cfg OpenAITTSConfig) *OpenAITTSClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cmp.Or(cfg.Timeout, 300*time.Second)}
	}

	// The synthesis driver owns retries.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAITTSClient{
		model:        cmp.Or(cfg.Model, openAITTSDefaultModel),
		voice:        cmp.Or(cfg.Voice, openAITTSDefaultVoice),
		speed:        cmp.Or(max(cfg.Speed, 0), 1.0),
		instructions: cfg.Instructions,
		rateLimit:    cmp.Or(max(cfg.RateLimit, 0), 8.0), // ~500 RPM
		maxRetries:   cmp.Or(max(cfg.MaxRetries, 0), 3),
		retryDelay:   cmp.Or(cfg.RetryDelay, 2*time.Second),
		client:       openai.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *OpenAITTSClient) Name() string {
	return OpenAITTSName
}

// SupportsSSML is false: the speech endpoint reads markup aloud.
func (c *OpenAITTSClient) SupportsSSML() bool {
	return false
}

// EstimateCostUSD prices chars at the configured model's rate.
func (c *OpenAITTSClient) EstimateCostUSD(chars int) float64 {
	return estimateOpenAITTSCostUSD(c.model, chars)
}

// RequestsPerSecond returns the configured rate limit.
func (c *OpenAITTSClient) RequestsPerSecond() float64 {
	return c.rateLimit
}

// MaxConcurrency returns max concurrent in-flight requests.
func (c *OpenAITTSClient) MaxConcurrency() int {
	// OpenAI limits vary by account tier; use generic default pool size.
	return 0
}

// MaxRetries returns the maximum retry attempts.
func (c *OpenAITTSClient) MaxRetries() int {
	return c.maxRetries
}

// RetryDelayBase returns the base delay for exponential backoff.
func (c *OpenAITTSClient) RetryDelayBase() time.Duration {
	return c.retryDelay
}

// HealthCheck verifies the OpenAI API is reachable and the API key is valid.
func (c *OpenAITTSClient) HealthCheck(ctx context.Context) error {
	page, err := c.client.Models.List(ctx)
	if err != nil {
		return fmt.Errorf("openai models list failed: %w", mapOpenAIError(err))
	}
	if page == nil {
		return fmt.Errorf("openai models list returned nil response")
	}
	return nil
}

// Synthesize converts text to audio using the OpenAI speech API. Models
// that take instructions also receive the neighboring text as a hint to
// keep the narration continuous.
func (c *OpenAITTSClient) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()
	chars := 0
	fail := func(err error) (*TTSResult, error) {
		return &TTSResult{ErrorMessage: err.Error(), CharCount: chars, ExecutionTime: time.Since(start)}, err
	}

	switch {
	case req == nil:
		return fail(fmt.Errorf("request is required"))
	case req.SSML:
		return fail(fmt.Errorf("openai does not accept ssml input"))
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return fail(fmt.Errorf("text is required"))
	}
	chars = utf8.RuneCountInString(text)

	format, ok := openAIFormats[strings.ToLower(strings.TrimSpace(req.Format))]
	if !ok {
		format = openai.AudioSpeechNewParamsResponseFormatMP3
	}
	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(c.model),
		Voice:          openai.AudioSpeechNewParamsVoice(cmp.Or(strings.TrimSpace(req.Voice), c.voice)),
		ResponseFormat: format,
		Speed:          openai.Float(c.speed),
	}
	if supportsInstructions(c.model) {
		if instructions := c.narrationInstructions(req); instructions != "" {
			params.Instructions = openai.String(instructions)
		}
	}

	resp, err := c.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return fail(mapOpenAIError(err))
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(fmt.Errorf("failed reading openai audio response: %w", err))
	}

	return &TTSResult{
		Success:       true,
		Audio:         audio,
		DurationMS:    EstimateDurationMS(chars),
		Format:        string(format),
		CostUSD:       estimateOpenAITTSCostUSD(c.model, chars),
		CharCount:     chars,
		ExecutionTime: time.Since(start),
	}, nil
}

// narrationInstructions joins the style prompt with the text spoken around
// the request.
func (c *OpenAITTSClient) narrationInstructions(req *TTSRequest) string {
	var parts []string
	if style := cmp.Or(strings.TrimSpace(req.Instructions), strings.TrimSpace(c.instructions)); style != "" {
		parts = append(parts, style)
	}
	if prev := strings.TrimSpace(req.PreviousText); prev != "" {
		parts = append(parts, fmt.Sprintf("This passage continues directly from: %q", prev))
	}
	if next := strings.TrimSpace(req.NextText); next != "" {
		parts = append(parts, fmt.Sprintf("It is followed by: %q", next))
	}
	return strings.Join(parts, "\n")
}

func estimateOpenAITTSCostUSD(model string, chars int) float64 {
	model = strings.TrimSpace(strings.ToLower(model))
	price, ok := openAIPricePer1K[model]
	if !ok {
		best := ""
		for prefix, p := range openAIPricePer1K {
			if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
				best, price, ok = prefix, p, true
			}
		}
	}
	if !ok {
		// Unknown OpenAI speech model: fall back to tts-1 instead of zero.
		price = openAIPricePer1K["tts-1"]
	}
	return float64(chars) * price / 1000.0
}

// ListVoices returns the built-in OpenAI TTS voice list.
func (c *OpenAITTSClient) ListVoices(_ context.Context) ([]Voice, error) {
	names := []string{
		"alloy", "ash", "ballad", "coral", "echo", "fable", "nova",
		"onyx", "sage", "shimmer", "verse", "marin", "cedar",
	}

	voices := make([]Voice, 0, len(names))
	for _, name := range names {
		voices = append(voices, Voice{VoiceID: name, Name: name})
	}
	return voices, nil
}

func supportsInstructions(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	return strings.HasPrefix(m, "gpt-4o-mini-tts")
}

// openAIFormats maps requested containers to speech response formats. The
// format values double as file extensions.
var openAIFormats = map[string]openai.AudioSpeechNewParamsResponseFormat{
	"mp3":  openai.AudioSpeechNewParamsResponseFormatMP3,
	"opus": openai.AudioSpeechNewParamsResponseFormatOpus,
	"aac":  openai.AudioSpeechNewParamsResponseFormatAAC,
	"flac": openai.AudioSpeechNewParamsResponseFormatFLAC,
	"wav":  openai.AudioSpeechNewParamsResponseFormatWAV,
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &RateLimitError{
				Message:    fmt.Sprintf("OpenAI rate limited: %s", apiErr.Message),
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		if apiErr.Message != "" {
			return fmt.Errorf("OpenAI TTS error (status %d): %s", apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("OpenAI TTS error (status %d)", apiErr.StatusCode)
	}
	return err
}

var _ TTSProvider = (*OpenAITTSClient)(nil)
var _ VoicesLister = (*OpenAITTSClient)(nil)

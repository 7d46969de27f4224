package providers

import (
	"bytes"
	"cmp"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	ElevenLabsTTSName      = "elevenlabs"
	ElevenLabsAPIBaseURL   = "https://api.elevenlabs.io/v1"
	ElevenLabsDefaultModel = "eleven_turbo_v2_5" // 40k char limit, 50% cheaper than multilingual_v2

	// elevenLabsPricePerChar approximates standard voice pricing
	// (~$0.30 per 1000 characters).
	elevenLabsPricePerChar = 0.0003
)

// ElevenLabsTTSConfig holds configuration for the ElevenLabs TTS client.
type ElevenLabsTTSConfig struct {
	APIKey     string
	Model      string  // e.g., "eleven_multilingual_v2", "eleven_turbo_v2_5", "eleven_flash_v2_5"
	Voice      string  // Default voice ID
	Format     string  // Output format: mp3_44100_128, mp3_22050_32, pcm_16000, etc.
	Stability  float64 // Voice stability (0.0-1.0, default: 0.5)
	Similarity float64 // Similarity boost (0.0-1.0, default: 0.75)
	Style      float64 // Style exaggeration (0.0-1.0, default: 0.0)
	Speed      float64 // Speaking speed (0.7-1.2, default: 1.0)
	Timeout    time.Duration
	RateLimit  float64 // Requests per second
	MaxRetries int     // Max retry attempts (default: 3)
	RetryDelay time.Duration
	BaseURL    string // Optional (tests)
}

// ElevenLabsTTSClient implements TTSProvider using ElevenLabs API.
type ElevenLabsTTSClient struct {
	apiKey     string
	baseURL    string
	model      string
	voice      string
	format     string
	stability  float64
	similarity float64
	style      float64
	speed      float64
	rateLimit  float64
	maxRetries int
	retryDelay time.Duration
	client     *http.Client
}

// NewElevenLabsTTSClient creates a new ElevenLabs TTS client. Zero config
// values take the defaults below.
func NewElevenLabsTTSClient(cfg ElevenLabsTTSConfig) *ElevenLabsTTSClient {
	return &ElevenLabsTTSClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cmp.Or(cfg.BaseURL, ElevenLabsAPIBaseURL), "/"),
		model:      cmp.Or(cfg.Model, ElevenLabsDefaultModel),
		voice:      cfg.Voice,
		format:     cmp.Or(cfg.Format, "mp3_44100_128"),
		stability:  cmp.Or(cfg.Stability, 0.5),
		similarity: cmp.Or(cfg.Similarity, 0.75),
		style:      cfg.Style,
		speed:      cmp.Or(cfg.Speed, 1.0),
		rateLimit:  cmp.Or(cfg.RateLimit, 10.0), // Pro plan: 10 concurrent requests
		maxRetries: cmp.Or(cfg.MaxRetries, 3),
		retryDelay: cmp.Or(cfg.RetryDelay, 2*time.Second),
		client: &http.Client{
			// Long chapters can take minutes.
			Timeout: cmp.Or(cfg.Timeout, 300*time.Second),
		},
	}
}

// Name returns the provider identifier.
func (c *ElevenLabsTTSClient) Name() string {
	return ElevenLabsTTSName
}

// SupportsSSML is false: only break tags are honored, so plain text is sent.
func (c *ElevenLabsTTSClient) SupportsSSML() bool {
	return false
}

// EstimateCostUSD prices chars at the standard voice rate.
func (c *ElevenLabsTTSClient) EstimateCostUSD(chars int) float64 {
	return float64(chars) * elevenLabsPricePerChar
}

// RequestsPerSecond returns the rate limit.
func (c *ElevenLabsTTSClient) RequestsPerSecond() float64 {
	return c.rateLimit
}

// MaxConcurrency returns the max concurrent in-flight requests.
func (c *ElevenLabsTTSClient) MaxConcurrency() int {
	return 10 // ElevenLabs Pro plan allows 10 concurrent requests
}

// MaxRetries returns the maximum retry attempts.
func (c *ElevenLabsTTSClient) MaxRetries() int {
	return c.maxRetries
}

// RetryDelayBase returns the base delay for exponential backoff.
func (c *ElevenLabsTTSClient) RetryDelayBase() time.Duration {
	return c.retryDelay
}

// HealthCheck verifies the ElevenLabs API is reachable and the API key is valid.
func (c *ElevenLabsTTSClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Synthesize converts text to audio with character timestamps. The
// alignment becomes one mark per word and the reported duration.
func (c *ElevenLabsTTSClient) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()
	chars := utf8.RuneCountInString(req.Text)
	fail := func(err error) (*TTSResult, error) {
		return &TTSResult{ErrorMessage: err.Error(), CharCount: chars, ExecutionTime: time.Since(start)}, err
	}

	voice := cmp.Or(req.Voice, c.voice)
	if voice == "" {
		return fail(fmt.Errorf("voice_id is required"))
	}
	format := req.Format
	if format == "" || format == "mp3" {
		format = c.format
	}

	speech, requestID, err := c.doRequest(ctx, voice, format, elevenLabsTTSRequest{
		Text:    req.Text,
		ModelID: c.model,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       c.stability,
			SimilarityBoost: c.similarity,
			Style:           c.style,
			Speed:           c.speed,
			UseSpeakerBoost: true,
		},
		PreviousText: req.PreviousText,
		NextText:     req.NextText,
	})
	if err != nil {
		return fail(err)
	}
	audio, err := base64.StdEncoding.DecodeString(speech.AudioBase64)
	if err != nil {
		return fail(fmt.Errorf("decode audio: %w", err))
	}

	container, sampleRate := parseOutputFormat(format)
	duration := speech.Alignment.durationMS()
	if duration == 0 {
		duration = EstimateDurationMS(chars)
	}
	return &TTSResult{
		Success:       true,
		Audio:         audio,
		DurationMS:    duration,
		Format:        container,
		SampleRate:    sampleRate,
		Marks:         speech.Alignment.wordMarks(),
		CostUSD:       c.EstimateCostUSD(chars),
		CharCount:     chars,
		ExecutionTime: time.Since(start),
		RequestID:     requestID,
	}, nil
}

// doRequest posts to the with-timestamps endpoint and returns the decoded
// response and its request ID.
func (c *ElevenLabsTTSClient) doRequest(ctx context.Context, voiceID, format string, body elevenLabsTTSRequest) (*elevenLabsSpeech, string, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s/with-timestamps?output_format=%s",
		c.baseURL, url.PathEscape(voiceID), url.QueryEscape(format))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp elevenLabsErrorResponse
		errMsg := string(respBody)
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Detail.Message != "" {
			errMsg = errResp.Detail.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, "", &RateLimitError{
				Message:    fmt.Sprintf("ElevenLabs rate limited: %s", errMsg),
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				StatusCode: resp.StatusCode,
			}
		}
		return nil, "", fmt.Errorf("ElevenLabs TTS error (status %d): %s", resp.StatusCode, errMsg)
	}

	var speech elevenLabsSpeech
	if err := json.Unmarshal(respBody, &speech); err != nil {
		return nil, "", fmt.Errorf("failed to decode response: %w", err)
	}
	return &speech, cmp.Or(resp.Header.Get("request-id"), resp.Header.Get("x-request-id")), nil
}

// ListVoices retrieves available voices from ElevenLabs.
func (c *ElevenLabsTTSClient) ListVoices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to list voices (status %d): %s", resp.StatusCode, string(body))
	}

	var result elevenLabsVoicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	voices := make([]Voice, 0, len(result.Voices))
	for _, v := range result.Voices {
		voices = append(voices, Voice{
			VoiceID:     v.VoiceID,
			Name:        v.Name,
			Description: v.Description,
		})
	}
	return voices, nil
}

// ElevenLabs API types

type elevenLabsTTSRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
	PreviousText  string                  `json:"previous_text,omitempty"`
	NextText      string                  `json:"next_text,omitempty"`
}

type elevenLabsSpeech struct {
	AudioBase64 string              `json:"audio_base64"`
	Alignment   elevenLabsAlignment `json:"alignment"`
}

// elevenLabsAlignment holds per-character timings, one entry per character
// of the request text.
type elevenLabsAlignment struct {
	Characters []string  `json:"characters"`
	Starts     []float64 `json:"character_start_times_seconds"`
	Ends       []float64 `json:"character_end_times_seconds"`
}

func (a elevenLabsAlignment) durationMS() int {
	if len(a.Ends) == 0 {
		return 0
	}
	return int(math.Round(a.Ends[len(a.Ends)-1] * 1000))
}

// wordMarks emits a mark at the first character of every word.
func (a elevenLabsAlignment) wordMarks() []Mark {
	n := min(len(a.Characters), len(a.Starts))
	var marks []Mark
	for i := 0; i < n; i++ {
		if isBlank(a.Characters[i]) {
			continue
		}
		var word strings.Builder
		j := i
		for ; j < n && !isBlank(a.Characters[j]); j++ {
			word.WriteString(a.Characters[j])
		}
		marks = append(marks, Mark{
			Name:   word.String(),
			TimeMS: int(math.Round(a.Starts[i] * 1000)),
			Offset: i,
		})
		i = j
	}
	return marks
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	Speed           float64 `json:"speed,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// parseOutputFormat extracts container format and sample rate from output_format.
// Examples: mp3_44100_128 -> (mp3, 44100), pcm_16000 -> (wav, 16000).
func parseOutputFormat(format string) (container string, sampleRate int) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return "mp3", 0
	}

	parts := strings.Split(format, "_")
	container = parts[0]
	if container == "pcm" || container == "ulaw" || container == "alaw" {
		container = "wav"
	}

	if len(parts) >= 2 {
		if sr, err := strconv.Atoi(parts[1]); err == nil {
			sampleRate = sr
		}
	}

	return container, sampleRate
}

type elevenLabsErrorResponse struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

type elevenLabsVoicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

type elevenLabsVoice struct {
	VoiceID     string `json:"voice_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

var _ TTSProvider = (*ElevenLabsTTSClient)(nil)
var _ VoicesLister = (*ElevenLabsTTSClient)(nil)

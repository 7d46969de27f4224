package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// speechServer records the JSON body of each /audio/speech call.
func speechServer(t *testing.T, payload *map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		*payload = nil
		if err := json.Unmarshal(body, payload); err != nil {
			t.Errorf("unmarshal body: %v", err)
		}
		_, _ = w.Write([]byte("audio-bytes"))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOpenAITTSSynthesize(t *testing.T) {
	var payload map[string]any
	server := speechServer(t, &payload)

	tests := []struct {
		name         string
		model        string
		req          TTSRequest
		format       string
		voice        string
		instructions []string // substrings; nil means no instructions sent
	}{
		{
			name:         "style override",
			model:        "gpt-4o-mini-tts",
			req:          TTSRequest{Text: "Hello world.", Instructions: "Narrate calmly."},
			format:       "mp3",
			voice:        "onyx",
			instructions: []string{"Narrate calmly."},
		},
		{
			name:  "neighbor text",
			model: "gpt-4o-mini-tts",
			req: TTSRequest{
				Text:         "Hello world.",
				PreviousText: "The door opened.",
				NextText:     "Nobody answered.",
			},
			format:       "mp3",
			voice:        "onyx",
			instructions: []string{"Default style.", `"The door opened."`, `"Nobody answered."`},
		},
		{
			name:   "no instructions on tts-1",
			model:  "tts-1",
			req:    TTSRequest{Text: "Hello world.", Voice: "nova", Format: "wav", PreviousText: "Before."},
			format: "wav",
			voice:  "nova",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewOpenAITTSClient(OpenAITTSConfig{
				APIKey:       "test-key",
				Model:        tt.model,
				Voice:        "onyx",
				Instructions: "Default style.",
				BaseURL:      server.URL,
			})
			result, err := client.Synthesize(context.Background(), &tt.req)
			if err != nil {
				t.Fatalf("Synthesize() error = %v", err)
			}
			if !result.Success || string(result.Audio) != "audio-bytes" {
				t.Fatalf("unexpected result %+v", result)
			}
			if result.Format != tt.format || payload["response_format"] != tt.format {
				t.Errorf("format: result %q, sent %v, want %q", result.Format, payload["response_format"], tt.format)
			}
			if payload["voice"] != tt.voice || payload["model"] != tt.model {
				t.Errorf("unexpected payload %v", payload)
			}
			if result.CharCount != 12 || result.CostUSD <= 0 {
				t.Errorf("chars=%d cost=%f", result.CharCount, result.CostUSD)
			}

			got, sent := payload["instructions"].(string)
			if tt.instructions == nil {
				if sent {
					t.Errorf("expected no instructions, got %q", got)
				}
				return
			}
			for _, want := range tt.instructions {
				if !strings.Contains(got, want) {
					t.Errorf("instructions %q missing %q", got, want)
				}
			}
		})
	}
}

func TestOpenAITTSSynthesizeRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit","type":"rate_limit_error","param":"","code":"rate_limit"}}`))
	}))
	defer server.Close()

	client := NewOpenAITTSClient(OpenAITTSConfig{
		APIKey:  "test-key",
		Model:   "tts-1-hd",
		Voice:   "onyx",
		BaseURL: server.URL,
	})

	_, err := client.Synthesize(context.Background(), &TTSRequest{
		Text:   "Hello world.",
		Format: "mp3",
	})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	rle, ok := IsRateLimitError(err)
	if !ok {
		t.Fatalf("expected RateLimitError, got %T: %v", err, err)
	}
	if rle.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rle.StatusCode)
	}
	if rle.RetryAfter != 3*time.Second {
		t.Fatalf("expected RetryAfter=3s, got %v", rle.RetryAfter)
	}
}

func TestOpenAITTSHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"tts-1","object":"model","created":1,"owned_by":"openai"}]}`))
	}))
	defer server.Close()

	client := NewOpenAITTSClient(OpenAITTSConfig{
		APIKey:  "test-key",
		Model:   "tts-1-hd",
		Voice:   "onyx",
		BaseURL: server.URL,
	})

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
}

func TestOpenAITTSListVoices(t *testing.T) {
	client := NewOpenAITTSClient(OpenAITTSConfig{
		APIKey: "test-key",
	})

	voices, err := client.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices() error = %v", err)
	}
	if len(voices) != 13 {
		t.Fatalf("expected 13 voices, got %d", len(voices))
	}
	foundOnyx := false
	for _, v := range voices {
		if v.VoiceID == "onyx" {
			foundOnyx = true
			break
		}
	}
	if !foundOnyx {
		t.Fatal("expected onyx in voice list")
	}
}

func TestOpenAITTSSynthesizeValidation(t *testing.T) {
	client := NewOpenAITTSClient(OpenAITTSConfig{
		APIKey: "test-key",
	})

	_, err := client.Synthesize(context.Background(), &TTSRequest{
		Text: "",
	})
	if err == nil {
		t.Fatal("expected validation error for empty text")
	}
	if !strings.Contains(err.Error(), "text is required") {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = client.Synthesize(context.Background(), &TTSRequest{
		Text: "<speak><p>Hi</p></speak>",
		SSML: true,
	})
	if err == nil || !strings.Contains(err.Error(), "ssml") {
		t.Fatalf("expected ssml rejection, got %v", err)
	}
}

func TestOpenAITTSEstimateCost(t *testing.T) {
	tests := []struct {
		model string
		chars int
		want  float64
	}{
		{"tts-1-hd", 1000, 0.03},
		{"tts-1", 2000, 0.03},
		{"gpt-4o-mini-tts-2025", 1000, 0.012},
		{"future-model", 1000, 0.015},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			client := NewOpenAITTSClient(OpenAITTSConfig{APIKey: "k", Model: tt.model})
			got := client.EstimateCostUSD(tt.chars)
			if got < tt.want-1e-9 || got > tt.want+1e-9 {
				t.Errorf("EstimateCostUSD(%d) = %f, want %f", tt.chars, got, tt.want)
			}
		})
	}
}

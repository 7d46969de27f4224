package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		container  string
		sampleRate int
	}{
		{
			name:       "mp3 format",
			input:      "mp3_44100_128",
			container:  "mp3",
			sampleRate: 44100,
		},
		{
			name:       "pcm format maps to wav",
			input:      "pcm_16000",
			container:  "wav",
			sampleRate: 16000,
		},
		{
			name:       "legacy mp3",
			input:      "mp3",
			container:  "mp3",
			sampleRate: 0,
		},
		{
			name:       "empty defaults",
			input:      "",
			container:  "mp3",
			sampleRate: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			container, sampleRate := parseOutputFormat(tt.input)
			if container != tt.container {
				t.Fatalf("expected container=%q, got %q", tt.container, container)
			}
			if sampleRate != tt.sampleRate {
				t.Fatalf("expected sampleRate=%d, got %d", tt.sampleRate, sampleRate)
			}
		})
	}
}

func TestElevenLabsSynthesize(t *testing.T) {
	var payload elevenLabsTTSRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/text-to-speech/voice-1/with-timestamps" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("output_format"); got != "mp3_44100_128" {
			t.Errorf("unexpected output_format: %q", got)
		}
		if r.Header.Get("xi-api-key") != "xi-test" {
			t.Errorf("missing api key header")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("unmarshal body: %v", err)
		}
		w.Header().Set("request-id", "req-42")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"audio_base64": base64.StdEncoding.EncodeToString([]byte("mp3-bytes")),
			"alignment": map[string]any{
				"characters":                    []string{"H", "i", " ", "y", "o", "u"},
				"character_start_times_seconds": []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5},
				"character_end_times_seconds":   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.75},
			},
		})
	}))
	defer server.Close()

	client := NewElevenLabsTTSClient(ElevenLabsTTSConfig{
		APIKey:  "xi-test",
		Voice:   "voice-1",
		Speed:   1.1,
		BaseURL: server.URL,
	})

	result, err := client.Synthesize(context.Background(), &TTSRequest{
		Text:         "Hi you",
		PreviousText: "Before.",
		NextText:     "After.",
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(result.Audio) != "mp3-bytes" || result.RequestID != "req-42" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Format != "mp3" || result.SampleRate != 44100 {
		t.Errorf("unexpected format %s/%d", result.Format, result.SampleRate)
	}
	if result.DurationMS != 750 {
		t.Errorf("expected duration from alignment, got %d", result.DurationMS)
	}
	want := []Mark{{Name: "Hi", TimeMS: 0, Offset: 0}, {Name: "you", TimeMS: 300, Offset: 3}}
	if len(result.Marks) != len(want) {
		t.Fatalf("expected %d marks, got %+v", len(want), result.Marks)
	}
	for i, m := range want {
		if result.Marks[i] != m {
			t.Errorf("mark %d: got %+v, want %+v", i, result.Marks[i], m)
		}
	}
	if payload.Text != "Hi you" || payload.VoiceSettings.Speed != 1.1 {
		t.Errorf("unexpected payload %+v", payload)
	}
	if payload.PreviousText != "Before." || payload.NextText != "After." {
		t.Errorf("expected stitching context, got %+v", payload)
	}
	if result.CostUSD != client.EstimateCostUSD(6) {
		t.Errorf("cost %f does not match estimate", result.CostUSD)
	}
}

func TestElevenLabsBadAudio(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"audio_base64":"%%%"}`))
	}))
	defer server.Close()

	client := NewElevenLabsTTSClient(ElevenLabsTTSConfig{APIKey: "k", Voice: "v", BaseURL: server.URL})
	res, err := client.Synthesize(context.Background(), &TTSRequest{Text: "hi"})
	if err == nil {
		t.Fatal("expected a decode error")
	}
	if res == nil || res.Success || res.CharCount != 2 {
		t.Errorf("unexpected failure result %+v", res)
	}
}

func TestElevenLabsRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"detail":{"status":"too_many_concurrent_requests","message":"slow down"}}`))
	}))
	defer server.Close()

	client := NewElevenLabsTTSClient(ElevenLabsTTSConfig{APIKey: "k", Voice: "v", BaseURL: server.URL})
	_, err := client.Synthesize(context.Background(), &TTSRequest{Text: "hi"})
	rle, ok := IsRateLimitError(err)
	if !ok {
		t.Fatalf("expected RateLimitError, got %T: %v", err, err)
	}
	if rle.RetryAfter != 2*time.Second {
		t.Errorf("expected RetryAfter=2s, got %v", rle.RetryAfter)
	}
}

func TestElevenLabsRequiresVoice(t *testing.T) {
	client := NewElevenLabsTTSClient(ElevenLabsTTSConfig{APIKey: "k"})
	if _, err := client.Synthesize(context.Background(), &TTSRequest{Text: "hi"}); err == nil {
		t.Fatal("expected error without a voice")
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("3"); got != 3*time.Second {
		t.Errorf("seconds: got %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("empty: got %v", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Errorf("garbage: got %v", got)
	}
	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(future); got < 59*time.Minute {
		t.Errorf("http date: got %v", got)
	}
}

package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"
)

const MockTTSName = "mock"

// MockTTS is a TTSProvider for testing. It returns deterministic audio
// bytes derived from the request text.
type MockTTS struct {
	// Configurable behavior
	Latency    time.Duration
	SSML       bool
	PricePerK  float64
	RateLimits int           // Return a RateLimitError for the first N calls
	RetryAfter time.Duration // RetryAfter carried by those errors
	FailText   string        // Fail permanently when the text equals this

	// Rate limiting
	RPS        float64
	Retries    int
	RetryDelay time.Duration

	// State
	calls    atomic.Int64
	mu       sync.Mutex
	requests []TTSRequest
}

// NewMockTTS creates a mock with fast, permissive defaults.
func NewMockTTS() *MockTTS {
	return &MockTTS{
		PricePerK:  0.015,
		RPS:        1000,
		Retries:    3,
		RetryDelay: time.Millisecond,
	}
}

// Name returns the provider identifier.
func (m *MockTTS) Name() string { return MockTTSName }

// SupportsSSML returns the configured SSML flag.
func (m *MockTTS) SupportsSSML() bool { return m.SSML }

// EstimateCostUSD prices chars at PricePerK.
func (m *MockTTS) EstimateCostUSD(chars int) float64 {
	return float64(chars) * m.PricePerK / 1000.0
}

// RequestsPerSecond returns the RPS limit for rate limiting.
func (m *MockTTS) RequestsPerSecond() float64 { return m.RPS }

// MaxConcurrency returns 0 (no provider-specific cap).
func (m *MockTTS) MaxConcurrency() int { return 0 }

// MaxRetries returns the maximum retry attempts.
func (m *MockTTS) MaxRetries() int { return m.Retries }

// RetryDelayBase returns the base delay between retries.
func (m *MockTTS) RetryDelayBase() time.Duration { return m.RetryDelay }

// Synthesize records the request and returns fake audio.
func (m *MockTTS) Synthesize(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()
	n := m.calls.Add(1)

	m.mu.Lock()
	m.requests = append(m.requests, *req)
	m.mu.Unlock()

	if m.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Latency):
		}
	}

	if int(n) <= m.RateLimits {
		return &TTSResult{ErrorMessage: "rate limited"}, &RateLimitError{
			Message:    "mock rate limited",
			RetryAfter: m.RetryAfter,
			StatusCode: 429,
		}
	}
	if m.FailText != "" && req.Text == m.FailText {
		err := fmt.Errorf("mock failure for %q", req.Text)
		return &TTSResult{ErrorMessage: err.Error()}, err
	}

	chars := utf8.RuneCountInString(req.Text)
	duration := EstimateDurationMS(chars)
	var marks []Mark
	if !req.SSML {
		marks = wordMarks(req.Text, duration)
	}
	return &TTSResult{
		Success:       true,
		Audio:         []byte(fmt.Sprintf("AUDIO[%s]", req.Text)),
		DurationMS:    duration,
		Format:        "mp3",
		Marks:         marks,
		CostUSD:       m.EstimateCostUSD(chars),
		CharCount:     chars,
		ExecutionTime: time.Since(start),
		RequestID:     fmt.Sprintf("mock-%d", n),
	}, nil
}

// wordMarks places a mark at the start of every word, timed in proportion
// to its rune offset.
func wordMarks(text string, durationMS int) []Mark {
	runes := []rune(text)
	var marks []Mark
	for i := 0; i < len(runes); i++ {
		if unicode.IsSpace(runes[i]) {
			continue
		}
		j := i
		for j < len(runes) && !unicode.IsSpace(runes[j]) {
			j++
		}
		marks = append(marks, Mark{
			Name:   string(runes[i:j]),
			TimeMS: durationMS * i / len(runes),
			Offset: i,
		})
		i = j
	}
	return marks
}

// CallCount returns the number of Synthesize calls, including failures.
func (m *MockTTS) CallCount() int {
	return int(m.calls.Load())
}

// Requests returns a copy of every request received.
func (m *MockTTS) Requests() []TTSRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TTSRequest(nil), m.requests...)
}

var _ TTSProvider = (*MockTTS)(nil)

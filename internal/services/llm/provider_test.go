package llm

import (
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/comparo/internal/common"
)

func testFactory() *ProviderFactory {
	cfg := common.NewDefaultConfig()
	return NewProviderFactory(&cfg.LLM, &cfg.Gemini, &cfg.Claude, arbor.NewLogger())
}

func TestDetectProvider(t *testing.T) {
	factory := testFactory()

	tests := []struct {
		name     string
		model    string
		expected ProviderType
	}{
		{"empty uses default", "", ProviderGemini},
		{"claude model name", "claude-haiku-3-5-20241022", ProviderClaude},
		{"claude prefix", "claude/claude-sonnet-4", ProviderClaude},
		{"anthropic prefix", "anthropic/claude-sonnet-4", ProviderClaude},
		{"gemini model name", "gemini-2.0-flash", ProviderGemini},
		{"gemini prefix", "gemini/gemini-2.0-flash", ProviderGemini},
		{"google prefix", "google/gemini-2.0-flash", ProviderGemini},
		{"unknown falls back to default", "mistral-7b", ProviderGemini},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := factory.DetectProvider(tt.model); got != tt.expected {
				t.Errorf("DetectProvider(%q) = %s, want %s", tt.model, got, tt.expected)
			}
		})
	}
}

func TestNormalizeModel(t *testing.T) {
	factory := testFactory()

	tests := []struct {
		model    string
		expected string
	}{
		{"claude/claude-sonnet-4", "claude-sonnet-4"},
		{"gemini/gemini-2.0-flash", "gemini-2.0-flash"},
		{"gemini-2.0-flash", "gemini-2.0-flash"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := factory.NormalizeModel(tt.model); got != tt.expected {
			t.Errorf("NormalizeModel(%q) = %q, want %q", tt.model, got, tt.expected)
		}
	}
}

func TestIsRateLimitError(t *testing.T) {
	if IsRateLimitError(nil) {
		t.Error("nil error should not be a rate limit error")
	}

	tests := []struct {
		message string
		want    bool
	}{
		{"Error 429, Message: quota exceeded", true},
		{"Status: RESOURCE_EXHAUSTED", true},
		{"anthropic: overloaded_error", true},
		{"connection refused", false},
	}
	for _, tt := range tests {
		if got := IsRateLimitError(errString(tt.message)); got != tt.want {
			t.Errorf("IsRateLimitError(%q) = %v, want %v", tt.message, got, tt.want)
		}
	}
}

func TestExtractRetryDelay(t *testing.T) {
	err := errString("Error 429, Message: rate limited. Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED")
	delay := ExtractRetryDelay(err)
	if delay < 45*time.Second || delay > 46*time.Second {
		t.Errorf("Expected ~45s delay, got %s", delay)
	}

	if got := ExtractRetryDelay(errString("no delay here")); got != 0 {
		t.Errorf("Expected 0 for message without delay, got %s", got)
	}
}

func TestCalculateBackoffCapsAtMax(t *testing.T) {
	cfg := NewDefaultRetryConfig()

	first := cfg.CalculateBackoff(0, 0)
	if first != cfg.InitialBackoff {
		t.Errorf("Expected first backoff %s, got %s", cfg.InitialBackoff, first)
	}

	// Later attempts grow but never exceed the cap
	for attempt := 1; attempt < 8; attempt++ {
		backoff := cfg.CalculateBackoff(attempt, 0)
		if backoff > cfg.MaxBackoff {
			t.Errorf("Attempt %d backoff %s exceeds max %s", attempt, backoff, cfg.MaxBackoff)
		}
	}

	// API-provided delay is respected with a small buffer
	withDelay := cfg.CalculateBackoff(0, 10*time.Second)
	if withDelay != 15*time.Second {
		t.Errorf("Expected 15s (10s + buffer), got %s", withDelay)
	}
}

type errString string

func (e errString) Error() string { return string(e) }

package llm

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"LLM_PROVIDER", "LLM_MODEL", "LLM_API_KEY", "LLM_API_URL", "LLM_TIMEOUT", "LLM_MAX_RETRIES", "LLM_RETRY_DELAY"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	if cfg.Provider != "" || cfg.Model != "" {
		t.Errorf("expected empty provider/model, got %+v", cfg)
	}
	if cfg.Timeout != 60*time.Second {
		t.Errorf("Timeout = %s, want 60s", cfg.Timeout)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
}

func TestDetectProvider(t *testing.T) {
	cases := map[string]string{
		"https://generativelanguage.googleapis.com/v1beta": "gemini",
		"http://localhost:11434/v1":                        "local",
		"http://127.0.0.1:1234/v1/chat/completions":        "local",
		"https://openrouter.ai/api/v1/chat/completions":    "openai",
		"": "openai",
	}
	for url, want := range cases {
		if got := DetectProvider(url); got != want {
			t.Errorf("DetectProvider(%q) = %q, want %q", url, got, want)
		}
	}
}

func TestNewProvider(t *testing.T) {
	if p, err := NewProvider(Config{APIURL: "https://generativelanguage.googleapis.com/v1beta"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	} else if _, ok := p.(*GeminiProvider); !ok {
		t.Fatalf("expected gemini provider, got %T", p)
	}
	if p, _ := NewProvider(Config{Provider: "local"}); p == nil {
		t.Fatalf("expected local provider")
	} else if _, ok := p.(*LocalProvider); !ok {
		t.Fatalf("expected local provider, got %T", p)
	}
	if _, err := NewProvider(Config{Provider: "bogus"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

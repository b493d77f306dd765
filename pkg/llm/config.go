package llm

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"frameworks/crowsnest/pkg/clients"
	"frameworks/crowsnest/pkg/config"
)

type Config struct {
	Provider string
	Model    string
	APIKey   string
	APIURL   string
	Timeout  time.Duration
	// MaxRetries bounds 429/5xx retries before ErrRateLimited surfaces
	MaxRetries int
	RetryDelay time.Duration
}

func LoadConfig() Config {
	return Config{
		Provider:   config.GetEnv("LLM_PROVIDER", ""),
		Model:      config.GetEnv("LLM_MODEL", ""),
		APIKey:     config.GetEnv("LLM_API_KEY", ""),
		APIURL:     config.GetEnv("LLM_API_URL", ""),
		Timeout:    config.GetEnvDuration("LLM_TIMEOUT", 60*time.Second),
		MaxRetries: config.GetEnvInt("LLM_MAX_RETRIES", 3),
		RetryDelay: config.GetEnvDuration("LLM_RETRY_DELAY", 5*time.Second),
	}
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

func (c Config) retryConfig() clients.HTTPExecutorConfig {
	return clients.HTTPExecutorConfig{
		MaxRetries: c.MaxRetries,
		BaseDelay:  c.RetryDelay,
		MaxDelay:   c.RetryDelay * 8,
		ShouldRetry: func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		},
	}
}

// DetectProvider infers the provider from the endpoint when none is set.
func DetectProvider(apiURL string) string {
	switch {
	case strings.Contains(apiURL, "generativelanguage.googleapis.com"):
		return "gemini"
	case strings.Contains(apiURL, ":11434"), strings.Contains(apiURL, "localhost:1234"), strings.Contains(apiURL, "127.0.0.1:1234"):
		return "local"
	default:
		return "openai"
	}
}

func NewProvider(cfg Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = DetectProvider(cfg.APIURL)
	}
	switch name {
	case "openai", "openrouter":
		return NewOpenAIProvider(cfg), nil
	case "ollama", "local":
		return NewLocalProvider(cfg), nil
	case "gemini":
		return NewGeminiProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

package llm

import (
	"context"
	"strings"
	"time"
)

const (
	// DefaultLocalURL is LM Studio's default server address.
	DefaultLocalURL   = "http://localhost:1234/v1"
	defaultLocalModel = "local-model"
	minLocalTimeout   = 2 * time.Minute
)

// LocalProvider talks to a self-hosted OpenAI-compatible server (LM Studio,
// Ollama, llama.cpp). Credentials are never sent and CPU inference gets a
// longer deadline.
type LocalProvider struct {
	openai *OpenAIProvider
}

func NewLocalProvider(cfg Config) *LocalProvider {
	if strings.TrimSpace(cfg.APIURL) == "" {
		cfg.APIURL = DefaultLocalURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultLocalModel
	}
	if cfg.Timeout < minLocalTimeout {
		cfg.Timeout = minLocalTimeout
	}
	cfg.APIKey = ""
	return &LocalProvider{openai: NewOpenAIProvider(cfg)}
}

func (p *LocalProvider) Complete(ctx context.Context, messages []Message) (Stream, error) {
	return p.openai.Complete(ctx, messages)
}

package rewrite

import (
	"context"
	"errors"
	"strings"
	"time"

	"frameworks/crowsnest/internal/config"
	"frameworks/crowsnest/pkg/cache"
	"frameworks/crowsnest/pkg/llm"
)

// ErrMissingAPIKey is returned for cloud mode without a key.
var ErrMissingAPIKey = errors.New("rewrite: API key not configured for cloud mode")

// ProviderSource turns the current settings into a model client.
type ProviderSource interface {
	Provider(settings config.Settings) (llm.Provider, error)
}

// SettingsProviders builds providers from settings on top of base and
// reuses them while the relevant settings are unchanged.
type SettingsProviders struct {
	base  llm.Config
	cache *cache.Cache[llm.Provider]
}

func NewSettingsProviders(base llm.Config) *SettingsProviders {
	return &SettingsProviders{
		base:  base,
		cache: cache.New[llm.Provider](cache.Options{TTL: 30 * time.Minute, MaxEntries: 8}, cache.MetricsHooks{}),
	}
}

// LLMConfig maps settings onto a provider configuration. Environment
// overrides in base win over settings.
func (p *SettingsProviders) LLMConfig(settings config.Settings) (llm.Config, error) {
	cfg := p.base
	if cfg.Model == "" {
		cfg.Model = settings.Model
	}
	if cfg.APIURL != "" {
		return cfg, nil
	}
	if settings.AISource == config.AISourceLocal {
		cfg.APIURL = settings.LocalAIURL
		if cfg.Provider == "" {
			cfg.Provider = "local"
		}
		return cfg, nil
	}
	cfg.APIURL = settings.CloudAPIURL
	if cfg.APIKey == "" {
		cfg.APIKey = settings.APIKey
	}
	if cfg.APIKey == "" {
		return llm.Config{}, ErrMissingAPIKey
	}
	return cfg, nil
}

func (p *SettingsProviders) Provider(settings config.Settings) (llm.Provider, error) {
	cfg, err := p.LLMConfig(settings)
	if err != nil {
		return nil, err
	}
	key := strings.Join([]string{cfg.Provider, cfg.APIURL, cfg.Model, cfg.APIKey}, "|")
	return p.cache.Get(context.Background(), key, func(context.Context, string) (llm.Provider, error) {
		return llm.NewProvider(cfg)
	})
}

package rewrite

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"frameworks/crowsnest/internal/config"
	"frameworks/crowsnest/pkg/llm"
	"frameworks/crowsnest/pkg/logging"
)

const (
	defaultTimeout  = 90 * time.Second
	sideCallTimeout = 30 * time.Second
	maxTopics       = 3
	maxTopicRunes   = 30
	maxKeywordRunes = 25
)

// ErrRateLimited means the model kept refusing with 429. Callers fall back
// to the summarizer for the current article.
var ErrRateLimited = errors.New("rewrite: rate limited")

var whitespaceRe = regexp.MustCompile(`\s+`)

type Config struct {
	Providers ProviderSource
	Timeout   time.Duration
	Logger    logging.Logger
}

// Service wraps the model calls used by the news pipeline.
type Service struct {
	providers ProviderSource
	timeout   time.Duration
	logger    logging.Logger
}

func NewService(cfg Config) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	return &Service{providers: cfg.Providers, timeout: cfg.Timeout, logger: cfg.Logger}
}

// Rewrite asks the model for a post built from title and content.
func (s *Service) Rewrite(ctx context.Context, settings config.Settings, title, content string) (string, error) {
	text, err := s.complete(ctx, settings, s.timeout, []llm.Message{
		{Role: "system", Content: rewriteSystemPrompt},
		{Role: "user", Content: buildRewritePrompt(title, content)},
	})
	if err != nil {
		if errors.Is(err, llm.ErrRateLimited) {
			return "", fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return "", fmt.Errorf("rewrite: %w", err)
	}
	if text == "" {
		return "", errors.New("rewrite: model returned empty content")
	}
	return text, nil
}

// Classify returns up to three topics. Failures yield nil.
func (s *Service) Classify(ctx context.Context, settings config.Settings, text string) []string {
	raw, err := s.complete(ctx, settings, sideCallTimeout, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(classifyTemplate, text)},
	})
	if err != nil {
		s.logger.WithError(err).Warn("Topic classification failed")
		return nil
	}
	topics := splitList(raw, maxTopicRunes)
	if len(topics) > maxTopics {
		topics = topics[:maxTopics]
	}
	return topics
}

// Keywords returns up to n hashtags without spaces. Failures yield nil.
func (s *Service) Keywords(ctx context.Context, settings config.Settings, text string, n int) []string {
	if n <= 0 {
		n = 5
	}
	raw, err := s.complete(ctx, settings, sideCallTimeout, []llm.Message{
		{Role: "user", Content: fmt.Sprintf(keywordsTemplate, n, text)},
	})
	if err != nil {
		s.logger.WithError(err).Warn("Keyword extraction failed")
		return nil
	}
	var tags []string
	for _, k := range splitList(raw, maxKeywordRunes) {
		tags = append(tags, "#"+whitespaceRe.ReplaceAllString(k, ""))
		if len(tags) == n {
			break
		}
	}
	return tags
}

func (s *Service) complete(ctx context.Context, settings config.Settings, timeout time.Duration, msgs []llm.Message) (string, error) {
	if s.providers == nil {
		return "", errors.New("LLM provider not configured")
	}
	provider, err := s.providers.Provider(settings)
	if err != nil {
		return "", err
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return llm.Collect(callCtx, provider, msgs)
}

// splitList parses a comma separated model answer, keeping items shorter
// than maxRunes.
func splitList(raw string, maxRunes int) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if n := len([]rune(item)); n > 0 && n < maxRunes {
			out = append(out, item)
		}
	}
	return out
}

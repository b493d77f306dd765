package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"frameworks/crowsnest/internal/config"
	"frameworks/crowsnest/internal/crawler"
	"frameworks/crowsnest/internal/dedup"
	"frameworks/crowsnest/internal/logsink"
	"frameworks/crowsnest/internal/metrics"
	"frameworks/crowsnest/internal/queue"
	"frameworks/crowsnest/internal/rewrite"
	"frameworks/crowsnest/pkg/logging"
)

const (
	maxParagraphs   = 5
	minContentRunes = 100
	maxImages       = 5
	keywordCount    = 5
	overlayWorkers  = 3
)

// Status is the terminal state of one candidate.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusSkipped Status = "skipped"
	StatusErrored Status = "errored"
)

// Skip reasons.
const (
	ReasonStopped     = "stopped"
	ReasonInvalidText = "invalid_format"
	ReasonEmptyText   = "empty_text"
	ReasonNoMedia     = "no_media"
	ReasonRewrite     = "rewrite_failed"
)

var errStopped = errors.New("stop requested")

type Result struct {
	Status Status
	Reason string
	Post   *queue.Post
}

// ContentFetcher returns article body text, paragraphs separated by blank lines.
type ContentFetcher interface {
	FetchContent(ctx context.Context, link string) (string, error)
}

type Rewriter interface {
	Rewrite(ctx context.Context, settings config.Settings, title, content string) (string, error)
	Classify(ctx context.Context, settings config.Settings, text string) []string
	Keywords(ctx context.Context, settings config.Settings, text string, n int) []string
}

// Overlayer brands one image and returns encoded PNG bytes.
type Overlayer interface {
	Overlay(ctx context.Context, source, logoPath string) ([]byte, error)
}

// Admitter receives finished posts.
type Admitter interface {
	Push(p queue.Post) queue.Post
	Len() int
}

type Events interface {
	Publish(ctx context.Context, typ string, content any)
}

type Config struct {
	Content   ContentFetcher
	Rewriter  Rewriter
	Summarize func(title, content string) string
	Overlay   Overlayer
	Dedup     *dedup.Engine
	Queue     Admitter
	Events    Events
	Logger    logging.Logger
}

// Pipeline turns an accepted candidate into a queued post.
type Pipeline struct {
	content   ContentFetcher
	rewriter  Rewriter
	summarize func(title, content string) string
	overlay   Overlayer
	dedup     *dedup.Engine
	queue     Admitter
	events    Events
	logger    logging.Logger
}

func New(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	return &Pipeline{
		content:   cfg.Content,
		rewriter:  cfg.Rewriter,
		summarize: cfg.Summarize,
		overlay:   cfg.Overlay,
		dedup:     cfg.Dedup,
		queue:     cfg.Queue,
		events:    cfg.Events,
		logger:    cfg.Logger,
	}
}

// Process runs one candidate that already passed the pre-transform gates.
// running is consulted before the model calls, again once they return,
// and before image processing.
func (p *Pipeline) Process(ctx context.Context, cycle *dedup.Cycle, settings config.Settings, c crawler.Candidate, running func() bool) Result {
	log := p.logger.WithFields(logging.Fields{"link": c.Link, "title": c.Title})

	content := p.articleText(ctx, c)

	if stopped(running) {
		log.Warn("Stop requested, skipping model calls")
		return Result{Status: StatusSkipped, Reason: ReasonStopped}
	}

	rewritten, topics, hashtags, err := p.rewrite(ctx, settings, c.Title, content, running, log)
	if errors.Is(err, errStopped) {
		log.Warn("Stop requested after rewrite, dropping article")
		return Result{Status: StatusSkipped, Reason: ReasonStopped}
	}
	if err != nil {
		log.WithError(err).Error("Rewrite failed, skipping article")
		return Result{Status: StatusErrored, Reason: ReasonRewrite}
	}
	if strings.TrimSpace(rewritten) == "" {
		log.Warn("Rewrite produced no text, skipping article")
		return Result{Status: StatusSkipped, Reason: ReasonEmptyText}
	}

	text, ok := Format(PostProcess(rewritten))
	if !ok {
		log.Warn("Rewritten text does not fit the post layout, skipping")
		return Result{Status: StatusSkipped, Reason: ReasonInvalidText}
	}
	if tags := FormatHashtags(hashtags); tags != "" {
		text += "\n\n" + tags
	}

	if stopped(running) {
		log.Warn("Stop requested, skipping image processing")
		return Result{Status: StatusSkipped, Reason: ReasonStopped}
	}

	media, primary := p.processImages(ctx, cycle, settings.LogoPath, c.Images, log)
	if len(media) == 0 {
		log.Warn("No usable image survived processing, skipping")
		return Result{Status: StatusSkipped, Reason: ReasonNoMedia}
	}

	post := p.queue.Push(queue.Post{
		Content:   text,
		Media:     media,
		Link:      c.Link,
		Title:     c.Title,
		ImageHash: primary,
		Topics:    topics,
		Hashtags:  hashtags,
		RawImages: c.Images,
	})
	log.WithFields(logging.Fields{
		"queue_len":         p.queue.Len(),
		logsink.FieldStatus: logsink.LevelSuccess,
	}).Info("Article queued for publishing")
	if p.events != nil {
		p.events.Publish(ctx, logsink.TypeNewContent, map[string]any{
			"title":     c.Title,
			"rewritten": text,
			"images":    c.Images,
			"link":      c.Link,
		})
	}
	return Result{Status: StatusQueued, Post: &post}
}

func (p *Pipeline) articleText(ctx context.Context, c crawler.Candidate) string {
	var content string
	if p.content != nil {
		text, err := p.content.FetchContent(ctx, c.Link)
		if err != nil {
			p.logger.WithError(err).WithField("link", c.Link).Warn("Article content fetch failed, using title")
		}
		content = strings.TrimSpace(TruncateParagraphs(text, maxParagraphs))
	}
	if len([]rune(content)) < minContentRunes {
		return c.Title
	}
	return content
}

func stopped(running func() bool) bool {
	return running != nil && !running()
}

func (p *Pipeline) rewrite(ctx context.Context, settings config.Settings, title, content string, running func() bool, log *logging.Entry) (string, []string, []string, error) {
	if !settings.AIEnabled() || p.rewriter == nil {
		metrics.RewritesTotal.WithLabelValues(config.RewriteModeManual, "ok").Inc()
		return p.summarize(title, content), nil, nil, nil
	}

	text, err := p.rewriter.Rewrite(ctx, settings, title, content)
	switch {
	case errors.Is(err, rewrite.ErrRateLimited):
		log.WithError(err).Warn("Model rate limited, falling back to the summarizer")
		metrics.RewritesTotal.WithLabelValues(config.RewriteModeAI, "rate_limited").Inc()
		return p.summarize(title, content), nil, nil, nil
	case err != nil:
		metrics.RewritesTotal.WithLabelValues(config.RewriteModeAI, "error").Inc()
		return "", nil, nil, fmt.Errorf("ai rewrite: %w", err)
	}
	metrics.RewritesTotal.WithLabelValues(config.RewriteModeAI, "ok").Inc()
	if stopped(running) {
		return "", nil, nil, errStopped
	}

	topics := p.rewriter.Classify(ctx, settings, title+"\n\n"+content)
	hashtags := p.rewriter.Keywords(ctx, settings, text, keywordCount)
	return text, topics, hashtags, nil
}

// processImages overlays up to five images concurrently, then applies the
// post-transform gate in source order so the first survivor is primary.
func (p *Pipeline) processImages(ctx context.Context, cycle *dedup.Cycle, logoPath string, sources []string, log *logging.Entry) ([]queue.MediaItem, string) {
	if len(sources) > maxImages {
		sources = sources[:maxImages]
	}
	if len(sources) == 0 || p.overlay == nil {
		return nil, ""
	}

	encoded := make([][]byte, len(sources))
	var g errgroup.Group
	g.SetLimit(overlayWorkers)
	for i, src := range sources {
		g.Go(func() error {
			data, err := p.overlay.Overlay(ctx, src, logoPath)
			if err != nil {
				log.WithError(err).WithField("image", src).Warn("Image processing failed, dropping image")
				metrics.ImagesTotal.WithLabelValues("failed").Inc()
				return nil
			}
			encoded[i] = data
			return nil
		})
	}
	_ = g.Wait()

	var media []queue.MediaItem
	primary := ""
	for i, data := range encoded {
		if len(data) == 0 {
			continue
		}
		hash := dedup.HashBytes(data)
		if p.dedup != nil && !p.dedup.ClaimProcessedImage(cycle, hash, primary == "") {
			log.WithField("image", sources[i]).Warn("Processed image already posted or queued, dropping image")
			metrics.ImagesTotal.WithLabelValues("duplicate").Inc()
			continue
		}
		if primary == "" {
			primary = hash
		}
		metrics.ImagesTotal.WithLabelValues("kept").Inc()
		media = append(media, queue.MediaItem{Data: data, Filename: fmt.Sprintf("image_%d.png", i)})
	}
	return media, primary
}

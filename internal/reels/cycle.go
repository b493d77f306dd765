package reels

import (
	"context"
	"strings"

	"frameworks/crowsnest/internal/config"
	"frameworks/crowsnest/internal/logsink"
	"frameworks/crowsnest/internal/logstore"
	"frameworks/crowsnest/internal/metrics"
	"frameworks/crowsnest/internal/pipeline"
	"frameworks/crowsnest/internal/queue"
	"frameworks/crowsnest/pkg/logging"
)

const (
	// VideoFilename routes queued clips through the video upload endpoint.
	VideoFilename = "video.mp4"
	keywordCount  = 5
)

type VideoSource interface {
	Find(ctx context.Context, sources []string) []Video
	Download(ctx context.Context, v Video) ([]byte, error)
}

// Tagger derives topics and hashtags; both are best-effort.
type Tagger interface {
	Classify(ctx context.Context, settings config.Settings, text string) []string
	Keywords(ctx context.Context, settings config.Settings, text string, n int) []string
}

type Admitter interface {
	Push(p queue.Post) queue.Post
	Len() int
}

type Events interface {
	Publish(ctx context.Context, typ string, content any)
}

type Config struct {
	Settings config.Provider
	Log      logstore.Store
	Videos   VideoSource
	Tagger   Tagger
	Queue    Admitter
	Events   Events
	Logger   logging.Logger
	// Threshold defaults to logstore.DefaultTitleThreshold.
	Threshold float64
}

// Cycle is one pass over the video sources.
type Cycle struct {
	settings  config.Provider
	log       logstore.Store
	videos    VideoSource
	tagger    Tagger
	queue     Admitter
	events    Events
	logger    logging.Logger
	threshold float64
}

func New(cfg Config) *Cycle {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = logstore.DefaultTitleThreshold
	}
	return &Cycle{
		settings:  cfg.Settings,
		log:       cfg.Log,
		videos:    cfg.Videos,
		tagger:    cfg.Tagger,
		queue:     cfg.Queue,
		events:    cfg.Events,
		logger:    cfg.Logger,
		threshold: cfg.Threshold,
	}
}

// Run matches controller.CycleFunc.
func (c *Cycle) Run(ctx context.Context, running func() bool) {
	c.RunOnce(ctx, running)
}

// RunOnce queues every new video and returns how many were admitted.
func (c *Cycle) RunOnce(ctx context.Context, running func() bool) int {
	log := c.logger.WithField(logsink.FieldSource, "reels")

	settings, err := c.settings.Load()
	if err != nil {
		log.WithError(err).Error("Video cycle: cannot read settings")
		return 0
	}
	log.Info("Video cycle: starting")

	entries, err := c.log.Load(ctx)
	if err != nil {
		log.WithError(err).Warn("Video cycle: cannot read publish log, continuing with empty history")
		entries = nil
	}

	videos := c.videos.Find(ctx, settings.VideoSources)
	if len(videos) == 0 {
		log.Info("Video cycle: no new videos found")
	}

	seen := make(map[string]struct{})
	queued := 0
	for _, v := range videos {
		if !running() || ctx.Err() != nil {
			log.Warn("Video cycle: stop requested, finishing early")
			break
		}
		if c.admit(ctx, settings, entries, seen, v) {
			queued++
		}
	}
	log.WithField("queued", queued).Info("Video cycle: done")
	return queued
}

func (c *Cycle) admit(ctx context.Context, settings config.Settings, entries []logstore.Entry, seen map[string]struct{}, v Video) bool {
	log := c.logger.WithFields(logging.Fields{
		logsink.FieldSource: "reels",
		"title":             v.Title,
		"link":              v.Link,
	})

	if _, dup := seen[v.Link]; dup || logstore.IsLinkPosted(v.Link, entries) || logstore.IsTitleSimilar(v.Title, entries, c.threshold) {
		metrics.CandidatesTotal.WithLabelValues("reels", "rejected").Inc()
		log.Info("Video cycle: already handled, skipping")
		return false
	}
	seen[v.Link] = struct{}{}

	data, err := c.videos.Download(ctx, v)
	if err != nil {
		metrics.CandidatesTotal.WithLabelValues("reels", "errored").Inc()
		log.WithError(err).Error("Video cycle: download failed")
		return false
	}

	var topics, hashtags []string
	if c.tagger != nil && settings.AIEnabled() {
		text := "Tiêu đề: " + v.Title + "\nMô tả: " + v.Description
		topics = c.tagger.Classify(ctx, settings, text)
		hashtags = c.tagger.Keywords(ctx, settings, text, keywordCount)
	}
	caption := Caption(v.Title, v.Description, hashtags)

	post := c.queue.Push(queue.Post{
		Content:  caption,
		Media:    []queue.MediaItem{{Data: data, Filename: VideoFilename}},
		Link:     v.Link,
		Title:    v.Title,
		Topics:   topics,
		Hashtags: hashtags,
	})
	metrics.CandidatesTotal.WithLabelValues("reels", "queued").Inc()
	log.WithFields(logging.Fields{
		"post":              post.ID,
		"queue_len":         c.queue.Len(),
		logsink.FieldStatus: logsink.LevelSuccess,
	}).Info("Video cycle: video queued for publishing")

	if c.events != nil {
		c.events.Publish(ctx, logsink.TypeNewVideoContent, map[string]string{
			"title":   v.Title,
			"caption": caption,
			"link":    v.Link,
		})
	}
	return true
}

// Caption is the reel text: headline, description, then hashtags.
func Caption(title, description string, hashtags []string) string {
	var b strings.Builder
	b.WriteString("🔥 ")
	b.WriteString(strings.TrimSpace(title))
	if d := strings.TrimSpace(description); d != "" {
		b.WriteString("\n\n")
		b.WriteString(d)
	}
	if tags := pipeline.FormatHashtags(hashtags); tags != "" {
		b.WriteString("\n\n")
		b.WriteString(tags)
	}
	return b.String()
}

// Package news runs one crawl pass over the article sources and feeds
// every surviving candidate through the content pipeline.
package news

import (
	"context"
	"strings"
	"time"

	"frameworks/crowsnest/internal/config"
	"frameworks/crowsnest/internal/crawler"
	"frameworks/crowsnest/internal/dedup"
	"frameworks/crowsnest/internal/logsink"
	"frameworks/crowsnest/internal/logstore"
	"frameworks/crowsnest/internal/metrics"
	"frameworks/crowsnest/internal/pipeline"
	"frameworks/crowsnest/pkg/logging"
)

const (
	defaultCandidateDelay = 5 * time.Second
	trendDays             = 2
	trendTop              = 5
)

type Crawler interface {
	Crawl(ctx context.Context, sources []string) []crawler.Candidate
	FetchImages(ctx context.Context, link string) []string
}

type Checker interface {
	Check(ctx context.Context, cycle *dedup.Cycle, c crawler.Candidate) dedup.Decision
}

type Processor interface {
	Process(ctx context.Context, cycle *dedup.Cycle, settings config.Settings, c crawler.Candidate, running func() bool) pipeline.Result
}

type Config struct {
	Settings config.Provider
	Log      logstore.Store
	Crawler  Crawler
	Dedup    Checker
	Pipeline Processor
	// CandidateDelay is the pause between two candidates.
	CandidateDelay time.Duration
	Logger         logging.Logger
	Now            func() time.Time
}

// Cycle is the news crawl pass.
type Cycle struct {
	settings       config.Provider
	log            logstore.Store
	crawler        Crawler
	dedup          Checker
	pipeline       Processor
	candidateDelay time.Duration
	logger         logging.Logger
	now            func() time.Time
}

// Summary counts what one pass did.
type Summary struct {
	Candidates int
	Queued     int
	Rejected   int
	Skipped    int
	Errored    int
	Stopped    bool
}

func New(cfg Config) *Cycle {
	if cfg.CandidateDelay <= 0 {
		cfg.CandidateDelay = defaultCandidateDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cycle{
		settings:       cfg.Settings,
		log:            cfg.Log,
		crawler:        cfg.Crawler,
		dedup:          cfg.Dedup,
		pipeline:       cfg.Pipeline,
		candidateDelay: cfg.CandidateDelay,
		logger:         cfg.Logger,
		now:            cfg.Now,
	}
}

// Run matches controller.CycleFunc.
func (c *Cycle) Run(ctx context.Context, running func() bool) {
	c.RunOnce(ctx, running)
}

// RunOnce crawls every configured source and processes candidates one at a
// time. Per-article failures never abort the pass.
func (c *Cycle) RunOnce(ctx context.Context, running func() bool) Summary {
	var sum Summary
	log := c.logger.WithField(logsink.FieldSource, "news")

	settings, err := c.settings.Load()
	if err != nil {
		log.WithError(err).Error("Crawl cycle: cannot read settings")
		return sum
	}
	log.Info("Crawl cycle: starting")

	entries, err := c.log.Load(ctx)
	if err != nil {
		log.WithError(err).Warn("Crawl cycle: cannot read publish log, continuing with empty history")
		entries = nil
	}
	c.reportTrends(entries, log)

	candidates := c.crawler.Crawl(ctx, settings.Sources)
	sum.Candidates = len(candidates)
	if len(candidates) == 0 {
		log.Warn("Crawl cycle: no articles found")
		return sum
	}
	log.WithField("candidates", len(candidates)).Info("Crawl cycle: articles found")

	cycle := dedup.NewCycle(entries)
	cycle.Running = running
	for i, cand := range candidates {
		if !running() || ctx.Err() != nil {
			log.Warn("Crawl cycle: stop requested, leaving the remaining articles")
			sum.Stopped = true
			return sum
		}

		c.process(ctx, cycle, settings, cand, running, &sum)

		if i < len(candidates)-1 && !c.sleep(ctx) {
			sum.Stopped = true
			return sum
		}
	}
	log.WithFields(logging.Fields{
		"queued":   sum.Queued,
		"rejected": sum.Rejected,
		"skipped":  sum.Skipped,
		"errored":  sum.Errored,
	}).Info("Crawl cycle: done")
	return sum
}

func (c *Cycle) process(ctx context.Context, cycle *dedup.Cycle, settings config.Settings, cand crawler.Candidate, running func() bool, sum *Summary) {
	cand.Title = strings.TrimSpace(cand.Title)
	cand.Link = strings.TrimSpace(cand.Link)
	log := c.logger.WithFields(logging.Fields{
		logsink.FieldSource: "news",
		"title":             cand.Title,
		"link":              cand.Link,
	})

	if cand.Link != "" {
		found := c.crawler.FetchImages(ctx, cand.Link)
		cand.Images = crawler.Unique(append(append([]string(nil), cand.Images...), found...))
	}

	decision := c.dedup.Check(ctx, cycle, cand)
	if decision.Reason == dedup.ReasonStopped {
		log.Warn("Crawl cycle: stop requested during image checks")
		sum.Stopped = true
		return
	}
	if decision.Reason != dedup.ReasonIncomplete {
		cycle.MarkSeen(cand.Link)
	}
	if !decision.Accepted {
		sum.Rejected++
		metrics.DedupRejectionsTotal.WithLabelValues(string(decision.Reason)).Inc()
		metrics.CandidatesTotal.WithLabelValues("news", "rejected").Inc()
		entry := log.WithField("reason", decision.Reason)
		if decision.Detail != "" {
			entry = entry.WithField("image", decision.Detail)
		}
		entry.Info("Crawl cycle: duplicate, skipping")
		return
	}

	res := c.pipeline.Process(ctx, cycle, settings, cand, running)
	switch res.Status {
	case pipeline.StatusQueued:
		sum.Queued++
	case pipeline.StatusErrored:
		sum.Errored++
	default:
		sum.Skipped++
		if res.Reason == pipeline.ReasonStopped {
			sum.Stopped = true
		}
	}
	metrics.CandidatesTotal.WithLabelValues("news", string(res.Status)).Inc()
}

func (c *Cycle) reportTrends(entries []logstore.Entry, log *logging.Entry) {
	trends := logstore.TrendingTopics(entries, c.now(), trendDays, trendTop)
	if len(trends) == 0 {
		return
	}
	parts := make([]string, 0, len(trends))
	for _, t := range trends {
		parts = append(parts, t.Topic)
	}
	log.WithFields(logging.Fields{
		"days":   trendDays,
		"topics": trends,
	}).Infof("Hot topics: %s", strings.Join(parts, ", "))
}

// sleep waits the inter-candidate delay and reports false when ctx ended.
func (c *Cycle) sleep(ctx context.Context) bool {
	timer := time.NewTimer(c.candidateDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

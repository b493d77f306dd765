// Package autopost assembles the news and reels loops into one embeddable
// service. cmd/crowsnest is a thin process around it.
package autopost

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"frameworks/crowsnest/internal/config"
	"frameworks/crowsnest/internal/controller"
	"frameworks/crowsnest/internal/crawler"
	"frameworks/crowsnest/internal/dedup"
	"frameworks/crowsnest/internal/facebook"
	"frameworks/crowsnest/internal/handlers"
	"frameworks/crowsnest/internal/imaging"
	"frameworks/crowsnest/internal/logsink"
	"frameworks/crowsnest/internal/logstore"
	"frameworks/crowsnest/internal/metrics"
	"frameworks/crowsnest/internal/news"
	"frameworks/crowsnest/internal/pipeline"
	"frameworks/crowsnest/internal/queue"
	"frameworks/crowsnest/internal/reels"
	"frameworks/crowsnest/internal/rewrite"
	"frameworks/crowsnest/internal/runstate"
	"frameworks/crowsnest/internal/scheduler"
	"frameworks/crowsnest/internal/summarizer"
	"frameworks/crowsnest/pkg/clients"
	"frameworks/crowsnest/pkg/llm"
	"frameworks/crowsnest/pkg/logging"
)

// Options carries the process-level pieces the service cannot build itself.
type Options struct {
	Config config.Config
	Logger logging.Logger
	// DB switches both publish logs to Postgres when set.
	DB *sql.DB
	// Sink receives typed events; nil drops them.
	Sink logsink.Sink
	// LLM is the base model config; zero value means llm.LoadConfig().
	LLM *llm.Config
	// GraphBaseURL overrides the Facebook Graph endpoint, mostly for tests.
	GraphBaseURL string
	// HTTPClient replaces the pooled client for every outbound fetch.
	HTTPClient *http.Client
}

// Service owns both queues and their loops.
type Service struct {
	cfg    config.Config
	logger logging.Logger

	Settings *config.SettingsStore

	NewsQueue  *queue.Queue
	ReelsQueue *queue.Queue
	NewsState  *runstate.State
	ReelsState *runstate.State
	NewsLog    logstore.Store
	ReelsLog   logstore.Store

	News  *controller.Controller
	Reels *controller.Controller

	NewsScheduler  *scheduler.Scheduler
	ReelsScheduler *scheduler.Scheduler
}

func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	cfg := opts.Config
	base := llm.LoadConfig()
	if opts.LLM != nil {
		base = *opts.LLM
	}

	settings := config.NewSettingsStore(cfg.SettingsPath, logger)
	fetcher := clients.NewFetcher(clients.FetcherConfig{
		Timeout: cfg.FetchTimeout,
		Client:  opts.HTTPClient,
		Executor: clients.HTTPExecutorConfig{
			MaxRetries: 2,
			BaseDelay:  500 * time.Millisecond,
			MaxDelay:   5 * time.Second,
		},
	})

	s := &Service{
		cfg:        cfg,
		logger:     logger,
		Settings:   settings,
		NewsQueue:  queue.New(),
		ReelsQueue: queue.New(),
		NewsState:  runstate.New(),
		ReelsState: runstate.New(),
	}
	s.NewsLog, s.ReelsLog = publishLogs(cfg, opts.DB, logger)

	newsEvents := logsink.NewPublisher(opts.Sink, "news", logger)
	reelsEvents := logsink.NewPublisher(opts.Sink, "reels", logger)

	crawl := crawler.New(crawler.Config{Fetcher: fetcher, Logger: logger})
	engine := dedup.NewEngine(dedup.Config{Fetcher: fetcher, Claims: s.NewsQueue, Logger: logger})
	rewriter := rewrite.NewService(rewrite.Config{
		Providers: rewrite.NewSettingsProviders(base),
		Logger:    logger,
	})

	process := pipeline.New(pipeline.Config{
		Content:   crawl,
		Rewriter:  rewriter,
		Summarize: summarizer.Summarize,
		Overlay:   imaging.New(imaging.Config{Fetcher: fetcher, Logger: logger}),
		Dedup:     engine,
		Queue:     s.NewsQueue,
		Events:    newsEvents,
		Logger:    logger,
	})
	newsCycle := news.New(news.Config{
		Settings:       settings,
		Log:            s.NewsLog,
		Crawler:        crawl,
		Dedup:          engine,
		Pipeline:       process,
		CandidateDelay: cfg.CandidateDelay,
		Logger:         logger,
	})
	reelsCycle := reels.New(reels.Config{
		Settings: settings,
		Log:      s.ReelsLog,
		Videos:   reels.NewFinder(reels.FinderConfig{Fetcher: fetcher, Logger: logger}),
		Tagger:   rewriter,
		Queue:    s.ReelsQueue,
		Events:   reelsEvents,
		Logger:   logger,
	})

	graph := facebook.NewClient(facebook.Config{
		BaseURL: opts.GraphBaseURL,
		Logger:  logger,
		Client:  opts.HTTPClient,
	})
	s.NewsScheduler = scheduler.New(scheduler.Config{
		Profile:   scheduler.NewsProfile,
		Queue:     s.NewsQueue,
		State:     s.NewsState,
		Settings:  settings,
		Publisher: graph,
		Log:       s.NewsLog,
		Events:    newsEvents,
		Logger:    logger,
	})
	s.ReelsScheduler = scheduler.New(scheduler.Config{
		Profile:   scheduler.ReelsProfile,
		Queue:     s.ReelsQueue,
		State:     s.ReelsState,
		Settings:  settings,
		Publisher: graph,
		Log:       s.ReelsLog,
		Events:    reelsEvents,
		Logger:    logger,
	})

	s.News = controller.New(controller.Config{
		Kind:        "news",
		State:       s.NewsState,
		Cycle:       newsCycle.Run,
		Delay:       s.delay(config.Settings.CrawlDelay),
		Scheduler:   s.NewsScheduler,
		Events:      newsEvents,
		StatusEvent: logsink.TypeStatus,
		Logger:      logger,
	})
	s.Reels = controller.New(controller.Config{
		Kind:        "reels",
		State:       s.ReelsState,
		Cycle:       reelsCycle.Run,
		Delay:       s.delay(config.Settings.VideoCrawlDelay),
		Scheduler:   s.ReelsScheduler,
		Events:      reelsEvents,
		StatusEvent: logsink.TypeReelsStatus,
		Logger:      logger,
	})

	metrics.RegisterQueueDepth("news", s.NewsQueue.Len)
	metrics.RegisterQueueDepth("reels", s.ReelsQueue.Len)
	return s
}

func publishLogs(cfg config.Config, db *sql.DB, logger logging.Logger) (logstore.Store, logstore.Store) {
	if db != nil {
		return logstore.NewSQLStore(db, "news", logger), logstore.NewSQLStore(db, "reels", logger)
	}
	return logstore.NewFileStore(cfg.LogPath, logger), logstore.NewFileStore(cfg.ReelsLogPath, logger)
}

// delay reads the crawl delay from the settings file on every call so
// operator changes apply to the next wait.
func (s *Service) delay(pick func(config.Settings) time.Duration) func() time.Duration {
	return func() time.Duration {
		settings, err := s.Settings.Load()
		if err != nil {
			s.logger.WithError(err).Warn("Cannot read settings for crawl delay, using defaults")
			settings = config.DefaultSettings()
		}
		return pick(settings)
	}
}

// Handlers builds the HTTP surface. runCtx bounds loops started over HTTP.
func (s *Service) Handlers(runCtx context.Context, ws http.HandlerFunc) *handlers.Handlers {
	return handlers.New(handlers.Config{
		Settings: s.Settings,
		News: handlers.Pipeline{
			Loop:  s.News,
			Queue: s.NewsQueue,
			State: s.NewsState,
			Log:   s.NewsLog,
		},
		Reels: handlers.Pipeline{
			Loop:  s.Reels,
			Queue: s.ReelsQueue,
			State: s.ReelsState,
			Log:   s.ReelsLog,
		},
		WS:         ws,
		LogoDir:    s.cfg.LogoDir,
		RunContext: runCtx,
		Logger:     s.logger,
	})
}

// Register mounts the API on r, guarded by the configured token.
func (s *Service) Register(runCtx context.Context, r gin.IRouter, ws http.HandlerFunc) {
	s.Handlers(runCtx, ws).Register(r, s.cfg.APIToken)
}

// Start launches the news loop, and the reels loop when withReels is set.
func (s *Service) Start(ctx context.Context, withReels bool) {
	s.News.Start(ctx)
	if withReels {
		s.Reels.Start(ctx)
	}
}

// Shutdown asks both loops to stop and waits for in-flight work, bounded
// by ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	s.News.Stop()
	s.Reels.Stop()
	done := make(chan struct{})
	go func() {
		s.News.Wait()
		s.Reels.Wait()
		s.NewsScheduler.Wait()
		s.ReelsScheduler.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

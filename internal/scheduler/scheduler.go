// Package scheduler drains a post queue onto the page, one post per
// interval.
package scheduler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"frameworks/crowsnest/internal/config"
	"frameworks/crowsnest/internal/facebook"
	"frameworks/crowsnest/internal/logsink"
	"frameworks/crowsnest/internal/logstore"
	"frameworks/crowsnest/internal/metrics"
	"frameworks/crowsnest/internal/queue"
	"frameworks/crowsnest/internal/runstate"
	"frameworks/crowsnest/pkg/logging"
)

// Outcome describes what a tick did.
type Outcome string

const (
	OutcomeIdle      Outcome = "idle"      // stopped with an empty queue
	OutcomeWaiting   Outcome = "waiting"   // interval not yet elapsed
	OutcomeEmpty     Outcome = "empty"     // nothing queued
	OutcomeSimulated Outcome = "simulated" // debug mode
	OutcomePublished Outcome = "published"
	OutcomeFailed    Outcome = "failed"
)

// Publisher is the page posting surface.
type Publisher interface {
	Publish(ctx context.Context, creds facebook.Credentials, message string, media []queue.MediaItem, replyTo string) (string, error)
	React(ctx context.Context, creds facebook.Credentials, objectID, reaction string) error
	ListComments(ctx context.Context, creds facebook.Credentials, postID string) ([]facebook.Comment, error)
	ShareStory(ctx context.Context, creds facebook.Credentials, imageURL, postURL string) (string, error)
}

// SettingsStore is read on every tick; Update persists the usage counter.
type SettingsStore interface {
	Load() (config.Settings, error)
	Update(fn func(*config.Settings)) (config.Settings, error)
}

// Source is the queue being drained.
type Source interface {
	Shift() (queue.Post, bool)
	Len() int
}

type Events interface {
	Publish(ctx context.Context, typ string, content any)
}

// Profile selects the settings that govern one queue.
type Profile struct {
	Kind     string
	Interval func(config.Settings) time.Duration
	Debug    func(config.Settings) bool
	// CountUsage increments Settings.Used after AI-mode publishes
	CountUsage bool
	// Engage enables likes, comment sweeps, link comments and stories
	Engage bool
	// SuccessEvent is the event type emitted after a publish
	SuccessEvent string
}

// NewsProfile governs the article queue.
var NewsProfile = Profile{
	Kind:         "news",
	Interval:     config.Settings.PostInterval,
	Debug:        func(s config.Settings) bool { return s.DebugMode },
	CountUsage:   true,
	Engage:       true,
	SuccessEvent: logsink.TypePostSuccess,
}

// ReelsProfile governs the video queue.
var ReelsProfile = Profile{
	Kind:         "reels",
	Interval:     config.Settings.VideoPostInterval,
	Debug:        func(s config.Settings) bool { return s.DebugModeReels },
	SuccessEvent: logsink.TypeReelsPostSuccess,
}

type Config struct {
	Profile   Profile
	Queue     Source
	State     *runstate.State
	Settings  SettingsStore
	Publisher Publisher
	Log       logstore.Store
	Events    Events
	Logger    logging.Logger
	// AfterFunc schedules the comment-reaction sweep; defaults to time.AfterFunc
	AfterFunc func(d time.Duration, f func()) *time.Timer
}

// Scheduler publishes queued posts with a minimum spacing between them.
type Scheduler struct {
	profile   Profile
	queue     Source
	state     *runstate.State
	settings  SettingsStore
	publisher Publisher
	log       logstore.Store
	events    Events
	logger    logging.Logger
	afterFunc func(d time.Duration, f func()) *time.Timer

	tickMu sync.Mutex
	sweeps sync.WaitGroup
}

func New(cfg Config) *Scheduler {
	if cfg.Profile.Kind == "" {
		cfg.Profile = NewsProfile
	}
	if cfg.State == nil {
		cfg.State = runstate.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = time.AfterFunc
	}
	return &Scheduler{
		profile:   cfg.Profile,
		queue:     cfg.Queue,
		state:     cfg.State,
		settings:  cfg.Settings,
		publisher: cfg.Publisher,
		log:       cfg.Log,
		events:    cfg.Events,
		logger:    cfg.Logger,
		afterFunc: cfg.AfterFunc,
	}
}

// Wait blocks until scheduled comment sweeps have finished.
func (s *Scheduler) Wait() {
	s.sweeps.Wait()
}

// Tick publishes the queue head when the minimum interval has elapsed.
// Ticks never overlap.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (outcome Outcome) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	log := s.logger.WithField("queue", s.profile.Kind)
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).Error("Scheduler: tick panicked")
			outcome = OutcomeFailed
		}
	}()

	if !s.state.Running() && s.queue.Len() == 0 {
		return OutcomeIdle
	}

	settings, err := s.settings.Load()
	if err != nil {
		log.WithError(err).Error("Scheduler: cannot read settings")
		return OutcomeFailed
	}
	interval := s.profile.Interval(settings)
	if interval <= 0 {
		interval = time.Minute
	}

	if wait := s.state.Remaining(now, interval); wait > 0 {
		log.WithFields(logging.Fields{
			"wait_minutes": int(math.Round(wait.Minutes())),
			"queued":       s.queue.Len(),
		}).Info("Scheduler: waiting before next post")
		return OutcomeWaiting
	}

	post, ok := s.queue.Shift()
	if !ok {
		log.Info("Scheduler: post queue is empty")
		return OutcomeEmpty
	}
	log = log.WithFields(logging.Fields{"title": post.Title, "link": post.Link})
	log.Info("Scheduler: preparing queued post")

	if s.profile.Debug(settings) {
		s.state.MarkPublished(now)
		metrics.PublishesTotal.WithLabelValues(s.profile.Kind, "debug").Inc()
		log.Info("Scheduler: debug mode, skipping the real publish")
		return OutcomeSimulated
	}

	if err := s.publish(ctx, settings, post, now, log); err != nil {
		metrics.PublishesTotal.WithLabelValues(s.profile.Kind, "failed").Inc()
		log.WithError(err).Error("Scheduler: publish failed, post dropped")
		return OutcomeFailed
	}
	metrics.PublishesTotal.WithLabelValues(s.profile.Kind, "success").Inc()
	return OutcomePublished
}

// publish runs the post-and-follow-up sequence. Only the main publish can
// fail it; every later step is logged and skipped on error.
func (s *Scheduler) publish(ctx context.Context, settings config.Settings, post queue.Post, now time.Time, log *logging.Entry) error {
	creds := facebook.CredentialsFrom(settings)
	postID, err := s.publisher.Publish(ctx, creds, post.Content, post.Media, "")
	if err != nil {
		return err
	}
	if postID == "" {
		return facebook.ErrNoPostID
	}
	log = log.WithField("post_id", postID)
	log.WithField(logsink.FieldStatus, logsink.LevelSuccess).Info("Scheduler: published")

	if s.profile.Engage {
		s.engage(ctx, settings, creds, post, postID, log)
	}

	entry := logstore.Entry{
		Link:      post.Link,
		Title:     post.Title,
		Rewritten: post.Content,
		ImageHash: post.ImageHash,
		Topics:    post.Topics,
		Hashtags:  post.Hashtags,
		PostID:    postID,
		Timestamp: now,
	}
	if len(post.RawImages) > 0 {
		entry.Image = post.RawImages[0]
	}
	if s.log != nil {
		if err := s.log.Append(ctx, entry); err != nil {
			log.WithError(err).Error("Scheduler: cannot write publish log")
		}
	}

	if s.events != nil && s.profile.SuccessEvent != "" {
		s.events.Publish(ctx, s.profile.SuccessEvent, map[string]string{"link": post.Link, "postId": postID})
	}

	if s.profile.CountUsage && settings.AIEnabled() {
		updated, err := s.settings.Update(func(cur *config.Settings) { cur.Used++ })
		if err != nil {
			log.WithError(err).Error("Scheduler: cannot persist usage counter")
		} else {
			log.WithField("used", updated.Used).Info("Scheduler: usage counter incremented")
		}
	}

	s.state.MarkPublished(now)
	return nil
}

func (s *Scheduler) engage(ctx context.Context, settings config.Settings, creds facebook.Credentials, post queue.Post, postID string, log *logging.Entry) {
	if settings.AutoLikePosts {
		if err := s.publisher.React(ctx, creds, postID, "LIKE"); err != nil {
			log.WithError(err).Warn("Scheduler: auto-like failed")
		} else {
			log.Info("Scheduler: post liked")
		}
	}

	if settings.AutoReactComments {
		delay := settings.CommentReactionDelay()
		reaction := settings.CommentReactionType
		s.sweeps.Add(1)
		s.afterFunc(delay, func() {
			defer s.sweeps.Done()
			s.sweepComments(context.WithoutCancel(ctx), creds, postID, reaction)
		})
		log.WithField("delay", delay.String()).Info("Scheduler: comment reactions scheduled")
	}

	if post.Link != "" {
		if _, err := s.publisher.Publish(ctx, creds, post.Link, nil, postID); err != nil {
			log.WithError(err).Error("Scheduler: link comment failed")
		}
	}

	if settings.SharePostToStory && len(post.RawImages) > 0 {
		postURL := facebook.PostURL(settings.FBPageID, postID)
		if _, err := s.publisher.ShareStory(ctx, creds, post.RawImages[0], postURL); err != nil {
			log.WithError(err).Error("Scheduler: story share failed")
		} else {
			log.WithField(logsink.FieldStatus, logsink.LevelSuccess).Info("Scheduler: shared to story")
		}
	}
}

// sweepComments reacts to every comment on postID. Single failures are skipped.
func (s *Scheduler) sweepComments(ctx context.Context, creds facebook.Credentials, postID, reaction string) {
	log := s.logger.WithFields(logging.Fields{"queue": s.profile.Kind, "post_id": postID})
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", fmt.Sprint(r)).Error("Scheduler: comment sweep panicked")
		}
	}()
	if reaction == "" {
		reaction = "LOVE"
	}

	comments, err := s.publisher.ListComments(ctx, creds, postID)
	if err != nil {
		log.WithError(err).Warn("Scheduler: cannot list comments")
		return
	}
	if len(comments) == 0 {
		log.Info("Scheduler: no comments to react to")
		return
	}
	reacted := 0
	for _, c := range comments {
		if err := s.publisher.React(ctx, creds, c.ID, reaction); err != nil {
			log.WithError(err).WithField("comment_id", c.ID).Warn("Scheduler: comment reaction failed")
			continue
		}
		reacted++
	}
	log.WithFields(logging.Fields{"comments": len(comments), "reacted": reacted, "reaction": reaction}).Info("Scheduler: comment reactions done")
}

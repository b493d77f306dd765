// Package controller owns the start/stop lifecycle of one crawl loop and
// the publish ticker that drains its queue.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"frameworks/crowsnest/internal/metrics"
	"frameworks/crowsnest/internal/runstate"
	"frameworks/crowsnest/internal/scheduler"
	"frameworks/crowsnest/pkg/logging"
)

const defaultTickEvery = time.Minute

// Phase is the lifecycle position of a controller.
type Phase string

const (
	PhaseStopped  Phase = "stopped"
	PhaseRunning  Phase = "running"
	PhaseStopping Phase = "stopping"
)

// CycleFunc runs one crawl pass. running reports whether a stop was
// requested; implementations check it between candidates.
type CycleFunc func(ctx context.Context, running func() bool)

// Ticker is the publish side, usually a *scheduler.Scheduler.
type Ticker interface {
	Tick(ctx context.Context, now time.Time) scheduler.Outcome
}

type Events interface {
	Publish(ctx context.Context, typ string, content any)
}

type Config struct {
	// Kind labels logs and metrics: news or reels.
	Kind  string
	State *runstate.State
	Cycle CycleFunc
	// Delay is read after every cycle so operators can change it live.
	Delay     func() time.Duration
	Scheduler Ticker
	TickEvery time.Duration
	Events    Events
	// StatusEvent is emitted with {"running": bool} on every transition.
	StatusEvent string
	Logger      logging.Logger
}

// Controller implements stopped -> running -> stopping -> stopped. Stop
// never interrupts in-flight work; the loop notices the cleared flag at its
// next checkpoint and exits without scheduling another cycle.
type Controller struct {
	kind        string
	state       *runstate.State
	cycle       CycleFunc
	delay       func() time.Duration
	sched       Ticker
	tickEvery   time.Duration
	events      Events
	statusEvent string
	logger      logging.Logger

	mu         sync.Mutex
	phase      Phase
	wake       chan struct{}
	done       chan struct{}
	stopTicker context.CancelFunc
	tickDone   chan struct{}
}

func New(cfg Config) *Controller {
	if cfg.State == nil {
		cfg.State = runstate.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	if cfg.TickEvery <= 0 {
		cfg.TickEvery = defaultTickEvery
	}
	if cfg.Delay == nil {
		cfg.Delay = func() time.Duration { return 15 * time.Minute }
	}
	if cfg.Kind == "" {
		cfg.Kind = "news"
	}
	return &Controller{
		kind:        cfg.Kind,
		state:       cfg.State,
		cycle:       cfg.Cycle,
		delay:       cfg.Delay,
		sched:       cfg.Scheduler,
		tickEvery:   cfg.TickEvery,
		events:      cfg.Events,
		statusEvent: cfg.StatusEvent,
		logger:      cfg.Logger,
		phase:       PhaseStopped,
	}
}

// Start launches the loop and arms the publish ticker. It reports false
// when the controller was already running. Starting while a stop is still
// draining keeps the existing loop alive.
func (c *Controller) Start(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.phase {
	case PhaseRunning:
		c.logger.WithField("kind", c.kind).Info("Controller: already running")
		return false
	case PhaseStopping:
		c.state.SetRunning(true)
		c.phase = PhaseRunning
		c.logger.WithField("kind", c.kind).Info("Controller: stop cancelled, loop continues")
		c.emit(ctx, true)
		return true
	}

	c.state.SetRunning(true)
	c.phase = PhaseRunning
	c.wake = make(chan struct{}, 1)
	c.done = make(chan struct{})

	c.armTicker(ctx)
	go c.loop(ctx, c.wake, c.done)

	c.logger.WithField("kind", c.kind).Info("Controller: started")
	c.emit(ctx, true)
	return true
}

// Stop clears the run flag. It reports false when nothing was running.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseRunning {
		return false
	}
	c.state.SetRunning(false)
	c.phase = PhaseStopping
	select {
	case c.wake <- struct{}{}:
	default:
	}
	c.logger.WithField("kind", c.kind).Info("Controller: stop requested")
	c.emit(context.Background(), false)
	return true
}

// Phase reports the current lifecycle position.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Running reports whether the run flag is set.
func (c *Controller) Running() bool {
	return c.state.Running()
}

// Wait blocks until the current loop, if any, has exited.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Controller) loop(ctx context.Context, wake <-chan struct{}, done chan struct{}) {
	defer close(done)
	for {
		c.runCycle(ctx)
		if c.exitIfStopped(ctx) {
			return
		}

		delay := c.delay()
		c.logger.WithFields(logging.Fields{
			"kind":          c.kind,
			"delay_minutes": delay.Minutes(),
		}).Info("Controller: cycle finished, waiting before the next one")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
		case <-wake:
		case <-timer.C:
		}
		timer.Stop()
		if c.exitIfStopped(ctx) {
			return
		}
	}
}

// exitIfStopped disarms the ticker and lets an in-flight publish finish
// before reporting stopped. A Start that lands while the tick drains
// revives the loop and re-arms the ticker.
func (c *Controller) exitIfStopped(ctx context.Context) bool {
	c.mu.Lock()
	if ctx.Err() == nil && c.state.Running() {
		c.mu.Unlock()
		return false
	}
	if c.stopTicker != nil {
		c.stopTicker()
		c.stopTicker = nil
	}
	tickDone := c.tickDone
	c.tickDone = nil
	c.mu.Unlock()

	if tickDone != nil {
		<-tickDone
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() == nil && c.state.Running() {
		c.armTicker(ctx)
		return false
	}
	c.state.SetRunning(false)
	c.phase = PhaseStopped
	c.logger.WithField("kind", c.kind).Info("Controller: loop exited")
	return true
}

// armTicker must be called with c.mu held.
func (c *Controller) armTicker(ctx context.Context) {
	if c.sched == nil {
		return
	}
	tickCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.stopTicker = cancel
	c.tickDone = done
	go func() {
		defer close(done)
		c.tickLoop(tickCtx)
	}()
}

func (c *Controller) runCycle(ctx context.Context) {
	if c.cycle == nil {
		return
	}
	start := time.Now()
	defer func() {
		metrics.CycleDuration.WithLabelValues(c.kind).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			c.logger.WithFields(logging.Fields{
				"kind":  c.kind,
				"panic": fmt.Sprint(r),
			}).Error("Controller: crawl cycle panic")
		}
	}()
	c.cycle(ctx, c.state.Running)
}

func (c *Controller) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(c.tickEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			// a publish that started runs to completion; ctx only ends the loop
			c.sched.Tick(context.WithoutCancel(ctx), now)
		}
	}
}

func (c *Controller) emit(ctx context.Context, running bool) {
	if c.events == nil || c.statusEvent == "" {
		return
	}
	c.events.Publish(ctx, c.statusEvent, map[string]bool{"running": running})
}

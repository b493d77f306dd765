// Package handlers is the operator HTTP surface: settings, start/stop,
// queue inspection and the live log socket.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"frameworks/crowsnest/internal/config"
	"frameworks/crowsnest/internal/controller"
	"frameworks/crowsnest/internal/logstore"
	"frameworks/crowsnest/internal/queue"
	"frameworks/crowsnest/internal/runstate"
	"frameworks/crowsnest/pkg/logging"
	"frameworks/crowsnest/pkg/middleware"
)

const maxLogoBytes = 10 << 20

var logoExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".gif": true}

type SettingsStore interface {
	Load() (config.Settings, error)
	Save(config.Settings) error
}

// Loop is a startable crawl loop, usually a *controller.Controller.
type Loop interface {
	Start(ctx context.Context) bool
	Stop() bool
	Phase() controller.Phase
}

type Queue interface {
	Snapshot() []queue.Summary
	RemoveByLink(link string) int
	Len() int
}

// Pipeline groups what one loop (news or reels) exposes.
type Pipeline struct {
	Loop  Loop
	Queue Queue
	State *runstate.State
	Log   logstore.Store
}

type Config struct {
	Settings SettingsStore
	News     Pipeline
	Reels    Pipeline
	// WS serves /ws; nil disables the route.
	WS      http.HandlerFunc
	LogoDir string
	// RunContext bounds loops started over HTTP; request contexts end too early.
	RunContext context.Context
	Logger     logging.Logger
	Now        func() time.Time
}

// Handlers holds the dependencies of every route.
type Handlers struct {
	settings SettingsStore
	news     Pipeline
	reels    Pipeline
	ws       http.HandlerFunc
	logoDir  string
	runCtx   context.Context
	logger   logging.Logger
	now      func() time.Time
}

func New(cfg Config) *Handlers {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	if cfg.RunContext == nil {
		cfg.RunContext = context.Background()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Handlers{
		settings: cfg.Settings,
		news:     cfg.News,
		reels:    cfg.Reels,
		ws:       cfg.WS,
		logoDir:  cfg.LogoDir,
		runCtx:   cfg.RunContext,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

// Register mounts the API under /api and the websocket at /ws. token, when
// set, is required on every route.
func (h *Handlers) Register(r gin.IRouter, token string) {
	auth := middleware.TokenAuthMiddleware(token)

	api := r.Group("/api", auth)
	api.GET("/config", h.GetConfig)
	api.POST("/config", h.SaveConfig)
	api.POST("/upload-logo", h.UploadLogo)
	api.POST("/start", h.Start)
	api.POST("/stop", h.Stop)
	api.DELETE("/post/*link", h.DeletePost)
	api.GET("/status", h.Status)
	api.GET("/post-queue", h.PostQueue)
	api.GET("/trends", h.Trends)

	reels := api.Group("/reels")
	reels.POST("/start", h.StartReels)
	reels.POST("/stop", h.StopReels)
	reels.GET("/status", h.ReelsStatus)
	reels.GET("/queue", h.ReelsQueue)

	if h.ws != nil {
		r.GET("/ws", auth, gin.WrapF(h.ws))
	}
}

// GetConfig returns the current settings.
func (h *Handlers) GetConfig(c *gin.Context) {
	settings, err := h.settings.Load()
	if err != nil {
		h.fail(c, err, "Failed to load settings")
		return
	}
	c.JSON(http.StatusOK, settings)
}

// SaveConfig merges the JSON body into the stored settings.
func (h *Handlers) SaveConfig(c *gin.Context) {
	saved, err := h.mergeAndSave(c)
	if err != nil {
		h.fail(c, err, "Failed to save settings")
		return
	}
	h.logger.Info("Settings saved")
	c.JSON(http.StatusOK, gin.H{"success": true, "config": saved})
}

// UploadLogo stores the multipart "logo" file and points LogoPath at it.
func (h *Handlers) UploadLogo(c *gin.Context) {
	file, hdr, err := c.Request.FormFile("logo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing logo file"})
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(hdr.Filename))
	if !logoExtensions[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported logo type %q", ext)})
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, maxLogoBytes+1))
	if err != nil {
		h.fail(c, err, "Failed to read logo upload")
		return
	}
	if len(data) > maxLogoBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "logo too large"})
		return
	}

	if err := os.MkdirAll(h.logoDir, 0o755); err != nil {
		h.fail(c, err, "Failed to create logo directory")
		return
	}
	path := filepath.Join(h.logoDir, "logo"+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		h.fail(c, err, "Failed to write logo")
		return
	}

	settings, err := h.settings.Load()
	if err != nil {
		h.fail(c, err, "Failed to load settings")
		return
	}
	settings.LogoPath = path
	if err := h.settings.Save(settings); err != nil {
		h.fail(c, err, "Failed to save settings")
		return
	}
	h.logger.WithField("path", path).Info("Logo uploaded")
	c.JSON(http.StatusOK, gin.H{"success": true, "path": path})
}

// Start applies an optional settings patch, then starts the news loop.
func (h *Handlers) Start(c *gin.Context) {
	h.start(c, h.news)
}

func (h *Handlers) Stop(c *gin.Context) {
	h.stop(c, h.news)
}

func (h *Handlers) StartReels(c *gin.Context) {
	h.start(c, h.reels)
}

func (h *Handlers) StopReels(c *gin.Context) {
	h.stop(c, h.reels)
}

func (h *Handlers) start(c *gin.Context, p Pipeline) {
	if p.Loop == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "loop not configured"})
		return
	}
	if _, err := h.mergeAndSave(c); err != nil {
		h.fail(c, err, "Failed to save settings before start")
		return
	}
	started := p.Loop.Start(h.runCtx)
	c.JSON(http.StatusOK, gin.H{"success": true, "started": started, "phase": p.Loop.Phase()})
}

func (h *Handlers) stop(c *gin.Context, p Pipeline) {
	if p.Loop == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "loop not configured"})
		return
	}
	stopped := p.Loop.Stop()
	c.JSON(http.StatusOK, gin.H{"success": true, "stopped": stopped, "phase": p.Loop.Phase()})
}

// DeletePost removes every pending news post with the given link. The link
// comes from the path (URL-encoded) or the "link" query parameter.
func (h *Handlers) DeletePost(c *gin.Context) {
	link := strings.TrimPrefix(c.Param("link"), "/")
	if q := c.Query("link"); q != "" {
		link = q
	}
	if unescaped, err := url.PathUnescape(link); err == nil {
		link = unescaped
	}
	if link == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "link is required"})
		return
	}
	removed := h.news.Queue.RemoveByLink(link)
	if removed == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not in queue", "link": link})
		return
	}
	h.logger.WithFields(logging.Fields{"link": link, "removed": removed}).Info("Queued post removed")
	c.JSON(http.StatusOK, gin.H{"success": true, "removed": removed})
}

// Status reports the news loop state plus today's publish count.
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.status(c.Request.Context(), h.news))
}

func (h *Handlers) ReelsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.status(c.Request.Context(), h.reels))
}

func (h *Handlers) status(ctx context.Context, p Pipeline) gin.H {
	out := gin.H{"running": false, "phase": controller.PhaseStopped}
	if p.Loop != nil {
		out["phase"] = p.Loop.Phase()
		out["running"] = p.Loop.Phase() == controller.PhaseRunning
	}
	if p.Queue != nil {
		out["queue_len"] = p.Queue.Len()
	}
	if p.State != nil {
		if last := p.State.LastPublish(); !last.IsZero() {
			out["last_publish"] = last
		}
	}
	if p.Log != nil {
		entries, err := p.Log.Load(ctx)
		if err != nil {
			h.logger.WithError(err).Warn("Status: cannot read publish log")
		}
		out["posted_today"] = logstore.CountToday(entries, h.now())
	}
	return out
}

func (h *Handlers) PostQueue(c *gin.Context) {
	c.JSON(http.StatusOK, snapshot(h.news.Queue))
}

func (h *Handlers) ReelsQueue(c *gin.Context) {
	c.JSON(http.StatusOK, snapshot(h.reels.Queue))
}

func snapshot(q Queue) []queue.Summary {
	if q == nil {
		return []queue.Summary{}
	}
	return q.Snapshot()
}

// Trends returns the most frequent topics; ?days= and ?top= override 2 and 5.
func (h *Handlers) Trends(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "2"))
	top, _ := strconv.Atoi(c.DefaultQuery("top", "5"))
	entries, err := h.news.Log.Load(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to read publish log")
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "topics": logstore.TrendingTopics(entries, h.now(), days, top)})
}

// mergeAndSave applies the request body, if any, onto stored settings.
func (h *Handlers) mergeAndSave(c *gin.Context) (config.Settings, error) {
	current, err := h.settings.Load()
	if err != nil {
		return current, err
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		return current, fmt.Errorf("%w: read body: %v", config.ErrInvalidSettings, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return current, nil
	}
	merged, err := current.Merge(body)
	if err != nil {
		return current, err
	}
	if err := h.settings.Save(merged); err != nil {
		return current, err
	}
	return merged, nil
}

func (h *Handlers) fail(c *gin.Context, err error, msg string) {
	status := http.StatusInternalServerError
	if errors.Is(err, config.ErrInvalidSettings) {
		status = http.StatusBadRequest
	}
	h.logger.WithError(err).Error(msg)
	c.JSON(status, gin.H{"error": msg, "details": err.Error()})
}

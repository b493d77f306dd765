package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"frameworks/crowsnest/pkg/logging"
)

// ErrInvalidSettings wraps every validation failure.
var ErrInvalidSettings = errors.New("invalid settings")

const (
	RewriteModeAI     = "ai"
	RewriteModeManual = "manual"

	AISourceCloud = "cloud"
	AISourceLocal = "local"

	// MaxSources caps how many sources a cycle crawls.
	MaxSources = 5
)

var validReactions = map[string]bool{
	"LIKE": true, "LOVE": true, "WOW": true, "HAHA": true, "SAD": true, "ANGRY": true, "CARE": true,
}

// Settings are the runtime options an operator can change while the
// service runs. They are re-read before every tick and cycle.
type Settings struct {
	APIKey      string `yaml:"api_key" json:"API_KEY"`
	Model       string `yaml:"model" json:"MODEL"`
	AISource    string `yaml:"ai_source" json:"AI_SOURCE"`
	LocalAIURL  string `yaml:"local_ai_url" json:"LOCAL_AI_URL"`
	CloudAPIURL string `yaml:"cloud_api_url" json:"CLOUD_API_URL"`

	FBPageID          string `yaml:"fb_page_id" json:"FB_PAGE_ID"`
	FBPageToken       string `yaml:"fb_page_token" json:"FB_PAGE_TOKEN"`
	FBGraphAPIVersion string `yaml:"fb_graph_api_version" json:"FB_GRAPH_API_VERSION"`

	DebugMode             bool     `yaml:"debug_mode" json:"DEBUG_MODE"`
	LogoPath              string   `yaml:"logo_path" json:"LOGO_PATH"`
	RewriteMode           string   `yaml:"rewrite_mode" json:"REWRITE_MODE"`
	PostIntervalMinutes   int      `yaml:"post_interval_minutes" json:"POST_INTERVAL_MINUTES"`
	CrawlLoopDelayMinutes int      `yaml:"crawl_loop_delay_minutes" json:"CRAWL_LOOP_DELAY_MINUTES"`
	Sources               []string `yaml:"sources" json:"sources"`
	Used                  int      `yaml:"used" json:"USED"`

	AutoLikePosts                bool   `yaml:"auto_like_posts" json:"AUTO_LIKE_POSTS"`
	AutoReactComments            bool   `yaml:"auto_react_comments" json:"AUTO_REACT_COMMENTS"`
	AutoReactCommentDelaySeconds int    `yaml:"auto_react_comment_delay_seconds" json:"AUTO_REACT_COMMENT_DELAY_SECONDS"`
	CommentReactionType          string `yaml:"comment_reaction_type" json:"COMMENT_REACTION_TYPE"`
	SharePostToStory             bool   `yaml:"share_post_to_story" json:"SHARE_POST_TO_STORY"`

	VideoSources               []string `yaml:"video_sources" json:"videoSources"`
	DebugModeReels             bool     `yaml:"debug_mode_reels" json:"DEBUG_MODE_REELS"`
	VideoPostIntervalMinutes   int      `yaml:"video_post_interval_minutes" json:"VIDEO_POST_INTERVAL_MINUTES"`
	VideoCrawlLoopDelayMinutes int      `yaml:"video_crawl_loop_delay_minutes" json:"VIDEO_CRAWL_LOOP_DELAY_MINUTES"`
}

// DefaultSettings mirrors the first-run configuration.
func DefaultSettings() Settings {
	return Settings{
		Model:                        "qwen/qwen3-30b-a3b:free",
		AISource:                     AISourceCloud,
		LocalAIURL:                   "http://localhost:1234/v1",
		CloudAPIURL:                  "https://openrouter.ai/api/v1/chat/completions",
		FBGraphAPIVersion:            "v17.0",
		DebugMode:                    true,
		RewriteMode:                  RewriteModeAI,
		PostIntervalMinutes:          5,
		CrawlLoopDelayMinutes:        15,
		Sources:                      []string{"https://cafef.vn", "https://tuoitre.vn", "https://dantri.com.vn"},
		AutoReactCommentDelaySeconds: 60,
		CommentReactionType:          "LOVE",
		DebugModeReels:               true,
		VideoPostIntervalMinutes:     15,
		VideoCrawlLoopDelayMinutes:   30,
	}
}

// withDefaults fills zero values left by older or partial files.
func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Model == "" {
		s.Model = d.Model
	}
	if s.AISource == "" {
		s.AISource = d.AISource
	}
	if s.LocalAIURL == "" {
		s.LocalAIURL = d.LocalAIURL
	}
	if s.CloudAPIURL == "" {
		s.CloudAPIURL = d.CloudAPIURL
	}
	if s.FBGraphAPIVersion == "" {
		s.FBGraphAPIVersion = d.FBGraphAPIVersion
	}
	if s.RewriteMode == "" {
		s.RewriteMode = d.RewriteMode
	}
	if s.PostIntervalMinutes <= 0 {
		s.PostIntervalMinutes = d.PostIntervalMinutes
	}
	if s.CrawlLoopDelayMinutes <= 0 {
		s.CrawlLoopDelayMinutes = d.CrawlLoopDelayMinutes
	}
	if len(s.Sources) == 0 {
		s.Sources = d.Sources
	}
	if s.AutoReactCommentDelaySeconds <= 0 {
		s.AutoReactCommentDelaySeconds = d.AutoReactCommentDelaySeconds
	}
	if s.CommentReactionType == "" {
		s.CommentReactionType = d.CommentReactionType
	}
	if s.VideoPostIntervalMinutes <= 0 {
		s.VideoPostIntervalMinutes = d.VideoPostIntervalMinutes
	}
	if s.VideoCrawlLoopDelayMinutes <= 0 {
		s.VideoCrawlLoopDelayMinutes = d.VideoCrawlLoopDelayMinutes
	}
	s.CommentReactionType = strings.ToUpper(s.CommentReactionType)
	s.RewriteMode = strings.ToLower(s.RewriteMode)
	s.AISource = strings.ToLower(s.AISource)
	return s
}

// Validate reports the first invalid field.
func (s Settings) Validate() error {
	if s.RewriteMode != RewriteModeAI && s.RewriteMode != RewriteModeManual {
		return fmt.Errorf("%w: rewrite mode %q must be %q or %q", ErrInvalidSettings, s.RewriteMode, RewriteModeAI, RewriteModeManual)
	}
	if s.AISource != AISourceCloud && s.AISource != AISourceLocal {
		return fmt.Errorf("%w: ai source %q must be %q or %q", ErrInvalidSettings, s.AISource, AISourceCloud, AISourceLocal)
	}
	if s.PostIntervalMinutes < 0 || s.CrawlLoopDelayMinutes < 0 || s.VideoPostIntervalMinutes < 0 || s.VideoCrawlLoopDelayMinutes < 0 {
		return fmt.Errorf("%w: intervals must not be negative", ErrInvalidSettings)
	}
	if s.AutoReactCommentDelaySeconds < 0 {
		return fmt.Errorf("%w: comment reaction delay must not be negative", ErrInvalidSettings)
	}
	if len(s.Sources) > MaxSources {
		return fmt.Errorf("%w: at most %d sources are supported, got %d", ErrInvalidSettings, MaxSources, len(s.Sources))
	}
	for _, src := range append(append([]string{}, s.Sources...), s.VideoSources...) {
		u, err := url.Parse(src)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: source %q is not an http(s) URL", ErrInvalidSettings, src)
		}
	}
	if !validReactions[s.CommentReactionType] {
		return fmt.Errorf("%w: unknown reaction type %q", ErrInvalidSettings, s.CommentReactionType)
	}
	return nil
}

// PostInterval is the minimum spacing between news publishes.
func (s Settings) PostInterval() time.Duration {
	return time.Duration(s.PostIntervalMinutes) * time.Minute
}

// CrawlDelay is the pause between news cycles.
func (s Settings) CrawlDelay() time.Duration {
	return time.Duration(s.CrawlLoopDelayMinutes) * time.Minute
}

// VideoPostInterval is the minimum spacing between reel publishes.
func (s Settings) VideoPostInterval() time.Duration {
	return time.Duration(s.VideoPostIntervalMinutes) * time.Minute
}

// VideoCrawlDelay is the pause between video cycles.
func (s Settings) VideoCrawlDelay() time.Duration {
	return time.Duration(s.VideoCrawlLoopDelayMinutes) * time.Minute
}

// CommentReactionDelay is how long after publishing comments get reacted to.
func (s Settings) CommentReactionDelay() time.Duration {
	return time.Duration(s.AutoReactCommentDelaySeconds) * time.Second
}

// AIEnabled reports whether articles go through the AI rewriter.
func (s Settings) AIEnabled() bool {
	return s.RewriteMode == RewriteModeAI
}

// Merge overlays a JSON patch (as accepted by /api/config and /api/start)
// onto a copy of s. Fields absent from the patch keep their value.
func (s Settings) Merge(patch []byte) (Settings, error) {
	merged := s
	merged.Sources = append([]string(nil), s.Sources...)
	merged.VideoSources = append([]string(nil), s.VideoSources...)
	if len(strings.TrimSpace(string(patch))) == 0 {
		return merged, nil
	}
	if err := json.Unmarshal(patch, &merged); err != nil {
		return s, fmt.Errorf("%w: decode patch: %v", ErrInvalidSettings, err)
	}
	return merged.withDefaults(), nil
}

// Provider is what the scheduler and controllers read settings through.
type Provider interface {
	Load() (Settings, error)
}

// SettingsStore persists Settings to a YAML file (or JSON when the path
// ends in .json).
type SettingsStore struct {
	path   string
	logger logging.Logger
	mu     sync.Mutex
}

func NewSettingsStore(path string, logger logging.Logger) *SettingsStore {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &SettingsStore{path: path, logger: logger}
}

// Path returns the backing file.
func (s *SettingsStore) Path() string {
	return s.path
}

// Load reads the file. A missing file is created with defaults; an
// unparsable one is replaced by defaults and logged.
func (s *SettingsStore) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		def := DefaultSettings()
		if err := s.writeLocked(def); err != nil {
			return def, err
		}
		s.logger.WithField("path", s.path).Info("Created default settings file")
		return def, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	var settings Settings
	if err := s.decode(raw, &settings); err != nil {
		s.logger.WithError(err).WithField("path", s.path).Error("Settings file is corrupt, restoring defaults")
		def := DefaultSettings()
		if err := s.writeLocked(def); err != nil {
			return def, err
		}
		return def, nil
	}

	settings = settings.withDefaults()
	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

// Save validates and writes settings. Failures are hard errors.
func (s *SettingsStore) Save(settings Settings) error {
	settings = settings.withDefaults()
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(settings)
}

// Update applies fn to the current settings and saves the result.
func (s *SettingsStore) Update(fn func(*Settings)) (Settings, error) {
	current, err := s.Load()
	if err != nil {
		return current, err
	}
	fn(&current)
	if err := s.Save(current); err != nil {
		return current, err
	}
	return current.withDefaults(), nil
}

func (s *SettingsStore) isJSON() bool {
	return strings.EqualFold(filepath.Ext(s.path), ".json")
}

func (s *SettingsStore) decode(raw []byte, out *Settings) error {
	if s.isJSON() {
		return json.Unmarshal(raw, out)
	}
	return yaml.Unmarshal(raw, out)
}

func (s *SettingsStore) writeLocked(settings Settings) error {
	var (
		data []byte
		err  error
	)
	if s.isJSON() {
		data, err = json.MarshalIndent(settings, "", "  ")
	} else {
		data, err = yaml.Marshal(settings)
	}
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create settings dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*")
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

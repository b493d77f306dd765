package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"frameworks/crowsnest/pkg/logging"
)

func TestSettingsStoreCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	store := NewSettingsStore(path, nil)

	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.PostIntervalMinutes != 5 || got.CrawlLoopDelayMinutes != 15 || got.RewriteMode != RewriteModeAI {
		t.Fatalf("unexpected defaults %+v", got)
	}
	if !got.DebugMode {
		t.Fatalf("expected debug mode on by default")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected settings file to be written: %v", err)
	}
}

func TestSettingsStoreRoundTripAndFreshReads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	store := NewSettingsStore(path, nil)

	s := DefaultSettings()
	s.PostIntervalMinutes = 7
	s.RewriteMode = "MANUAL"
	s.FBPageID = "123"
	if err := store.Save(s); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.PostInterval() != 7*time.Minute || got.RewriteMode != RewriteModeManual || got.FBPageID != "123" {
		t.Fatalf("unexpected settings %+v", got)
	}

	// another writer changes the file between reads
	other := NewSettingsStore(path, nil)
	if _, err := other.Update(func(s *Settings) { s.PostIntervalMinutes = 2 }); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = store.Load()
	if got.PostIntervalMinutes != 2 {
		t.Fatalf("expected fresh read to see 2, got %d", got.PostIntervalMinutes)
	}
}

func TestSettingsStoreCorruptFileRestoresDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("post_interval_minutes: [oops"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	logger := logging.NewDiscardLogger()
	hook := test.NewLocal(logger)

	got, err := NewSettingsStore(path, logger).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.PostIntervalMinutes != DefaultSettings().PostIntervalMinutes {
		t.Fatalf("expected defaults, got %+v", got)
	}
	if hook.LastEntry() == nil || hook.LastEntry().Level != logging.ErrorLevel {
		t.Fatalf("expected corrupt settings to be logged at error level")
	}
}

func TestSettingsStoreJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"REWRITE_MODE":"manual","POST_INTERVAL_MINUTES":3,"sources":["https://vnexpress.net"]}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := NewSettingsStore(path, nil).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.RewriteMode != RewriteModeManual || got.PostIntervalMinutes != 3 || got.Sources[0] != "https://vnexpress.net" {
		t.Fatalf("unexpected settings %+v", got)
	}
	if got.CrawlLoopDelayMinutes != 15 {
		t.Fatalf("expected missing fields defaulted, got %d", got.CrawlLoopDelayMinutes)
	}
}

func TestSettingsValidate(t *testing.T) {
	cases := map[string]func(*Settings){
		"rewrite mode":  func(s *Settings) { s.RewriteMode = "magic" },
		"ai source":     func(s *Settings) { s.AISource = "mars" },
		"too many":      func(s *Settings) { s.Sources = []string{"https://a", "https://b", "https://c", "https://d", "https://e", "https://f"} },
		"bad source":    func(s *Settings) { s.Sources = []string{"ftp://x"} },
		"bad reaction":  func(s *Settings) { s.CommentReactionType = "MEH" },
		"negative wait": func(s *Settings) { s.AutoReactCommentDelaySeconds = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := DefaultSettings()
			mutate(&s)
			if err := s.Validate(); !errors.Is(err, ErrInvalidSettings) {
				t.Fatalf("expected ErrInvalidSettings, got %v", err)
			}
		})
	}
	if err := DefaultSettings().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestSettingsSaveRejectsInvalid(t *testing.T) {
	store := NewSettingsStore(filepath.Join(t.TempDir(), "settings.yaml"), nil)
	s := DefaultSettings()
	s.RewriteMode = "magic"
	if err := store.Save(s); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSettingsMerge(t *testing.T) {
	base := DefaultSettings()
	merged, err := base.Merge([]byte(`{"DEBUG_MODE":false,"POST_INTERVAL_MINUTES":10}`))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.DebugMode || merged.PostIntervalMinutes != 10 {
		t.Fatalf("patch not applied: %+v", merged)
	}
	if merged.CrawlLoopDelayMinutes != base.CrawlLoopDelayMinutes {
		t.Fatalf("untouched field changed")
	}
	if _, err := base.Merge([]byte(`{"POST_INTERVAL_MINUTES":"x"}`)); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected decode error, got %v", err)
	}
	if same, err := base.Merge(nil); err != nil || same.PostIntervalMinutes != base.PostIntervalMinutes {
		t.Fatalf("empty patch should be a no-op")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CROWSNEST_DATA_DIR", "/var/lib/crowsnest")
	t.Setenv("CROWSNEST_SETTINGS_PATH", "")
	t.Setenv("PORT", "")
	cfg := LoadConfig()
	if cfg.Port != "3000" {
		t.Fatalf("expected port 3000, got %s", cfg.Port)
	}
	if cfg.SettingsPath != "/var/lib/crowsnest/settings.yaml" || cfg.LogPath != "/var/lib/crowsnest/log.json" {
		t.Fatalf("unexpected paths %+v", cfg)
	}
	if cfg.CandidateDelay != 5*time.Second {
		t.Fatalf("expected 5s candidate delay, got %s", cfg.CandidateDelay)
	}
}

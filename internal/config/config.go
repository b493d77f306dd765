package config

import (
	"path/filepath"
	"time"

	"frameworks/crowsnest/pkg/config"
)

// Config is the process-level configuration read from the environment.
// Runtime-tunable options live in Settings instead.
type Config struct {
	Port         string
	DataDir      string
	SettingsPath string
	LogPath      string
	ReelsLogPath string
	LogoDir      string

	DatabaseURL  string
	RedisURL     string
	RedisAddrs   []string
	KafkaBrokers []string
	KafkaTopic   string
	EventChannel string

	// SinkMode is one of console, ipc, none. The websocket sink is always on
	// when the HTTP server runs.
	SinkMode  string
	APIToken  string
	AutoStart bool

	CandidateDelay time.Duration
	FetchTimeout   time.Duration
}

func LoadConfig() Config {
	dataDir := config.GetEnv("CROWSNEST_DATA_DIR", "data")
	return Config{
		Port:           config.GetEnv("PORT", "3000"),
		DataDir:        dataDir,
		SettingsPath:   config.GetEnv("CROWSNEST_SETTINGS_PATH", filepath.Join(dataDir, "settings.yaml")),
		LogPath:        config.GetEnv("CROWSNEST_LOG_PATH", filepath.Join(dataDir, "log.json")),
		ReelsLogPath:   config.GetEnv("CROWSNEST_REELS_LOG_PATH", filepath.Join(dataDir, "reels_log.json")),
		LogoDir:        config.GetEnv("CROWSNEST_LOGO_DIR", filepath.Join(dataDir, "logo")),
		DatabaseURL:    config.GetEnv("DATABASE_URL", ""),
		RedisURL:       config.GetEnv("REDIS_URL", ""),
		RedisAddrs:     config.GetEnvList("REDIS_ADDRS"),
		KafkaBrokers:   config.GetEnvList("KAFKA_BROKERS"),
		KafkaTopic:     config.GetEnv("KAFKA_EVENTS_TOPIC", "crowsnest.events"),
		EventChannel:   config.GetEnv("REDIS_EVENTS_CHANNEL", "crowsnest:events"),
		SinkMode:       config.GetEnv("CROWSNEST_SINK", "console"),
		APIToken:       config.GetEnv("CROWSNEST_API_TOKEN", ""),
		AutoStart:      config.GetEnvBool("CROWSNEST_AUTOSTART", false),
		CandidateDelay: config.GetEnvDuration("CROWSNEST_CANDIDATE_DELAY", 5*time.Second),
		FetchTimeout:   config.GetEnvDuration("CROWSNEST_FETCH_TIMEOUT", 5*time.Second),
	}
}

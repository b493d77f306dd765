package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"frameworks/crowsnest/internal/config"
	"frameworks/crowsnest/internal/logsink"
	"frameworks/crowsnest/internal/ws"
	"frameworks/crowsnest/pkg/autopost"
	pkgconfig "frameworks/crowsnest/pkg/config"
	"frameworks/crowsnest/pkg/database"
	"frameworks/crowsnest/pkg/kafka"
	"frameworks/crowsnest/pkg/logging"
	"frameworks/crowsnest/pkg/monitoring"
	"frameworks/crowsnest/pkg/redis"
	"frameworks/crowsnest/pkg/server"
	"frameworks/crowsnest/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithService(version.ServiceName)
	pkgconfig.LoadEnv(logger)

	cfg := config.LoadConfig()
	if cfg.SinkMode == "ipc" {
		// stdout belongs to the parent process
		logger.SetOutput(os.Stderr)
	}
	logger.WithField("version", version.Version).Info("Starting Crowsnest")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthChecker := monitoring.NewHealthChecker(version.ServiceName, version.Version)
	metricsCollector := monitoring.NewMetricsCollector(version.ServiceName, version.Version, version.GitCommit, nil)
	healthChecker.AddCheck("data_dir", monitoring.DirectoryWritableHealthCheck(cfg.DataDir))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"CROWSNEST_SETTINGS_PATH": cfg.SettingsPath,
		"CROWSNEST_DATA_DIR":      cfg.DataDir,
	}))

	sinks := logsink.NewMulti()
	switch cfg.SinkMode {
	case "console":
		console := logsink.NewConsole(os.Stdout)
		// log lines already reach stdout through the logger
		sinks.Add("console", logsink.Func(func(ctx context.Context, ev logsink.Event) error {
			if ev.Type == logsink.TypeLog {
				return nil
			}
			return console.Send(ctx, ev)
		}))
	case "ipc":
		sinks.Add("ipc", logsink.NewIPC(os.Stdout))
	}

	hub := ws.NewHub(logger)
	go hub.Run(ctx)
	sinks.Add("websocket", logsink.NewWebSocket(hub))

	var db database.PostgresConn
	if cfg.DatabaseURL != "" {
		dbConfig := database.DefaultConfig()
		dbConfig.URL = cfg.DatabaseURL
		conn, err := database.Connect(ctx, dbConfig, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to database")
		}
		defer func() { _ = conn.Close() }()
		if err := database.Migrate(ctx, conn, logger); err != nil {
			logger.WithError(err).Fatal("Failed to apply schema")
		}
		db = conn
		healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	} else {
		logger.Info("DATABASE_URL not set - publish logs stay in JSON files")
	}

	if redisCfg, ok := redis.LoadConfig(); ok {
		if cfg.RedisURL != "" {
			redisCfg.URL = cfg.RedisURL
		}
		client, err := redis.NewUniversalClient(ctx, redisCfg)
		if err != nil {
			logger.WithError(err).Warn("Failed to connect to Redis - event fan-out disabled")
		} else {
			defer func() { _ = client.Close() }()
			pubsub := redis.NewTypedPubSub[logsink.Event](client, logger)
			sinks.Add("redis", logsink.NewRedis(pubsub, cfg.EventChannel))
			healthChecker.AddCheck("redis", monitoring.PingHealthCheck("redis", redis.Pinger{Client: client}, true))
			logger.WithField("channel", cfg.EventChannel).Info("Publishing events to Redis")
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, version.ServiceName, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to create Kafka producer - event stream disabled")
		} else {
			defer func() { _ = producer.Close() }()
			sinks.Add("kafka", logsink.NewKafka(producer, cfg.KafkaTopic))
			healthChecker.AddCheck("kafka", monitoring.PingHealthCheck("kafka", producer, true))
			logger.WithField("topic", cfg.KafkaTopic).Info("Publishing events to Kafka")
		}
	}

	hook := logsink.NewHook(sinks, logging.InfoLevel, 0)
	logger.AddHook(hook)
	defer hook.Close()

	svc := autopost.New(autopost.Options{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Sink:   sinks,
	})

	router := server.SetupServiceRouter(logger, version.ServiceName, healthChecker, metricsCollector)
	svc.Register(ctx, router, hub.ServeWS)

	if cfg.AutoStart {
		svc.Start(ctx, false)
	}

	serverConfig := server.DefaultConfig(version.ServiceName, cfg.Port)
	serverConfig.Port = cfg.Port
	if err := server.Start(ctx, serverConfig, router, logger); err != nil {
		logger.WithError(err).Error("Server exited")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Loops did not finish before shutdown deadline")
	}
	logger.WithField("sinks", sinks.Names()).Info("Crowsnest stopped")
}

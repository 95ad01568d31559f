// cmd/gateway runs the signal engine and serves its output over REST and
// WebSocket.
//
// Samples arrive from any enabled source (websocket feed, Redis pub/sub,
// Kafka). Every sample is enriched, stored in SQLite, cached in Redis and
// pushed to subscribers; setups that reach the alert threshold are persisted,
// broadcast and sent to the configured notifiers.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"traffic-light/config"
	"traffic-light/internal/analysis"
	"traffic-light/internal/gateway"
	"traffic-light/internal/ingest"
	"traffic-light/internal/logger"
	"traffic-light/internal/metrics"
	"traffic-light/internal/model"
	"traffic-light/internal/notification"
	"traffic-light/internal/pipeline"
	redisstore "traffic-light/internal/store/redis"
	sqlitestore "traffic-light/internal/store/sqlite"
	"traffic-light/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (yaml, json or toml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if _, err := logger.Init("traffic-light", cfg.Logging.Level, cfg.Logging.Format); err != nil {
		log.Fatal().Err(err).Msg("init logger")
	}
	lg := logger.Component("main")
	start := time.Now()
	lg.Info().Str("addr", cfg.Server.Addr).Str("metrics_addr", cfg.Server.MetricsAddr).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Metrics & health ----
	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.Server.MetricsAddr, health)
	metricsSrv.Start()

	// ---- SQLite ----
	store, err := sqlitestore.Open(cfg.Storage.SQLitePath, cfg.Storage.BatchSize, cfg.Storage.FlushDelay, m)
	if err != nil {
		lg.Fatal().Err(err).Str("path", cfg.Storage.SQLitePath).Msg("open sqlite")
	}
	defer store.Close()
	health.SetSQLiteOK(true)

	// ---- Redis (optional) ----
	var (
		latest  model.LatestStore
		rdb     *goredis.Client
		sources []ingest.Source
	)
	if cfg.Redis.Enabled {
		rw, err := redisstore.New(redisstore.WriterConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			LatestTTL: cfg.Redis.LatestTTL,
			Metrics:   m,
		})
		if err != nil {
			lg.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("connect redis")
		}
		defer rw.Close()
		rdb = rw.Client()
		health.SetRedisEnabled(true)
		health.CheckRedis(ctx, rdb)

		cb := redisstore.NewCircuitBreaker(cfg.Redis.MaxFailures, cfg.Redis.ResetTimeout)
		buffered := redisstore.NewBufferedWriter(ctx, rw, cb, cfg.Redis.BufferSize, m)
		defer buffered.Wait()
		latest = buffered

		if cfg.Redis.SampleChannel != "" {
			sources = append(sources, ingest.NewRedisSource(rdb, cfg.Redis.SampleChannel, m))
		}
		lg.Info().Str("addr", cfg.Redis.Addr).Msg("redis enabled")
	}
	health.StartLivenessChecker(ctx, rdb, store.DB(), 10*time.Second)

	// ---- Sample sources ----
	if cfg.Feed.URL != "" {
		ws, err := ingest.NewWSSource(ingest.WSConfig{URL: cfg.Feed.URL}, m)
		if err != nil {
			lg.Fatal().Err(err).Msg("feed source")
		}
		ws.OnConnect = func() { health.SetFeedConnected(true) }
		ws.OnDisconnect = func() { health.SetFeedConnected(false) }
		sources = append(sources, ws)
	}
	if cfg.Kafka.Enabled {
		ks, err := ingest.NewKafkaSource(ingest.KafkaConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, m)
		if err != nil {
			lg.Fatal().Err(err).Msg("kafka source")
		}
		sources = append(sources, ks)
	}
	switch {
	case len(sources) == 0:
		lg.Warn().Msg("no sample source configured; serving stored data only")
	case cfg.Feed.URL == "":
		// Broker-backed sources reconnect on their own.
		health.SetFeedConnected(true)
	}

	// ---- Notifications ----
	notifiers := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.Telegram.Enabled {
		tg, err := notification.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, 3, 2*time.Second)
		if err != nil {
			lg.Fatal().Err(err).Msg("telegram notifier")
		}
		notifiers = append(notifiers, tg)
	}
	if cfg.Webhook.URL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.Webhook.URL))
	}
	dispatcher := notification.NewDispatcher(256, m, notifiers...)
	go dispatcher.Run(ctx)

	// ---- Analysis & live delivery ----
	svc := analysis.NewService(store, store, cfg.Gateway.Lookback, m)
	hub := gateway.NewHub(svc, gateway.ClientOptions{
		SendBuffer:   cfg.Gateway.SendBuffer,
		SendTimeout:  cfg.Gateway.SendTimeout,
		PingInterval: cfg.Gateway.PingInterval,
		ReadTimeout:  cfg.Gateway.ReadTimeout,
		MaxMessage:   cfg.Gateway.MaxMessage,
	}, m)

	// ---- Engine & pipeline ----
	rows := make(chan model.MarketData, cfg.Storage.BatchSize*10)
	samples := make(chan model.MarketSample, cfg.Engine.InputBuffer)
	sink := pipeline.NewSink(pipeline.SinkConfig{
		Fanout:  hub,
		Rows:    rows,
		Latest:  latest,
		Setups:  store,
		Notify:  dispatcher,
		Health:  health,
		Metrics: m,
	})
	engine := strategy.NewEngine(cfg.Engine.WindowSize, model.SignalLabel(cfg.Engine.AlertMinStrength), sink)
	if len(cfg.Engine.WarmupSymbols) > 0 {
		replay := ingest.NewReplaySource(store, ingest.ReplayConfig{
			Symbols: cfg.Engine.WarmupSymbols,
			Since:   time.Now().Add(-cfg.Engine.WarmupLookback),
		}, nil)
		if _, err := pipeline.Warmup(ctx, engine, replay); err != nil {
			lg.Warn().Err(err).Msg("warm-up failed, starting with empty windows")
		}
	}
	pipe := pipeline.New(engine, samples, store, rows, sources...)

	pipeDone := make(chan struct{})
	go func() {
		defer close(pipeDone)
		pipe.Run(ctx)
	}()

	// ---- HTTP ----
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	gateway.NewHandlers(ctx, hub, svc, latest, start).RegisterRoutes(e)

	go func() {
		log.Info().Str("component", "http").Str("addr", cfg.Server.Addr).Msg("server listening")
		if err := e.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("component", "http").Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Str("component", "http").Msg("shutdown")
	}
	hub.Shutdown()

	select {
	case <-pipeDone:
	case <-shutdownCtx.Done():
		lg.Warn().Msg("pipeline did not drain before the shutdown deadline")
	}
	if err := metricsSrv.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Str("component", "metrics").Msg("shutdown")
	}
	lg.Info().Dur("uptime", time.Since(start)).Msg("stopped")
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"traffic-light/internal/metrics"
	"traffic-light/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const defaultLatestTTL = 24 * time.Hour

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr      string // Redis address, e.g. "localhost:6379"
	Password  string
	DB        int
	LatestTTL time.Duration
	Metrics   *metrics.Metrics // optional
}

// Writer caches the latest enriched sample per symbol and publishes every
// sample on a per-symbol channel.
type Writer struct {
	client  *goredis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
}

// Client returns the underlying Redis client for health checks and pub/sub.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.LatestTTL
	if ttl <= 0 {
		ttl = defaultLatestTTL
	}
	log.Info().Str("component", "redis").Str("addr", cfg.Addr).Msg("connected")
	return &Writer{client: client, ttl: ttl, metrics: cfg.Metrics}, nil
}

// LatestKey is the key holding the most recent MarketData for symbol.
func LatestKey(symbol string) string { return "latest:md:" + symbol }

// MarketDataChannel is the pub/sub channel carrying MarketData for symbol.
func MarketDataChannel(symbol string) string { return "pub:md:" + symbol }

// SampleChannel is the pub/sub channel raw samples for symbol are expected on.
func SampleChannel(symbol string) string { return "pub:sample:" + symbol }

// PublishMarketData writes md to the latest key and publishes it in one pipeline.
func (w *Writer) PublishMarketData(ctx context.Context, md model.MarketData) error {
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("redis marshal market data: %w", err)
	}

	start := time.Now()
	pipe := w.client.Pipeline()
	pipe.Set(ctx, LatestKey(md.Symbol), data, w.ttl)
	pipe.Publish(ctx, MarketDataChannel(md.Symbol), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline %s: %w", md.Symbol, err)
	}
	if w.metrics != nil {
		w.metrics.RedisWriteDur.Observe(time.Since(start).Seconds())
	}
	return nil
}

// Close closes the Redis connection.
func (w *Writer) Close() error {
	return w.client.Close()
}

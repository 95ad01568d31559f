// Package config loads service configuration from an optional YAML file and
// TRAFFIC_LIGHT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"traffic-light/internal/model"
)

// EnvPrefix is prepended to every environment override, e.g.
// TRAFFIC_LIGHT_REDIS_ADDR overrides redis.addr.
const EnvPrefix = "TRAFFIC_LIGHT"

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// GatewayConfig holds live subscriber connection settings.
type GatewayConfig struct {
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
	SendBuffer   int           `mapstructure:"send_buffer"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	MaxMessage   int64         `mapstructure:"max_message_bytes"`
	Lookback     time.Duration `mapstructure:"lookback"`
}

// EngineConfig holds signal engine settings.
type EngineConfig struct {
	WindowSize       int    `mapstructure:"window_size"`
	AlertMinStrength string `mapstructure:"alert_min_strength"`
	InputBuffer      int    `mapstructure:"input_buffer"`

	// WarmupSymbols are restored from storage on startup so their windows
	// are full before live samples arrive. Empty disables warm-up.
	WarmupSymbols  []string      `mapstructure:"warmup_symbols"`
	WarmupLookback time.Duration `mapstructure:"warmup_lookback"`
}

// StorageConfig holds SQLite persistence settings.
type StorageConfig struct {
	SQLitePath string        `mapstructure:"sqlite_path"`
	BatchSize  int           `mapstructure:"batch_size"`
	FlushDelay time.Duration `mapstructure:"flush_delay"`
}

// RedisConfig holds latest-value cache and pub/sub settings.
type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Addr          string        `mapstructure:"addr"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	SampleChannel string        `mapstructure:"sample_channel"`
	LatestTTL     time.Duration `mapstructure:"latest_ttl"`
	MaxFailures   int           `mapstructure:"breaker_max_failures"`
	ResetTimeout  time.Duration `mapstructure:"breaker_reset_timeout"`
	BufferSize    int           `mapstructure:"breaker_buffer_size"`
}

// KafkaConfig holds the optional Kafka sample source.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// FeedConfig holds the optional WebSocket sample feed.
type FeedConfig struct {
	URL string `mapstructure:"url"`
}

// TelegramConfig holds setup alert notification settings.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// WebhookConfig holds the optional HTTP alert sink.
type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from path (optional; "" skips the file) and the
// environment, then validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// Lists from the environment arrive as one comma-separated string.
	cfg.Kafka.Brokers = splitList(strings.Join(cfg.Kafka.Brokers, ","))
	cfg.Engine.WarmupSymbols = splitList(strings.Join(cfg.Engine.WarmupSymbols, ","))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("gateway.send_timeout", "500ms")
	v.SetDefault("gateway.send_buffer", 256)
	v.SetDefault("gateway.ping_interval", "30s")
	v.SetDefault("gateway.read_timeout", "60s")
	v.SetDefault("gateway.max_message_bytes", 4096)
	v.SetDefault("gateway.lookback", "24h")

	v.SetDefault("engine.window_size", 500)
	v.SetDefault("engine.alert_min_strength", "MODERATE")
	v.SetDefault("engine.input_buffer", 1024)
	v.SetDefault("engine.warmup_symbols", []string{})
	v.SetDefault("engine.warmup_lookback", "1h")

	v.SetDefault("storage.sqlite_path", "data/traffic_light.db")
	v.SetDefault("storage.batch_size", 100)
	v.SetDefault("storage.flush_delay", "200ms")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.sample_channel", "pub:sample:*")
	v.SetDefault("redis.latest_ttl", "24h")
	v.SetDefault("redis.breaker_max_failures", 5)
	v.SetDefault("redis.breaker_reset_timeout", "10s")
	v.SetDefault("redis.breaker_buffer_size", 10000)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "market.samples")
	v.SetDefault("kafka.group_id", "traffic-light")

	v.SetDefault("feed.url", "")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")

	v.SetDefault("webhook.url", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if c.Gateway.SendTimeout <= 0 {
		return fmt.Errorf("gateway.send_timeout must be positive")
	}
	if c.Gateway.SendBuffer < 1 {
		return fmt.Errorf("gateway.send_buffer must be at least 1")
	}
	if c.Gateway.PingInterval <= 0 || c.Gateway.ReadTimeout <= c.Gateway.PingInterval {
		return fmt.Errorf("gateway.read_timeout must exceed gateway.ping_interval")
	}
	if c.Gateway.Lookback < time.Minute {
		return fmt.Errorf("gateway.lookback must be at least 1 minute")
	}

	if c.Engine.WindowSize < 51 {
		return fmt.Errorf("engine.window_size must be at least 51 to fit SMA50 twice")
	}
	if len(c.Engine.WarmupSymbols) > 0 && c.Engine.WarmupLookback <= 0 {
		return fmt.Errorf("engine.warmup_lookback must be positive when warmup_symbols is set")
	}
	if _, ok := model.ParseSignalLabel(c.Engine.AlertMinStrength); !ok {
		return fmt.Errorf("engine.alert_min_strength must be one of: NEUTRAL, WEAK, MODERATE, STRONG")
	}

	if c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path is required")
	}
	if c.Storage.BatchSize < 1 {
		return fmt.Errorf("storage.batch_size must be at least 1")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, console")
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

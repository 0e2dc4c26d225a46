// Package config defines the top-level configuration for tradesim and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/tradesim/internal/costmodel"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADESIM_* environment variables.
type Config struct {
	Feed      FeedConfig       `toml:"feed"`
	Book      BookConfig       `toml:"book"`
	CostModel costmodel.Params `toml:"cost_model"`
	Estimate  EstimateConfig   `toml:"estimate"`
	Replay    ReplayConfig     `toml:"replay"`
	Redis     RedisConfig      `toml:"redis"`
	S3        S3Config         `toml:"s3"`
	Server    ServerConfig     `toml:"server"`
	Publish   PublishConfig    `toml:"publish"`
	Notify    NotifyConfig     `toml:"notify"`
	Mode      string           `toml:"mode"`
	LogLevel  string           `toml:"log_level"`
}

// FeedConfig describes the streaming endpoint and its reconnect policy.
type FeedConfig struct {
	URL              string             `toml:"url"`
	Symbol           string             `toml:"symbol"`
	PingInterval     duration           `toml:"ping_interval"`
	PongTimeout      duration           `toml:"pong_timeout"`
	HandshakeTimeout duration           `toml:"handshake_timeout"`
	InitialDelay     duration           `toml:"initial_delay"`
	MaxDelay         duration           `toml:"max_delay"`
	Multiplier       float64            `toml:"multiplier"`
	LatencyWindow    int                `toml:"latency_window"`
	Subscription     SubscriptionConfig `toml:"subscription"`
}

// SubscriptionConfig is the feed-specific subscribe request. Raw, when set,
// is sent verbatim instead of the op/channel form.
type SubscriptionConfig struct {
	Op      string `toml:"op"`
	Channel string `toml:"channel"`
	Raw     string `toml:"raw"`
}

// BookConfig holds order-book behaviour.
type BookConfig struct {
	StaleThreshold duration `toml:"stale_threshold"`
	// TouchPolicy is "receive" or "mutation".
	TouchPolicy    string   `toml:"touch_policy"`
	SnapshotDepth  int      `toml:"snapshot_depth"`
}

// EstimateConfig holds the default inputs of a cost estimate.
type EstimateConfig struct {
	Size       float64 `toml:"size"`
	Volatility float64 `toml:"volatility"`
	FeeTier    float64 `toml:"fee_tier"`
}

// ReplayConfig holds offline playback settings.
type ReplayConfig struct {
	// Source is a local path or an s3://bucket/key URL.
	Source          string  `toml:"source"`
	Speed           float64 `toml:"speed"`
	Loop            bool    `toml:"loop"`
	StartPaused     bool    `toml:"start_paused"`
	// GenerateMissing writes synthetic samples when a local source is absent.
	GenerateMissing bool    `toml:"generate_missing"`
}

// RedisConfig holds Redis connection parameters for the book mirror.
type RedisConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	TLSEnabled  bool     `toml:"tls_enabled"`
	SnapshotTTL duration `toml:"snapshot_ttl"`
	LeaseTTL    duration `toml:"lease_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// PublishConfig controls the snapshot fan-out cadence.
type PublishConfig struct {
	Interval    duration `toml:"interval"`
	SinkTimeout duration `toml:"sink_timeout"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			URL:              "wss://ws.gomarket-cpp.goquant.io/ws/l2-orderbook/okx/BTC-USDT-SWAP",
			Symbol:           "BTC-USDT-SWAP",
			PingInterval:     duration{20 * time.Second},
			PongTimeout:      duration{60 * time.Second},
			HandshakeTimeout: duration{15 * time.Second},
			InitialDelay:     duration{2 * time.Second},
			MaxDelay:         duration{30 * time.Second},
			Multiplier:       1.5,
			LatencyWindow:    100,
			Subscription: SubscriptionConfig{
				Op:      "subscribe",
				Channel: "l2-orderbook",
			},
		},
		Book: BookConfig{
			StaleThreshold: duration{10 * time.Second},
			TouchPolicy:    "receive",
			SnapshotDepth:  20,
		},
		CostModel: costmodel.DefaultParams(),
		Estimate: EstimateConfig{
			Size:       100,
			Volatility: 0.3,
			FeeTier:    0.001,
		},
		Replay: ReplayConfig{
			Source:          "test_data.json",
			Speed:           1,
			Loop:            true,
			GenerateMissing: true,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PoolSize:    10,
			MaxRetries:  3,
			SnapshotTTL: duration{30 * time.Second},
			LeaseTTL:    duration{15 * time.Second},
		},
		S3: S3Config{
			Region:         "us-east-1",
			UseSSL:         true,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    ":8080",
		},
		Publish: PublishConfig{
			Interval:    duration{500 * time.Millisecond},
			SinkTimeout: duration{2 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"book_stale", "book_fresh"},
		},
		Mode:     "live",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"live":   true,
	"replay": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validTouchPolicies = map[string]bool{
	"receive":  true,
	"mutation": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found. Cost-model coefficients are
// not checked; the model falls back on non-finite results instead.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: live, replay)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed
	if strings.TrimSpace(c.Feed.Symbol) == "" {
		errs = append(errs, "feed: symbol must not be empty")
	}
	if strings.EqualFold(c.Mode, "live") {
		if !strings.HasPrefix(c.Feed.URL, "ws://") && !strings.HasPrefix(c.Feed.URL, "wss://") {
			errs = append(errs, fmt.Sprintf("feed: url must start with ws:// or wss://, got %q", c.Feed.URL))
		}
		if c.Feed.InitialDelay.Duration <= 0 {
			errs = append(errs, "feed: initial_delay must be > 0")
		}
		if c.Feed.MaxDelay.Duration < c.Feed.InitialDelay.Duration {
			errs = append(errs, "feed: max_delay must be >= initial_delay")
		}
		if c.Feed.Multiplier < 1 {
			errs = append(errs, "feed: multiplier must be >= 1")
		}
		if c.Feed.PingInterval.Duration > 0 && c.Feed.PongTimeout.Duration > 0 &&
			c.Feed.PongTimeout.Duration <= c.Feed.PingInterval.Duration {
			errs = append(errs, "feed: pong_timeout must exceed ping_interval")
		}
		if c.Feed.Subscription.Raw == "" && c.Feed.Subscription.Op == "" {
			errs = append(errs, "feed: subscription.op or subscription.raw must be set")
		}
	}
	if c.Feed.LatencyWindow < 1 {
		errs = append(errs, "feed: latency_window must be >= 1")
	}

	// Book
	if c.Book.StaleThreshold.Duration <= 0 {
		errs = append(errs, "book: stale_threshold must be > 0")
	}
	if !validTouchPolicies[strings.ToLower(c.Book.TouchPolicy)] {
		errs = append(errs, fmt.Sprintf("book: unknown touch_policy %q (valid: receive, mutation)", c.Book.TouchPolicy))
	}
	if c.Book.SnapshotDepth < 1 {
		errs = append(errs, "book: snapshot_depth must be >= 1")
	}

	// Replay
	if strings.EqualFold(c.Mode, "replay") {
		if c.Replay.Source == "" {
			errs = append(errs, "replay: source must not be empty in replay mode")
		}
		if strings.HasPrefix(c.Replay.Source, "s3://") && c.S3.Endpoint == "" && c.S3.Region == "" {
			errs = append(errs, "replay: s3 source requires [s3] endpoint or region")
		}
	}
	if !(c.Replay.Speed > 0) {
		errs = append(errs, "replay: speed must be > 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LeaseTTL.Duration < time.Second {
			errs = append(errs, "redis: lease_ttl must be >= 1s")
		}
	}

	// Server
	if c.Server.Enabled && c.Server.Addr == "" {
		errs = append(errs, "server: addr must not be empty")
	}

	// Publish
	if c.Publish.Interval.Duration <= 0 {
		errs = append(errs, "publish: interval must be > 0")
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

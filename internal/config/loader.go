package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TRADESIM_"

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADESIM_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADESIM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Feed ──
	setStr(&cfg.Feed.URL, "FEED_URL")
	setStr(&cfg.Feed.Symbol, "FEED_SYMBOL")
	setDuration(&cfg.Feed.PingInterval, "FEED_PING_INTERVAL")
	setDuration(&cfg.Feed.PongTimeout, "FEED_PONG_TIMEOUT")
	setDuration(&cfg.Feed.HandshakeTimeout, "FEED_HANDSHAKE_TIMEOUT")
	setDuration(&cfg.Feed.InitialDelay, "FEED_INITIAL_DELAY")
	setDuration(&cfg.Feed.MaxDelay, "FEED_MAX_DELAY")
	setFloat64(&cfg.Feed.Multiplier, "FEED_MULTIPLIER")
	setInt(&cfg.Feed.LatencyWindow, "FEED_LATENCY_WINDOW")
	setStr(&cfg.Feed.Subscription.Op, "FEED_SUBSCRIPTION_OP")
	setStr(&cfg.Feed.Subscription.Channel, "FEED_SUBSCRIPTION_CHANNEL")
	setStr(&cfg.Feed.Subscription.Raw, "FEED_SUBSCRIPTION_RAW")

	// ── Book ──
	setDuration(&cfg.Book.StaleThreshold, "BOOK_STALE_THRESHOLD")
	setStr(&cfg.Book.TouchPolicy, "BOOK_TOUCH_POLICY")
	setInt(&cfg.Book.SnapshotDepth, "BOOK_SNAPSHOT_DEPTH")

	// ── Cost model ──
	setFloat64(&cfg.CostModel.ImpactGamma, "IMPACT_GAMMA")
	setFloat64(&cfg.CostModel.ImpactEta, "IMPACT_ETA")
	setFloat64(&cfg.CostModel.SlippageSlope, "SLIPPAGE_SLOPE")
	setFloat64(&cfg.CostModel.SlippageIntercept, "SLIPPAGE_INTERCEPT")
	setFloat64(&cfg.CostModel.DefaultFeeTier, "COST_MODEL_DEFAULT_FEE_TIER")
	setFloat64(&cfg.CostModel.MakerTakerCoefficient, "MAKER_TAKER_COEFFICIENT")
	setFloat64(&cfg.CostModel.MakerTakerMidpoint, "MAKER_TAKER_MIDPOINT")

	// ── Estimate ──
	setFloat64(&cfg.Estimate.Size, "DEFAULT_QUANTITY")
	setFloat64(&cfg.Estimate.Volatility, "DEFAULT_VOLATILITY")
	setFloat64(&cfg.Estimate.FeeTier, "DEFAULT_FEE_TIER")

	// ── Replay ──
	setStr(&cfg.Replay.Source, "REPLAY_SOURCE")
	setFloat64(&cfg.Replay.Speed, "REPLAY_SPEED")
	setBool(&cfg.Replay.Loop, "REPLAY_LOOP")
	setBool(&cfg.Replay.StartPaused, "REPLAY_START_PAUSED")
	setBool(&cfg.Replay.GenerateMissing, "REPLAY_GENERATE_MISSING")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.SnapshotTTL, "REDIS_SNAPSHOT_TTL")
	setDuration(&cfg.Redis.LeaseTTL, "REDIS_LEASE_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "SERVER_ENABLED")
	setStr(&cfg.Server.Addr, "SERVER_ADDR")
	setStr(&cfg.Server.APIKey, "SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")

	// ── Publish ──
	setDuration(&cfg.Publish.Interval, "PUBLISH_INTERVAL")
	setDuration(&cfg.Publish.SinkTimeout, "PUBLISH_SINK_TIMEOUT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MODE")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty. Keys are given without EnvPrefix.
// ---------------------------------------------------------------------------

func lookup(key string) string { return os.Getenv(EnvPrefix + key) }

func setStr(dst *string, key string) {
	if v := lookup(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := lookup(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := lookup(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := lookup(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := lookup(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := lookup(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

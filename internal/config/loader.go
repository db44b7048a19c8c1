package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBWATCH_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been
// validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Polymarket.GammaHost, "ARBWATCH_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "ARBWATCH_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.WsHost, "ARBWATCH_POLYMARKET_WS_HOST")

	setInt(&cfg.RateLimit.DiscoveryLimit, "ARBWATCH_RATE_LIMIT_DISCOVERY_LIMIT")
	setInt(&cfg.RateLimit.BookLimit, "ARBWATCH_RATE_LIMIT_BOOK_LIMIT")
	setDuration(&cfg.RateLimit.Window, "ARBWATCH_RATE_LIMIT_WINDOW")
	setDuration(&cfg.RateLimit.MinSpacing, "ARBWATCH_RATE_LIMIT_MIN_SPACING")
	setDuration(&cfg.RateLimit.RequestTimeout, "ARBWATCH_RATE_LIMIT_REQUEST_TIMEOUT")

	setInt(&cfg.Stream.MaxReconnectAttempts, "ARBWATCH_STREAM_MAX_RECONNECT_ATTEMPTS")
	setDuration(&cfg.Stream.ConnectTimeout, "ARBWATCH_STREAM_CONNECT_TIMEOUT")
	setDuration(&cfg.Stream.HeartbeatInterval, "ARBWATCH_STREAM_HEARTBEAT_INTERVAL")
	setDuration(&cfg.Stream.StaleThreshold, "ARBWATCH_STREAM_STALE_THRESHOLD")

	setDuration(&cfg.Discovery.Interval, "ARBWATCH_DISCOVERY_INTERVAL")
	setInt(&cfg.Discovery.PageSize, "ARBWATCH_DISCOVERY_PAGE_SIZE")
	setFloat64(&cfg.Discovery.MinLiquidity, "ARBWATCH_DISCOVERY_MIN_LIQUIDITY")
	setFloat64(&cfg.Discovery.MinVolume24h, "ARBWATCH_DISCOVERY_MIN_VOLUME_24H")

	setInt(&cfg.Tiering.TierASize, "ARBWATCH_TIERING_TIER_A_SIZE")

	setFloat64(&cfg.Detector.Threshold, "ARBWATCH_DETECTOR_THRESHOLD")
	setFloat64(&cfg.Detector.FeeBuffer, "ARBWATCH_DETECTOR_FEE_BUFFER")
	setFloat64(&cfg.Detector.PreheatMargin, "ARBWATCH_DETECTOR_PREHEAT_MARGIN")
	setFloat64(&cfg.Detector.ResendDelta, "ARBWATCH_DETECTOR_RESEND_DELTA")
	setFloat64(&cfg.Detector.DepthFloor, "ARBWATCH_DETECTOR_DEPTH_FLOOR")
	setDuration(&cfg.Detector.DebounceWindow, "ARBWATCH_DETECTOR_DEBOUNCE_WINDOW")
	setDuration(&cfg.Detector.Cooldown, "ARBWATCH_DETECTOR_COOLDOWN")
	setDuration(&cfg.Detector.BurstDuration, "ARBWATCH_DETECTOR_BURST_DURATION")
	setDuration(&cfg.Detector.TierAInterval, "ARBWATCH_DETECTOR_TIER_A_INTERVAL")
	setDuration(&cfg.Detector.TierBInterval, "ARBWATCH_DETECTOR_TIER_B_INTERVAL")

	setStr(&cfg.Postgres.DSN, "ARBWATCH_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBWATCH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBWATCH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBWATCH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBWATCH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBWATCH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBWATCH_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "ARBWATCH_POSTGRES_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "ARBWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBWATCH_REDIS_DB")

	setStr(&cfg.Notify.TelegramToken, "ARBWATCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBWATCH_NOTIFY_DISCORD_WEBHOOK_URL")
	setBool(&cfg.Notify.SkipLowDepth, "ARBWATCH_NOTIFY_SKIP_LOW_DEPTH")

	setStr(&cfg.Mode, "ARBWATCH_MODE")
	setStr(&cfg.LogLevel, "ARBWATCH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

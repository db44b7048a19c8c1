// Package config defines the top-level configuration for the arbitrage
// watcher and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by ARBWATCH_* environment
// variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	RateLimit  RateLimitConfig  `toml:"rate_limit"`
	Stream     StreamConfig     `toml:"stream"`
	Discovery  DiscoveryConfig  `toml:"discovery"`
	Tiering    TieringConfig    `toml:"tiering"`
	Detector   DetectorConfig   `toml:"detector"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds venue API endpoints.
type PolymarketConfig struct {
	GammaHost string `toml:"gamma_host"`
	ClobHost  string `toml:"clob_host"`
	WsHost    string `toml:"ws_host"`
}

// RateLimitConfig holds the request budgets for the two pull clients. Each
// endpoint gets its own sliding window; MinSpacing paces consecutive
// requests independently of the window.
type RateLimitConfig struct {
	Window         duration `toml:"window"`
	DiscoveryLimit int      `toml:"discovery_limit"`
	BookLimit      int      `toml:"book_limit"`
	MinSpacing     duration `toml:"min_spacing"`
	BackoffBase    duration `toml:"backoff_base"`
	BackoffCap     duration `toml:"backoff_cap"`
	RequestTimeout duration `toml:"request_timeout"`
}

// StreamConfig holds the streaming client parameters.
type StreamConfig struct {
	ConnectTimeout       duration `toml:"connect_timeout"`
	HeartbeatInterval    duration `toml:"heartbeat_interval"`
	StaleThreshold       duration `toml:"stale_threshold"`
	StaleCheckInterval   duration `toml:"stale_check_interval"`
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts"`
	ReconnectBase        duration `toml:"reconnect_base"`
	ReconnectCap         duration `toml:"reconnect_cap"`
	ReconnectJitter      duration `toml:"reconnect_jitter"`
	CoalesceDelay        duration `toml:"coalesce_delay"`
}

// DiscoveryConfig holds market discovery parameters.
type DiscoveryConfig struct {
	Interval     duration `toml:"interval"`
	PageSize     int      `toml:"page_size"`
	MinLiquidity float64  `toml:"min_liquidity"`
	MinVolume24h float64  `toml:"min_volume_24h"`
}

// TieringConfig holds scoring weights and tier sizing.
type TieringConfig struct {
	TierASize int `toml:"tier_a_size"`

	WeightVolume        float64 `toml:"weight_volume"`
	WeightLiquidity     float64 `toml:"weight_liquidity"`
	WeightDepth         float64 `toml:"weight_depth"`
	WeightNearThreshold float64 `toml:"weight_near_threshold"`
	PenaltySpread       float64 `toml:"penalty_spread"`
	PenaltyStaleness    float64 `toml:"penalty_staleness"`

	NormVolume        float64 `toml:"norm_volume"`
	NormLiquidity     float64 `toml:"norm_liquidity"`
	NormDepth         float64 `toml:"norm_depth"`
	NormNearThreshold float64 `toml:"norm_near_threshold"`
	NormSpread        float64 `toml:"norm_spread"`
}

// DetectorConfig holds the signal engine parameters supplied by the
// settings collaborator.
type DetectorConfig struct {
	Threshold     float64 `toml:"threshold"`
	FeeBuffer     float64 `toml:"fee_buffer"`
	PreheatMargin float64 `toml:"preheat_margin"`
	ResendDelta   float64 `toml:"resend_delta"`
	DepthFloor    float64 `toml:"depth_floor"`

	DebounceWindow duration `toml:"debounce_window"`
	Cooldown       duration `toml:"cooldown"`
	BurstDuration  duration `toml:"burst_duration"`
	EdgeWindow     duration `toml:"edge_window"`

	TierAInterval duration `toml:"tier_a_interval"`
	TierBInterval duration `toml:"tier_b_interval"`

	StalenessAfter      duration `toml:"staleness_after"`
	StalenessPenaltyMax float64  `toml:"staleness_penalty_max"`
	StalenessStep       float64  `toml:"staleness_step"`
	StalenessDecay      float64  `toml:"staleness_decay"`
}

// PostgresConfig holds PostgreSQL connection parameters. Leave DSN and
// Host empty to run without persistence.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Leave Addr empty to run
// without the book cache and signal bus.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
}

// NotifyConfig holds notification channel credentials and policy.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	SkipLowDepth      bool   `toml:"skip_low_depth"`
}

// ConnString returns the connection string, preferring an explicit DSN
// over the individual fields. Empty when persistence is not configured.
func (p PostgresConfig) ConnString() string {
	if p.DSN != "" {
		return p.DSN
	}
	if p.Host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder
// can parse duration strings like "5m" or "30s".
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
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost: "https://gamma-api.polymarket.com",
			ClobHost:  "https://clob.polymarket.com",
			WsHost:    "wss://ws-subscriptions-clob.polymarket.com/ws/market",
		},
		RateLimit: RateLimitConfig{
			Window:         duration{10 * time.Second},
			DiscoveryLimit: 20,
			BookLimit:      80,
			MinSpacing:     duration{50 * time.Millisecond},
			BackoffBase:    duration{500 * time.Millisecond},
			BackoffCap:     duration{30 * time.Second},
			RequestTimeout: duration{4 * time.Second},
		},
		Stream: StreamConfig{
			ConnectTimeout:       duration{15 * time.Second},
			HeartbeatInterval:    duration{10 * time.Second},
			StaleThreshold:       duration{45 * time.Second},
			StaleCheckInterval:   duration{15 * time.Second},
			MaxReconnectAttempts: 8,
			ReconnectBase:        duration{time.Second},
			ReconnectCap:         duration{60 * time.Second},
			ReconnectJitter:      duration{500 * time.Millisecond},
			CoalesceDelay:        duration{250 * time.Millisecond},
		},
		Discovery: DiscoveryConfig{
			Interval:     duration{5 * time.Minute},
			PageSize:     100,
			MinLiquidity: 1000,
			MinVolume24h: 500,
		},
		Tiering: TieringConfig{
			TierASize:           25,
			WeightVolume:        0.30,
			WeightLiquidity:     0.20,
			WeightDepth:         0.20,
			WeightNearThreshold: 0.30,
			PenaltySpread:       0.15,
			PenaltyStaleness:    0.15,
			NormVolume:          50_000,
			NormLiquidity:       25_000,
			NormDepth:           2_000,
			NormNearThreshold:   5,
			NormSpread:          0.10,
		},
		Detector: DetectorConfig{
			Threshold:           0.01,
			FeeBuffer:           0.002,
			PreheatMargin:       0.005,
			ResendDelta:         0.005,
			DepthFloor:          50,
			DebounceWindow:      duration{3 * time.Second},
			Cooldown:            duration{60 * time.Second},
			BurstDuration:       duration{2 * time.Minute},
			EdgeWindow:          duration{30 * time.Second},
			TierAInterval:       duration{5 * time.Second},
			TierBInterval:       duration{45 * time.Second},
			StalenessAfter:      duration{30 * time.Second},
			StalenessPenaltyMax: 1.0,
			StalenessStep:       0.25,
			StalenessDecay:      0.10,
		},
		Postgres: PostgresConfig{
			Port:          5432,
			Database:      "arbwatch",
			User:          "arbwatch",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
		},
		Mode:     "watch",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"watch":      true,
	"discover":   true,
	"streamtest": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and
// returns a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: watch, discover, streamtest)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.WsHost == "" {
		errs = append(errs, "polymarket: ws_host must not be empty")
	}

	if c.RateLimit.Window.Duration <= 0 {
		errs = append(errs, "rate_limit: window must be positive")
	}
	if c.RateLimit.DiscoveryLimit < 1 {
		errs = append(errs, "rate_limit: discovery_limit must be >= 1")
	}
	if c.RateLimit.BookLimit < 1 {
		errs = append(errs, "rate_limit: book_limit must be >= 1")
	}
	if c.RateLimit.RequestTimeout.Duration >= c.Detector.TierAInterval.Duration {
		errs = append(errs, "rate_limit: request_timeout must be shorter than detector.tier_a_interval")
	}

	if c.Stream.MaxReconnectAttempts < 1 {
		errs = append(errs, "stream: max_reconnect_attempts must be >= 1")
	}
	if c.Stream.HeartbeatInterval.Duration <= 0 {
		errs = append(errs, "stream: heartbeat_interval must be positive")
	}
	if c.Stream.StaleThreshold.Duration <= c.Stream.HeartbeatInterval.Duration {
		errs = append(errs, "stream: stale_threshold must exceed heartbeat_interval")
	}

	if c.Discovery.PageSize < 1 {
		errs = append(errs, "discovery: page_size must be >= 1")
	}

	if c.Tiering.TierASize < 1 {
		errs = append(errs, "tiering: tier_a_size must be >= 1")
	}

	if c.Detector.Threshold <= 0 {
		errs = append(errs, "detector: threshold must be > 0")
	}
	if c.Detector.FeeBuffer < 0 {
		errs = append(errs, "detector: fee_buffer must be >= 0")
	}
	if c.Detector.ResendDelta <= 0 {
		errs = append(errs, "detector: resend_delta must be > 0")
	}
	if c.Detector.TierAInterval.Duration <= 0 || c.Detector.TierBInterval.Duration <= 0 {
		errs = append(errs, "detector: tier intervals must be positive")
	}
	if c.Detector.TierAInterval.Duration >= c.Detector.TierBInterval.Duration {
		errs = append(errs, "detector: tier_a_interval must be shorter than tier_b_interval")
	}

	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arbwatch/arbwatch/internal/cache/redis"
	"github.com/arbwatch/arbwatch/internal/config"
	"github.com/arbwatch/arbwatch/internal/domain"
	"github.com/arbwatch/arbwatch/internal/notify"
	"github.com/arbwatch/arbwatch/internal/platform/polymarket"
	"github.com/arbwatch/arbwatch/internal/store/postgres"
	"github.com/arbwatch/arbwatch/internal/tiering"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Gamma  *polymarket.GammaClient
	Books  *polymarket.BookClient
	Stream *polymarket.StreamClient

	Overrides *tiering.Overrides

	// Optional: nil when persistence is not configured.
	Watchlist domain.WatchlistStore
	Signals   domain.SignalStore

	// Optional: nil when Redis is not configured.
	BookCache domain.OrderbookCache
	SignalBus domain.SignalBus

	Notifier *notify.Notifier
}

// Wire constructs the concrete dependency implementations and returns them
// with a cleanup function releasing resources in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Overrides: tiering.NewOverrides()}

	// --- Pull clients -----------------------------------------------------
	discoveryLimiter := polymarket.NewRateLimiter(polymarket.LimiterConfig{
		Limit:       cfg.RateLimit.DiscoveryLimit,
		Window:      cfg.RateLimit.Window.Duration,
		MinSpacing:  cfg.RateLimit.MinSpacing.Duration,
		BackoffBase: cfg.RateLimit.BackoffBase.Duration,
		BackoffCap:  cfg.RateLimit.BackoffCap.Duration,
	})
	bookLimiter := polymarket.NewRateLimiter(polymarket.LimiterConfig{
		Limit:       cfg.RateLimit.BookLimit,
		Window:      cfg.RateLimit.Window.Duration,
		MinSpacing:  cfg.RateLimit.MinSpacing.Duration,
		BackoffBase: cfg.RateLimit.BackoffBase.Duration,
		BackoffCap:  cfg.RateLimit.BackoffCap.Duration,
	})

	deps.Gamma = polymarket.NewGammaClient(
		cfg.Polymarket.GammaHost, discoveryLimiter,
		cfg.Discovery.PageSize, cfg.RateLimit.RequestTimeout.Duration, logger)
	deps.Books = polymarket.NewBookClient(
		cfg.Polymarket.ClobHost, bookLimiter,
		cfg.RateLimit.RequestTimeout.Duration, logger)

	// --- Stream -----------------------------------------------------------
	deps.Stream = polymarket.NewStreamClient(polymarket.StreamConfig{
		URL:                  cfg.Polymarket.WsHost,
		ConnectTimeout:       cfg.Stream.ConnectTimeout.Duration,
		HeartbeatInterval:    cfg.Stream.HeartbeatInterval.Duration,
		StaleThreshold:       cfg.Stream.StaleThreshold.Duration,
		StaleCheckInterval:   cfg.Stream.StaleCheckInterval.Duration,
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
		ReconnectBase:        cfg.Stream.ReconnectBase.Duration,
		ReconnectCap:         cfg.Stream.ReconnectCap.Duration,
		ReconnectJitter:      cfg.Stream.ReconnectJitter.Duration,
		CoalesceDelay:        cfg.Stream.CoalesceDelay.Duration,
	}, logger)
	closers = append(closers, func() { deps.Stream.Close() })

	// --- PostgreSQL (optional) --------------------------------------------
	if dsn := cfg.Postgres.ConnString(); dsn != "" {
		pgClient, err := postgres.NewClient(ctx, postgres.ClientConfig{
			DSN:           dsn,
			MaxConns:      int32(cfg.Postgres.PoolMaxConns),
			MinConns:      int32(cfg.Postgres.PoolMinConns),
			RunMigrations: cfg.Postgres.RunMigrations,
		}, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, func() { pgClient.Close() })
		deps.Watchlist = postgres.NewWatchlistStore(pgClient)
		deps.Signals = postgres.NewSignalStore(pgClient)
	} else {
		logger.Info("running without persistence, overrides will not survive restarts")
	}

	// --- Redis (optional) -------------------------------------------------
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.NewClient(ctx, redis.Options{
			Addr:          cfg.Redis.Addr,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			PoolSize:      cfg.Redis.PoolSize,
			MaxRetries:    cfg.Redis.MaxRetries,
			BookTTL:       2 * time.Minute,
			SignalChannel: "arbwatch:signals",
			StreamKey:     "arbwatch:signals:stream",
			StreamMaxLen:  10_000,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { redisClient.Close() })
		deps.BookCache = redis.NewOrderbookCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	} else {
		logger.Info("running without redis, book mirror and signal bus disabled")
	}

	// --- Notifications ----------------------------------------------------
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) == 0 {
		logger.Info("no notification channels configured, signals go to the log only")
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.SkipLowDepth, logger)

	return deps, cleanup, nil
}

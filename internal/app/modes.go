package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/arbwatch/arbwatch/internal/engine"
	"github.com/arbwatch/arbwatch/internal/feed"
	"github.com/arbwatch/arbwatch/internal/pipeline"
	"github.com/arbwatch/arbwatch/internal/tiering"
)

// scanJitterFrac spreads per-market scan loops so they do not align into
// request bursts.
const scanJitterFrac = 0.10

// WatchMode runs the full pipeline: discovery and tiering refresh, per-tier
// scan loops, the streamed fast path, and signal dispatch.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	eng := engine.New(a.engineParams(), deps.Books, a.logger)
	refresher := pipeline.NewRefresher(
		a.refresherConfig(),
		deps.Gamma, eng, deps.Overrides, deps.Stream, deps.Watchlist,
		a.logger)
	streamFeed := feed.New(deps.Stream.Events(), eng, deps.BookCache, a.logger)
	dispatcher := pipeline.NewDispatcher(
		eng.Signals(), deps.Notifier, deps.SignalBus, deps.Signals, a.logger)

	// A failed first connect leaves the watcher pull-only; the reconnect
	// path takes over once a session has been established and drops.
	if err := deps.Stream.Connect(ctx); err != nil {
		a.logger.Warn("initial stream connect failed, running on pull data",
			slog.String("error", err.Error()))
	}

	orch := pipeline.NewOrchestrator(a.logger)
	orch.Add("engine", eng.Run)
	orch.Add("refresher", refresher.Run)
	orch.Add("stream_feed", streamFeed.Run)
	orch.Add("dispatcher", dispatcher.Run)
	return orch.Run(ctx)
}

// DiscoverMode runs one discovery pass and prints the scored watch set.
// Useful for tuning filters and weights before going live.
func (a *App) DiscoverMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting discover mode")

	markets, err := deps.Gamma.ListMarkets(ctx)
	if err != nil {
		return fmt.Errorf("app: discover: %w", err)
	}

	cfg := a.refresherConfig()
	type scored struct {
		id, question string
		score        float64
	}
	var rows []scored
	for _, m := range markets {
		if !tiering.PassesFilters(m, cfg.MinLiquidity, cfg.MinVolume24h) {
			continue
		}
		s := tiering.Score(tiering.ScoreInput{
			Volume24h: m.Volume24h,
			Liquidity: m.Liquidity,
		}, cfg.ScoreParams)
		rows = append(rows, scored{id: m.ID, question: m.Question, score: s})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].score != rows[j].score {
			return rows[i].score > rows[j].score
		}
		return rows[i].id < rows[j].id
	})

	for i, r := range rows {
		tier := "B"
		if i < cfg.TierASize {
			tier = "A"
		}
		fmt.Printf("%-4s %-10s %8.4f  %s\n", tier, r.id, r.score, r.question)
	}
	a.logger.Info("discovery pass complete",
		slog.Int("discovered", len(markets)),
		slog.Int("qualified", len(rows)))
	return nil
}

// StreamTestMode subscribes the most active markets and reports how many
// events arrive inside the test window. A zero count with a connected
// stream points at a subscription problem rather than connectivity.
func (a *App) StreamTestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting stream test mode")

	markets, err := deps.Gamma.ListMarkets(ctx)
	if err != nil {
		return fmt.Errorf("app: stream test: %w", err)
	}
	if len(markets) == 0 {
		return fmt.Errorf("app: stream test: no tradable markets discovered")
	}

	const sampleMarkets = 5
	var tokens []string
	for i, m := range markets {
		if i >= sampleMarkets {
			break
		}
		tokens = append(tokens, m.YesTokenID, m.NoTokenID)
	}

	const window = 30 * time.Second
	count, err := deps.Stream.TestConnectivity(ctx, tokens, window)
	if err != nil {
		return fmt.Errorf("app: stream test: %w", err)
	}
	a.logger.Info("stream test complete",
		slog.Int("tokens", len(tokens)),
		slog.Duration("window", window),
		slog.Int("events", count),
		slog.String("state", deps.Stream.State().String()))
	fmt.Printf("received %d events from %d tokens in %s (state %s)\n",
		count, len(tokens), window, deps.Stream.State())
	return nil
}

// Override applies a one-shot watchlist change (pin, unpin, blacklist,
// unblacklist) and returns. The running watcher picks the change up on its
// next refresh cycle.
func (a *App) Override(ctx context.Context, action, marketID string) error {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	defer cleanup()

	if deps.Watchlist == nil {
		return fmt.Errorf("app: %s requires postgres to be configured", action)
	}

	switch action {
	case "pin":
		err = deps.Watchlist.Pin(ctx, marketID)
	case "unpin":
		err = deps.Watchlist.Unpin(ctx, marketID)
	case "blacklist":
		err = deps.Watchlist.Blacklist(ctx, marketID)
	case "unblacklist":
		err = deps.Watchlist.Unblacklist(ctx, marketID)
	default:
		return fmt.Errorf("app: unknown override action %q", action)
	}
	if err != nil {
		return fmt.Errorf("app: %s %s: %w", action, marketID, err)
	}

	a.logger.Info("watchlist updated",
		slog.String("action", action),
		slog.String("market_id", marketID))
	return nil
}

func (a *App) engineParams() engine.Params {
	d := a.cfg.Detector
	return engine.Params{
		Threshold:           d.Threshold,
		FeeBuffer:           d.FeeBuffer,
		PreheatMargin:       d.PreheatMargin,
		ResendDelta:         d.ResendDelta,
		DepthFloor:          d.DepthFloor,
		DebounceWindow:      d.DebounceWindow.Duration,
		Cooldown:            d.Cooldown.Duration,
		BurstDuration:       d.BurstDuration.Duration,
		EdgeWindow:          d.EdgeWindow.Duration,
		TierAInterval:       d.TierAInterval.Duration,
		TierBInterval:       d.TierBInterval.Duration,
		JitterFrac:          scanJitterFrac,
		StalenessAfter:      d.StalenessAfter.Duration,
		StalenessPenaltyMax: d.StalenessPenaltyMax,
		StalenessStep:       d.StalenessStep,
		StalenessDecay:      d.StalenessDecay,
	}
}

func (a *App) refresherConfig() pipeline.RefresherConfig {
	t := a.cfg.Tiering
	return pipeline.RefresherConfig{
		Interval:     a.cfg.Discovery.Interval.Duration,
		MinLiquidity: a.cfg.Discovery.MinLiquidity,
		MinVolume24h: a.cfg.Discovery.MinVolume24h,
		TierASize:    t.TierASize,
		ScoreParams: tiering.ScoreParams{
			WeightVolume:        t.WeightVolume,
			WeightLiquidity:     t.WeightLiquidity,
			WeightDepth:         t.WeightDepth,
			WeightNearThreshold: t.WeightNearThreshold,
			PenaltySpread:       t.PenaltySpread,
			PenaltyStaleness:    t.PenaltyStaleness,
			NormVolume:          t.NormVolume,
			NormLiquidity:       t.NormLiquidity,
			NormDepth:           t.NormDepth,
			NormNearThreshold:   t.NormNearThreshold,
			NormSpread:          t.NormSpread,
		},
	}
}

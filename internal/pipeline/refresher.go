// Package pipeline wires discovery, detection, and delivery into running
// loops.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/arbwatch/arbwatch/internal/domain"
	"github.com/arbwatch/arbwatch/internal/engine"
	"github.com/arbwatch/arbwatch/internal/tiering"
)

// Discoverer lists the current tradable market universe.
type Discoverer interface {
	ListMarkets(ctx context.Context) ([]domain.Market, error)
}

// Stream is the subscription surface of the market-data stream.
type Stream interface {
	Subscribe(tokenIDs []string) error
	Unsubscribe(tokenIDs []string) error
}

// TierEngine is the scheduling surface of the detection engine.
type TierEngine interface {
	AddMarket(m domain.Market, tier domain.Tier, score float64)
	RemoveMarket(marketID string)
	SetTier(marketID string, tier domain.Tier, score float64)
	Has(marketID string) bool
	Snapshot() []engine.MarketMetrics
}

// RefresherConfig tunes the discovery and tiering cycle.
type RefresherConfig struct {
	Interval     time.Duration
	MinLiquidity float64
	MinVolume24h float64
	TierASize    int
	ScoreParams  tiering.ScoreParams
}

// Refresher periodically rebuilds the watch set: discover markets, score
// them against live engine metrics, assign tiers, and keep the stream
// subscribed to the hot tier.
type Refresher struct {
	cfg       RefresherConfig
	discovery Discoverer
	engine    TierEngine
	overrides *tiering.Overrides
	stream    Stream                // optional
	watchlist domain.WatchlistStore // optional, loads overrides at start
	logger    *slog.Logger

	subscribed map[string]struct{} // token IDs currently on the stream
}

func NewRefresher(
	cfg RefresherConfig,
	discovery Discoverer,
	eng TierEngine,
	overrides *tiering.Overrides,
	stream Stream,
	watchlist domain.WatchlistStore,
	logger *slog.Logger,
) *Refresher {
	return &Refresher{
		cfg:        cfg,
		discovery:  discovery,
		engine:     eng,
		overrides:  overrides,
		stream:     stream,
		watchlist:  watchlist,
		logger:     logger.With(slog.String("component", "refresher")),
		subscribed: make(map[string]struct{}),
	}
}

func (r *Refresher) Run(ctx context.Context) error {
	if r.watchlist != nil {
		pins, blacklist, err := r.watchlist.Load(ctx)
		if err != nil {
			r.logger.Warn("watchlist load failed", slog.String("error", err.Error()))
		} else {
			r.overrides.Load(pins, blacklist)
			r.logger.Info("watchlist loaded",
				slog.Int("pins", len(pins)),
				slog.Int("blacklisted", len(blacklist)))
		}
	}

	r.RefreshOnce(ctx)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.RefreshOnce(ctx)
		}
	}
}

// RefreshOnce runs a single discovery and tiering cycle. Discovery failure
// keeps the previous watch set intact.
func (r *Refresher) RefreshOnce(ctx context.Context) {
	markets, err := r.discovery.ListMarkets(ctx)
	if err != nil {
		r.logger.Warn("discovery failed, keeping current watch set",
			slog.String("error", err.Error()))
		return
	}

	discovered := make(map[string]domain.Market)
	for _, m := range markets {
		if !tiering.PassesFilters(m, r.cfg.MinLiquidity, r.cfg.MinVolume24h) {
			continue
		}
		discovered[m.ID] = m
	}

	metrics := make(map[string]engine.MarketMetrics)
	for _, mm := range r.engine.Snapshot() {
		metrics[mm.Market.ID] = mm
	}

	candidates := make([]tiering.Candidate, 0, len(discovered))
	for id, m := range discovered {
		in := tiering.ScoreInput{
			Volume24h: m.Volume24h,
			Liquidity: m.Liquidity,
		}
		burst := false
		if mm, ok := metrics[id]; ok {
			in.TopDepth = mm.TopDepth
			in.NearThresholdCount = mm.NearThresholdCount
			in.Spread = mm.Spread
			in.StalenessPenalty = mm.StalenessPenalty
			burst = mm.Burst
		}
		candidates = append(candidates, tiering.Candidate{
			MarketID: id,
			Score:    tiering.Score(in, r.cfg.ScoreParams),
			Burst:    burst,
		})
	}

	tiers := tiering.Assign(candidates, r.cfg.TierASize, r.overrides)

	hotTokens := make(map[string]struct{})
	added, removed := 0, 0
	for id, tier := range tiers {
		m := discovered[id]
		score := scoreOf(candidates, id)
		if r.engine.Has(id) {
			r.engine.SetTier(id, tier, score)
		} else {
			r.engine.AddMarket(m, tier, score)
			added++
		}
		if tier == domain.TierA {
			hotTokens[m.YesTokenID] = struct{}{}
			hotTokens[m.NoTokenID] = struct{}{}
		}
	}

	// Markets that vanished from discovery or got blacklisted drop out.
	for id := range metrics {
		if _, keep := tiers[id]; keep {
			continue
		}
		r.engine.RemoveMarket(id)
		removed++
	}

	r.syncStream(hotTokens)
	r.logger.Info("watch set refreshed",
		slog.Int("watched", len(tiers)),
		slog.Int("added", added),
		slog.Int("removed", removed),
		slog.Int("hot_tokens", len(hotTokens)))
}

// syncStream diffs the hot-tier token set against the current stream
// subscriptions.
func (r *Refresher) syncStream(hot map[string]struct{}) {
	if r.stream == nil {
		r.subscribed = hot
		return
	}

	var toSub, toUnsub []string
	for id := range hot {
		if _, ok := r.subscribed[id]; !ok {
			toSub = append(toSub, id)
		}
	}
	for id := range r.subscribed {
		if _, ok := hot[id]; !ok {
			toUnsub = append(toUnsub, id)
		}
	}

	if len(toSub) > 0 {
		if err := r.stream.Subscribe(toSub); err != nil {
			r.logger.Warn("stream subscribe failed", slog.String("error", err.Error()))
		}
	}
	if len(toUnsub) > 0 {
		if err := r.stream.Unsubscribe(toUnsub); err != nil {
			r.logger.Warn("stream unsubscribe failed", slog.String("error", err.Error()))
		}
	}
	r.subscribed = hot
}

func scoreOf(candidates []tiering.Candidate, id string) float64 {
	for _, c := range candidates {
		if c.MarketID == id {
			return c.Score
		}
	}
	return 0
}

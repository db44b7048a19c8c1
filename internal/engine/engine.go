// Package engine schedules per-market order-book scans and turns book data
// into arbitrage signals. Each watched market runs its own scan loop at a
// tier-dependent cadence; streamed updates feed the same detection path
// without waiting for the next scan.
package engine

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/arbwatch/arbwatch/internal/domain"
)

// BookFetcher pulls an order-book snapshot for one token. ok is false when
// no data is available this cycle.
type BookFetcher interface {
	GetBook(ctx context.Context, tokenID string) (domain.OrderBook, bool, error)
}

// Params tunes detection and scheduling.
type Params struct {
	Threshold     float64 // minimum effective edge for a signal
	FeeBuffer     float64 // haircut subtracted from the raw edge
	PreheatMargin float64 // edges within this margin below threshold count as near misses
	ResendDelta   float64 // edge improvement that re-arms emission inside the cooldown
	DepthFloor    float64 // best-ask size under this flags the signal low depth

	DebounceWindow time.Duration
	Cooldown       time.Duration
	BurstDuration  time.Duration
	EdgeWindow     time.Duration

	TierAInterval time.Duration
	TierBInterval time.Duration
	JitterFrac    float64 // scan interval jitter, fraction of the base

	StalenessAfter      time.Duration
	StalenessPenaltyMax float64
	StalenessStep       float64
	StalenessDecay      float64
}

// MarketMetrics is a read-only view of one market's live state, consumed
// by the tiering refresh.
type MarketMetrics struct {
	Market             domain.Market
	Tier               domain.Tier
	Score              float64
	NearThresholdCount int
	StalenessPenalty   float64
	TopDepth           float64
	Spread             float64
	PeakEdge           float64
	Burst              bool
}

const topDepthLevels = 3

type Engine struct {
	params Params
	books  BookFetcher
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	markets map[string]*marketState
	byToken map[string]string // token ID -> market ID
	runCtx  context.Context

	signals chan domain.ArbSignal
}

func New(params Params, books BookFetcher, logger *slog.Logger) *Engine {
	return &Engine{
		params:  params,
		books:   books,
		logger:  logger.With(slog.String("component", "engine")),
		now:     time.Now,
		markets: make(map[string]*marketState),
		byToken: make(map[string]string),
		signals: make(chan domain.ArbSignal, 64),
	}
}

// Signals returns the channel carrying emitted signals.
func (e *Engine) Signals() <-chan domain.ArbSignal {
	return e.signals
}

// Run starts scan loops for all registered markets and blocks until ctx is
// done. Markets added while running get their loops started immediately.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.runCtx = ctx
	for _, st := range e.markets {
		if st.cancel == nil {
			e.startLoopLocked(ctx, st)
		}
	}
	e.mu.Unlock()

	<-ctx.Done()

	e.mu.Lock()
	for _, st := range e.markets {
		if st.cancel != nil {
			st.cancel()
			st.cancel = nil
		}
	}
	e.runCtx = nil
	e.mu.Unlock()
	return ctx.Err()
}

// AddMarket registers a market in the given tier. No-op when already
// present; use SetTier to move an existing market.
func (e *Engine) AddMarket(m domain.Market, tier domain.Tier, score float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.markets[m.ID]; exists {
		return
	}
	st := &marketState{market: m, tier: tier, score: score}
	e.markets[m.ID] = st
	e.byToken[m.YesTokenID] = m.ID
	e.byToken[m.NoTokenID] = m.ID
	if e.runCtx != nil {
		e.startLoopLocked(e.runCtx, st)
	}
	e.logger.Debug("market added",
		slog.String("market_id", m.ID),
		slog.String("tier", string(tier)))
}

// RemoveMarket stops the market's scan loop and forgets its state.
func (e *Engine) RemoveMarket(marketID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.markets[marketID]
	if !ok {
		return
	}
	if st.cancel != nil {
		st.cancel()
		st.cancel = nil
	}
	delete(e.byToken, st.market.YesTokenID)
	delete(e.byToken, st.market.NoTokenID)
	delete(e.markets, marketID)
	e.logger.Debug("market removed", slog.String("market_id", marketID))
}

// SetTier moves a market between tiers and refreshes its score. A tier
// change restarts the scan loop so the new cadence applies immediately
// instead of after the old interval runs out.
func (e *Engine) SetTier(marketID string, tier domain.Tier, score float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.markets[marketID]
	if !ok {
		return
	}
	st.mu.Lock()
	changed := st.tier != tier
	st.tier = tier
	st.score = score
	st.mu.Unlock()
	if changed {
		e.rescheduleLocked(st)
	}
}

// rescheduleLocked cancels a running scan loop and starts a fresh one at
// the market's current cadence. Callers hold e.mu.
func (e *Engine) rescheduleLocked(st *marketState) {
	if st.cancel == nil || e.runCtx == nil {
		return
	}
	st.cancel()
	e.startLoopLocked(e.runCtx, st)
}

// Has reports whether a market is registered.
func (e *Engine) Has(marketID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.markets[marketID]
	return ok
}

// Snapshot returns live metrics for every registered market. The
// near-threshold counter is sampled and halved, so repeated near misses
// must keep happening to keep boosting a market's score.
func (e *Engine) Snapshot() []MarketMetrics {
	e.mu.Lock()
	states := make([]*marketState, 0, len(e.markets))
	for _, st := range e.markets {
		states = append(states, st)
	}
	e.mu.Unlock()

	now := e.now()
	out := make([]MarketMetrics, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		spread, _ := st.yesBook.Spread()
		mm := MarketMetrics{
			Market:             st.market,
			Tier:               st.tier,
			Score:              st.score,
			NearThresholdCount: st.nearThresholdCount,
			StalenessPenalty:   st.stalenessPenalty,
			TopDepth:           st.yesBook.Asks.Depth(topDepthLevels) + st.noBook.Asks.Depth(topDepthLevels),
			Spread:             spread,
			PeakEdge:           st.peakEdge(),
			Burst:              st.inBurst(now),
		}
		st.nearThresholdCount /= 2
		st.mu.Unlock()
		out = append(out, mm)
	}
	return out
}

func (e *Engine) startLoopLocked(ctx context.Context, st *marketState) {
	loopCtx, cancel := context.WithCancel(ctx)
	st.cancel = cancel
	go e.scanLoop(loopCtx, st)
}

func (e *Engine) scanLoop(ctx context.Context, st *marketState) {
	// First scan right away so a newly added market is not dark for a
	// whole interval.
	e.scanOnce(ctx, st)
	for {
		timer := time.NewTimer(e.scanInterval(st))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		e.scanOnce(ctx, st)
	}
}

// scanInterval returns the tier cadence with jitter applied so loops do
// not align into request bursts.
func (e *Engine) scanInterval(st *marketState) time.Duration {
	now := e.now()
	st.mu.Lock()
	base := e.params.TierBInterval
	if st.tier == domain.TierA || st.inBurst(now) {
		base = e.params.TierAInterval
	}
	st.mu.Unlock()

	if e.params.JitterFrac <= 0 {
		return base
	}
	jitter := (rand.Float64()*2 - 1) * e.params.JitterFrac
	return time.Duration(float64(base) * (1 + jitter))
}

func (e *Engine) scanOnce(ctx context.Context, st *marketState) {
	st.mu.Lock()
	m := st.market
	st.mu.Unlock()

	var (
		yes, no     domain.OrderBook
		okYes, okNo bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, ok, err := e.books.GetBook(gctx, m.YesTokenID)
		yes, okYes = b, ok
		return err
	})
	g.Go(func() error {
		b, ok, err := e.books.GetBook(gctx, m.NoTokenID)
		no, okNo = b, ok
		return err
	})
	if err := g.Wait(); err != nil {
		return
	}

	now := e.now()
	st.mu.Lock()
	if okYes {
		st.yesBook = yes
	}
	if okNo {
		st.noBook = no
	}

	if !okYes || !okNo {
		// Missed cycle: no detection, age the staleness penalty once the
		// data is old enough.
		if !st.lastBookAt.IsZero() && now.Sub(st.lastBookAt) > e.params.StalenessAfter {
			st.stalenessPenalty += e.params.StalenessStep
			if st.stalenessPenalty > e.params.StalenessPenaltyMax {
				st.stalenessPenalty = e.params.StalenessPenaltyMax
			}
		}
		st.mu.Unlock()
		return
	}

	st.lastBookAt = now
	st.stalenessPenalty -= e.params.StalenessDecay
	if st.stalenessPenalty < 0 {
		st.stalenessPenalty = 0
	}

	latency := time.Duration(0)
	if ts := yes.Timestamp; !ts.IsZero() && now.After(ts) {
		latency = now.Sub(ts)
	}
	sig, promote := e.detect(st, now, latency)
	st.mu.Unlock()

	if sig != nil {
		e.emit(ctx, *sig)
	}
	if promote {
		e.promoteBurst(m.ID)
	}
}

// promoteBurst forces a market into the hot tier after a near-threshold
// or signalling reading arrived while it was cold.
func (e *Engine) promoteBurst(marketID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.markets[marketID]
	if !ok {
		return
	}
	st.mu.Lock()
	changed := st.tier != domain.TierA
	st.tier = domain.TierA
	st.mu.Unlock()
	if !changed {
		return
	}
	e.rescheduleLocked(st)
	e.logger.Info("market promoted", slog.String("market_id", marketID))
}

func (e *Engine) emit(ctx context.Context, sig domain.ArbSignal) {
	select {
	case e.signals <- sig:
	case <-ctx.Done():
	}
}

package engine

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/arbwatch/arbwatch/internal/domain"
)

// detect evaluates the current two-sided books and decides whether to emit
// a signal. Callers hold st.mu. promote is true when a cold market's edge
// entered the promotion band and it should move to the hot tier; the
// caller applies it after releasing the state lock.
func (e *Engine) detect(st *marketState, now time.Time, latency time.Duration) (sig *domain.ArbSignal, promote bool) {
	yesAsk, okYes := st.yesBook.BestAsk()
	noAsk, okNo := st.noBook.BestAsk()
	if !okYes || !okNo {
		st.streakStart = time.Time{}
		st.debounceMet = false
		return nil, false
	}

	sumCost := yesAsk.Price + noAsk.Price
	edge := 1 - sumCost - e.params.FeeBuffer
	st.recordEdge(now, edge, e.params.EdgeWindow)

	// Preheat: a cold market whose edge reaches the promotion band goes
	// hot and enters burst mode right away, ahead of any emission gating.
	if st.tier != domain.TierA && edge >= e.params.Threshold-e.params.PreheatMargin {
		st.burstUntil = now.Add(e.params.BurstDuration)
		promote = true
	}

	if edge < e.params.Threshold {
		if edge >= e.params.Threshold-e.params.PreheatMargin {
			st.nearThresholdCount++
		}
		// Any dip below threshold resets the streak; the debounce window
		// starts over on the next crossing.
		st.streakStart = time.Time{}
		st.debounceMet = false
		return nil, promote
	}

	if st.streakStart.IsZero() {
		st.streakStart = now
	}
	if !st.debounceMet {
		if now.Sub(st.streakStart) < e.params.DebounceWindow {
			return nil, promote
		}
		st.debounceMet = true
	}

	// Emit on the first qualifying edge, after the cooldown, or when the
	// edge improved enough to be worth a repeat alert mid-cooldown.
	emit := st.lastSignalAt.IsZero() ||
		now.Sub(st.lastSignalAt) >= e.params.Cooldown ||
		edge >= st.lastSignalEdge+e.params.ResendDelta
	if !emit {
		return nil, promote
	}

	lowDepth := yesAsk.Size < e.params.DepthFloor || noAsk.Size < e.params.DepthFloor

	sig = &domain.ArbSignal{
		ID:            uuid.NewString(),
		MarketID:      st.market.ID,
		Question:      st.market.Question,
		YesAskPrice:   yesAsk.Price,
		YesAskSize:    yesAsk.Size,
		NoAskPrice:    noAsk.Price,
		NoAskSize:     noAsk.Size,
		SumCost:       sumCost,
		EffectiveEdge: edge,
		Threshold:     e.params.Threshold,
		FeeBuffer:     e.params.FeeBuffer,
		Tier:          st.tier,
		LowDepth:      lowDepth,
		Latency:       latency,
		DetectedAt:    now,
	}
	st.lastSignalAt = now
	st.lastSignalEdge = edge
	st.nearThresholdCount++

	e.logger.Info("signal detected",
		slog.String("market_id", st.market.ID),
		slog.Float64("edge", edge),
		slog.Float64("sum_cost", sumCost),
		slog.Bool("low_depth", lowDepth),
		slog.Duration("latency", latency))
	return sig, promote
}

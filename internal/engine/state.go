package engine

import (
	"context"
	"sync"
	"time"

	"github.com/arbwatch/arbwatch/internal/domain"
)

// marketState is the single-writer detection state for one market. The
// scan loop and the push path both funnel through its mutex, so detection
// decisions are serialized per market.
type marketState struct {
	mu sync.Mutex

	market domain.Market
	tier   domain.Tier
	score  float64

	yesBook    domain.OrderBook
	noBook     domain.OrderBook
	lastBookAt time.Time // last cycle with both sides present

	stalenessPenalty   float64
	nearThresholdCount int

	// streak tracking for the debounce gate
	streakStart time.Time
	debounceMet bool

	lastSignalAt   time.Time
	lastSignalEdge float64
	burstUntil     time.Time

	edgeWindow []edgeSample

	cancel context.CancelFunc // stops this market's scan loop
}

type edgeSample struct {
	at   time.Time
	edge float64
}

func (st *marketState) inBurst(now time.Time) bool {
	return now.Before(st.burstUntil)
}

// recordEdge appends a sample and prunes the rolling window.
func (st *marketState) recordEdge(now time.Time, edge float64, window time.Duration) {
	st.edgeWindow = append(st.edgeWindow, edgeSample{at: now, edge: edge})
	cutoff := now.Add(-window)
	drop := 0
	for drop < len(st.edgeWindow) && st.edgeWindow[drop].at.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		st.edgeWindow = st.edgeWindow[drop:]
	}
}

// peakEdge returns the highest edge seen in the rolling window.
func (st *marketState) peakEdge() float64 {
	peak := 0.0
	for _, s := range st.edgeWindow {
		if s.edge > peak {
			peak = s.edge
		}
	}
	return peak
}

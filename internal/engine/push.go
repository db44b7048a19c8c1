package engine

import (
	"context"
	"strings"

	"github.com/arbwatch/arbwatch/internal/domain"
)

// HandleBookUpdate replaces one side's book from a streamed snapshot and
// runs detection immediately. Latency is zero on this path: the data is as
// fresh as it gets.
func (e *Engine) HandleBookUpdate(ctx context.Context, assetID string, book domain.OrderBook) {
	st, isYes, ok := e.lookupToken(assetID)
	if !ok {
		return
	}

	now := e.now()
	st.mu.Lock()
	if isYes {
		st.yesBook = book
	} else {
		st.noBook = book
	}
	st.lastBookAt = now
	st.stalenessPenalty = 0
	sig, promote := e.detect(st, now, 0)
	marketID := st.market.ID
	st.mu.Unlock()

	e.finish(ctx, marketID, sig, promote)
}

// HandlePriceChange applies an incremental level update to the cached book
// and runs detection. A size of zero removes the level.
func (e *Engine) HandlePriceChange(ctx context.Context, assetID, side string, price, size float64) {
	st, isYes, ok := e.lookupToken(assetID)
	if !ok {
		return
	}

	now := e.now()
	st.mu.Lock()
	book := &st.noBook
	if isYes {
		book = &st.yesBook
	}
	if book.AssetID == "" {
		// No snapshot yet; nothing to patch.
		st.mu.Unlock()
		return
	}
	if strings.EqualFold(side, "SELL") {
		book.Asks = book.Asks.ApplyLevel(price, size, true)
	} else {
		book.Bids = book.Bids.ApplyLevel(price, size, false)
	}
	book.Timestamp = now
	st.lastBookAt = now
	sig, promote := e.detect(st, now, 0)
	marketID := st.market.ID
	st.mu.Unlock()

	e.finish(ctx, marketID, sig, promote)
}

func (e *Engine) lookupToken(assetID string) (st *marketState, isYes, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	marketID, ok := e.byToken[assetID]
	if !ok {
		return nil, false, false
	}
	st, ok = e.markets[marketID]
	if !ok {
		return nil, false, false
	}
	return st, st.market.YesTokenID == assetID, true
}

func (e *Engine) finish(ctx context.Context, marketID string, sig *domain.ArbSignal, promote bool) {
	if sig != nil {
		e.emit(ctx, *sig)
	}
	if promote {
		e.promoteBurst(marketID)
	}
}

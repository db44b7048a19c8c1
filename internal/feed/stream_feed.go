// Package feed bridges streamed market data into the detection engine.
package feed

import (
	"context"
	"log/slog"

	"github.com/arbwatch/arbwatch/internal/domain"
)

// Engine is the push-path surface of the detection engine.
type Engine interface {
	HandleBookUpdate(ctx context.Context, assetID string, book domain.OrderBook)
	HandlePriceChange(ctx context.Context, assetID, side string, price, size float64)
}

// StreamFeed consumes stream events, mirrors book snapshots into the cache,
// and pushes every update through detection. When the stream degrades the
// feed keeps running; the pull loops remain the data source of record.
type StreamFeed struct {
	events <-chan domain.StreamEvent
	engine Engine
	cache  domain.OrderbookCache // optional
	logger *slog.Logger
}

func New(events <-chan domain.StreamEvent, engine Engine, cache domain.OrderbookCache, logger *slog.Logger) *StreamFeed {
	return &StreamFeed{
		events: events,
		engine: engine,
		cache:  cache,
		logger: logger.With(slog.String("component", "stream_feed")),
	}
}

func (f *StreamFeed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-f.events:
			f.handle(ctx, ev)
		}
	}
}

func (f *StreamFeed) handle(ctx context.Context, ev domain.StreamEvent) {
	switch ev := ev.(type) {
	case domain.BookEvent:
		if f.cache != nil {
			if err := f.cache.SetBook(ctx, ev.AssetID, ev.Book); err != nil {
				f.logger.Warn("book cache write failed",
					slog.String("asset_id", ev.AssetID),
					slog.String("error", err.Error()))
			}
		}
		f.engine.HandleBookUpdate(ctx, ev.AssetID, ev.Book)

	case domain.PriceChangeEvent:
		f.engine.HandlePriceChange(ctx, ev.AssetID, ev.Side, ev.Price, ev.Size)

	case domain.StateChangeEvent:
		switch ev.State {
		case domain.StreamDegraded:
			f.logger.Error("stream degraded, continuing on pull data only")
		case domain.StreamConnected:
			f.logger.Info("stream connected")
		default:
			f.logger.Info("stream state changed", slog.String("state", ev.State.String()))
		}

	case domain.IgnoredEvent:
		// Already logged at the client.
	}
}

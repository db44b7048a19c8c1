package domain

import "context"

// OrderbookCache stores the latest book per instrument for external
// consumers (diagnostics, UI collaborators). The engine never reads it.
type OrderbookCache interface {
	SetBook(ctx context.Context, assetID string, book OrderBook) error
	GetBook(ctx context.Context, assetID string) (OrderBook, error)
}

// SignalBus provides pub/sub fan-out plus a durable stream for fired
// signals.
type SignalBus interface {
	Publish(ctx context.Context, sig ArbSignal) error
	Subscribe(ctx context.Context) (<-chan ArbSignal, error)
	StreamAppend(ctx context.Context, sig ArbSignal) error
	StreamRead(ctx context.Context, lastID string, count int64) ([]StreamMessage, error)
}

// StreamMessage is a single entry read back from the durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

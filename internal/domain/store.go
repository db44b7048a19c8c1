package domain

import "context"

// WatchlistStore persists the manual pin and blacklist override sets.
// All operations are idempotent; blacklisting a market also removes any
// pin for it (blacklist is the stronger override).
type WatchlistStore interface {
	Pin(ctx context.Context, marketID string) error
	Unpin(ctx context.Context, marketID string) error
	Blacklist(ctx context.Context, marketID string) error
	Unblacklist(ctx context.Context, marketID string) error
	Load(ctx context.Context) (pins, blacklist []string, err error)
}

// SignalStore journals fired signals.
type SignalStore interface {
	Insert(ctx context.Context, sig ArbSignal) error
	ListRecent(ctx context.Context, limit int) ([]ArbSignal, error)
}

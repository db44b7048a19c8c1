package feed

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbwatch/arbwatch/internal/domain"
)

type recordingEngine struct {
	mu           sync.Mutex
	bookUpdates  []string
	priceChanges []string
}

func (r *recordingEngine) HandleBookUpdate(_ context.Context, assetID string, _ domain.OrderBook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookUpdates = append(r.bookUpdates, assetID)
}

func (r *recordingEngine) HandlePriceChange(_ context.Context, assetID, _ string, _, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.priceChanges = append(r.priceChanges, assetID)
}

type recordingCache struct {
	mu    sync.Mutex
	books map[string]domain.OrderBook
}

func (r *recordingCache) SetBook(_ context.Context, assetID string, book domain.OrderBook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.books[assetID] = book
	return nil
}

func (r *recordingCache) GetBook(_ context.Context, assetID string) (domain.OrderBook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.books[assetID]
	if !ok {
		return domain.OrderBook{}, domain.ErrNotFound
	}
	return b, nil
}

func TestStreamFeedRoutesEvents(t *testing.T) {
	events := make(chan domain.StreamEvent, 8)
	eng := &recordingEngine{}
	cache := &recordingCache{books: make(map[string]domain.OrderBook)}
	f := New(events, eng, cache, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	book := domain.OrderBook{
		AssetID: "tok1",
		Asks:    domain.BookSide{{Price: 0.5, Size: 10}},
	}
	events <- domain.BookEvent{AssetID: "tok1", Book: book}
	events <- domain.PriceChangeEvent{AssetID: "tok1", Side: "SELL", Price: 0.49, Size: 5}
	events <- domain.StateChangeEvent{State: domain.StreamDegraded}

	require.Eventually(t, func() bool {
		eng.mu.Lock()
		defer eng.mu.Unlock()
		return len(eng.bookUpdates) == 1 && len(eng.priceChanges) == 1
	}, time.Second, 5*time.Millisecond)

	cached, err := cache.GetBook(ctx, "tok1")
	require.NoError(t, err)
	assert.Equal(t, book.Asks, cached.Asks)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestStreamFeedWorksWithoutCache(t *testing.T) {
	events := make(chan domain.StreamEvent, 1)
	eng := &recordingEngine{}
	f := New(events, eng, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	go f.Run(ctx)
	defer cancel()

	events <- domain.BookEvent{AssetID: "tok1"}
	require.Eventually(t, func() bool {
		eng.mu.Lock()
		defer eng.mu.Unlock()
		return len(eng.bookUpdates) == 1
	}, time.Second, 5*time.Millisecond)
}

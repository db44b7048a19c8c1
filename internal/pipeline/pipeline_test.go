package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbwatch/arbwatch/internal/domain"
	"github.com/arbwatch/arbwatch/internal/engine"
	"github.com/arbwatch/arbwatch/internal/tiering"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDiscovery struct {
	markets []domain.Market
	err     error
}

func (f *fakeDiscovery) ListMarkets(context.Context) ([]domain.Market, error) {
	return f.markets, f.err
}

type fakeTierEngine struct {
	mu      sync.Mutex
	markets map[string]domain.Tier
	metrics []engine.MarketMetrics
	removed []string
}

func newFakeTierEngine() *fakeTierEngine {
	return &fakeTierEngine{markets: make(map[string]domain.Tier)}
}

func (f *fakeTierEngine) AddMarket(m domain.Market, tier domain.Tier, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets[m.ID] = tier
}

func (f *fakeTierEngine) RemoveMarket(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.markets, id)
	f.removed = append(f.removed, id)
}

func (f *fakeTierEngine) SetTier(id string, tier domain.Tier, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets[id] = tier
}

func (f *fakeTierEngine) Has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.markets[id]
	return ok
}

func (f *fakeTierEngine) Snapshot() []engine.MarketMetrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metrics
}

type fakeStream struct {
	mu           sync.Mutex
	subscribed   []string
	unsubscribed []string
}

func (f *fakeStream) Subscribe(ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, ids...)
	return nil
}

func (f *fakeStream) Unsubscribe(ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, ids...)
	return nil
}

func watchMarket(id string, liquidity, volume float64) domain.Market {
	return domain.Market{
		ID:              id,
		YesTokenID:      id + "-yes",
		NoTokenID:       id + "-no",
		Active:          true,
		AcceptingOrders: true,
		OrderBookOn:     true,
		Liquidity:       liquidity,
		Volume24h:       volume,
	}
}

func testRefresherConfig() RefresherConfig {
	return RefresherConfig{
		Interval:     time.Minute,
		MinLiquidity: 1000,
		MinVolume24h: 100,
		TierASize:    1,
		ScoreParams: tiering.ScoreParams{
			WeightVolume:    0.6,
			WeightLiquidity: 0.4,
			NormVolume:      10000,
			NormLiquidity:   50000,
		},
	}
}

func TestRefreshBuildsWatchSet(t *testing.T) {
	discovery := &fakeDiscovery{markets: []domain.Market{
		watchMarket("hot", 40000, 9000),
		watchMarket("cold", 2000, 200),
		watchMarket("illiquid", 10, 9000), // fails the liquidity floor
	}}
	eng := newFakeTierEngine()
	stream := &fakeStream{}
	r := NewRefresher(testRefresherConfig(), discovery, eng, tiering.NewOverrides(), stream, nil, testLogger())

	r.RefreshOnce(context.Background())

	assert.Equal(t, domain.TierA, eng.markets["hot"])
	assert.Equal(t, domain.TierB, eng.markets["cold"])
	assert.False(t, eng.Has("illiquid"))

	sort.Strings(stream.subscribed)
	assert.Equal(t, []string{"hot-no", "hot-yes"}, stream.subscribed, "only hot-tier tokens stream")
}

func TestRefreshRemovesVanishedMarkets(t *testing.T) {
	discovery := &fakeDiscovery{markets: []domain.Market{watchMarket("stay", 40000, 9000)}}
	eng := newFakeTierEngine()
	eng.markets["gone"] = domain.TierA
	eng.metrics = []engine.MarketMetrics{
		{Market: watchMarket("gone", 0, 0), Tier: domain.TierA},
		{Market: watchMarket("stay", 40000, 9000), Tier: domain.TierA},
	}
	r := NewRefresher(testRefresherConfig(), discovery, eng, tiering.NewOverrides(), nil, nil, testLogger())

	r.RefreshOnce(context.Background())
	assert.Equal(t, []string{"gone"}, eng.removed)
	assert.True(t, eng.Has("stay"))
}

func TestRefreshKeepsWatchSetOnDiscoveryFailure(t *testing.T) {
	discovery := &fakeDiscovery{err: errors.New("gamma down")}
	eng := newFakeTierEngine()
	eng.markets["m1"] = domain.TierA
	r := NewRefresher(testRefresherConfig(), discovery, eng, tiering.NewOverrides(), nil, nil, testLogger())

	r.RefreshOnce(context.Background())
	assert.True(t, eng.Has("m1"))
	assert.Empty(t, eng.removed)
}

func TestRefreshUnsubscribesDemotedMarkets(t *testing.T) {
	m1 := watchMarket("m1", 40000, 9000)
	m2 := watchMarket("m2", 2000, 200)
	discovery := &fakeDiscovery{markets: []domain.Market{m1, m2}}
	eng := newFakeTierEngine()
	stream := &fakeStream{}
	r := NewRefresher(testRefresherConfig(), discovery, eng, tiering.NewOverrides(), stream, nil, testLogger())

	r.RefreshOnce(context.Background())

	// m2 overtakes m1 in activity; the hot slot flips.
	m1.Volume24h, m2.Volume24h = 200, 9000
	m1.Liquidity, m2.Liquidity = 2000, 40000
	discovery.markets = []domain.Market{m1, m2}
	r.RefreshOnce(context.Background())

	stream.mu.Lock()
	defer stream.mu.Unlock()
	assert.Contains(t, stream.subscribed, "m2-yes")
	assert.Contains(t, stream.unsubscribed, "m1-yes")
	assert.Contains(t, stream.unsubscribed, "m1-no")
}

func TestRefreshHonoursOverrides(t *testing.T) {
	discovery := &fakeDiscovery{markets: []domain.Market{
		watchMarket("top", 40000, 9000),
		watchMarket("pinned", 2000, 200),
		watchMarket("banned", 40000, 9000),
	}}
	eng := newFakeTierEngine()
	overrides := tiering.NewOverrides()
	overrides.Pin("pinned")
	overrides.Blacklist("banned")
	r := NewRefresher(testRefresherConfig(), discovery, eng, overrides, nil, nil, testLogger())

	r.RefreshOnce(context.Background())
	assert.Equal(t, domain.TierA, eng.markets["pinned"])
	assert.False(t, eng.Has("banned"))
}

type fakeNotifier struct {
	mu   sync.Mutex
	sigs []domain.ArbSignal
}

func (f *fakeNotifier) NotifySignal(_ context.Context, sig domain.ArbSignal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sigs = append(f.sigs, sig)
}

type fakeJournal struct {
	mu   sync.Mutex
	rows []domain.ArbSignal
	err  error
}

func (f *fakeJournal) Insert(_ context.Context, sig domain.ArbSignal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, sig)
	return nil
}

func (f *fakeJournal) ListRecent(context.Context, int) ([]domain.ArbSignal, error) {
	return nil, nil
}

func TestDispatcherFansOut(t *testing.T) {
	signals := make(chan domain.ArbSignal, 1)
	notifier := &fakeNotifier{}
	journal := &fakeJournal{}
	d := NewDispatcher(signals, notifier, nil, journal, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	signals <- domain.ArbSignal{ID: "sig1", MarketID: "m1", EffectiveEdge: 0.03}
	require.Eventually(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.sigs) == 1
	}, time.Second, 5*time.Millisecond)

	journal.mu.Lock()
	require.Len(t, journal.rows, 1)
	assert.Equal(t, "sig1", journal.rows[0].ID)
	journal.mu.Unlock()

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestDispatcherJournalFailureDoesNotBlockNotify(t *testing.T) {
	signals := make(chan domain.ArbSignal, 1)
	notifier := &fakeNotifier{}
	journal := &fakeJournal{err: errors.New("db down")}
	d := NewDispatcher(signals, notifier, nil, journal, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	signals <- domain.ArbSignal{ID: "sig1"}
	require.Eventually(t, func() bool {
		notifier.mu.Lock()
		defer notifier.mu.Unlock()
		return len(notifier.sigs) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestOrchestratorStopsOnFailure(t *testing.T) {
	o := NewOrchestrator(testLogger())
	boom := errors.New("boom")
	o.Add("failing", func(context.Context) error { return boom })
	o.Add("waiting", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	err := o.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestOrchestratorCleanCancel(t *testing.T) {
	o := NewOrchestrator(testLogger())
	o.Add("waiting", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	assert.NoError(t, o.Run(ctx), "cancellation is a clean stop")
}

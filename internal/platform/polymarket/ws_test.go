package polymarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbwatch/arbwatch/internal/domain"
)

func testStreamConfig(url string) StreamConfig {
	return StreamConfig{
		URL:                  url,
		ConnectTimeout:       time.Second,
		HeartbeatInterval:    time.Second,
		StaleThreshold:       5 * time.Second,
		StaleCheckInterval:   time.Second,
		MaxReconnectAttempts: 3,
		ReconnectBase:        5 * time.Millisecond,
		ReconnectCap:         20 * time.Millisecond,
		ReconnectJitter:      5 * time.Millisecond,
		CoalesceDelay:        10 * time.Millisecond,
	}
}

// wsTestServer upgrades connections and answers each subscribe command with
// one book frame per subscribed asset.
func wsTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var cmd wsCommand
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			if cmd.Type != "subscribe" {
				continue
			}
			for _, asset := range cmd.Assets {
				frame := `{"event_type":"book","asset_id":"` + asset +
					`","bids":[{"price":"0.44","size":"100"}],"asks":[{"price":"0.53","size":"60"}],"timestamp":"1756500000000"}`
				if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
					return
				}
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestStreamClientReceivesBooks(t *testing.T) {
	srv := wsTestServer(t)
	defer srv.Close()

	client := NewStreamClient(testStreamConfig(wsURL(srv)), testLogger())
	defer client.Close()

	require.NoError(t, client.Connect(context.Background()))
	assert.Equal(t, domain.StreamConnected, client.State())
	require.NoError(t, client.Subscribe([]string{"tok1", "tok2"}))

	got := make(map[string]bool)
	deadline := time.After(3 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-client.Events():
			if be, ok := ev.(domain.BookEvent); ok {
				got[be.AssetID] = true
				ask, hasAsk := be.Book.BestAsk()
				require.True(t, hasAsk)
				assert.Equal(t, 0.53, ask.Price)
			}
		case <-deadline:
			t.Fatalf("timed out waiting for book events, got %v", got)
		}
	}
}

func TestStreamClientCoalescesSubscriptions(t *testing.T) {
	client := NewStreamClient(testStreamConfig("ws://127.0.0.1:1"), testLogger())
	defer client.Close()

	require.NoError(t, client.Subscribe([]string{"a", "b"}))
	require.NoError(t, client.Subscribe([]string{"b", "c"}))

	client.mu.Lock()
	pending := len(client.pending)
	client.mu.Unlock()
	assert.Equal(t, 3, pending)

	// Offline flush moves the batch into the subscribed set for replay.
	client.flushPending()
	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Empty(t, client.pending)
	assert.Len(t, client.subscribed, 3)
}

func TestStreamClientUnsubscribeWhileOffline(t *testing.T) {
	client := NewStreamClient(testStreamConfig("ws://127.0.0.1:1"), testLogger())
	defer client.Close()

	require.NoError(t, client.Subscribe([]string{"a", "b"}))
	require.NoError(t, client.Unsubscribe([]string{"a"}))

	client.mu.Lock()
	defer client.mu.Unlock()
	_, stillPending := client.pending["a"]
	assert.False(t, stillPending)
	_, otherPending := client.pending["b"]
	assert.True(t, otherPending)
}

func TestReconnectDelayBounds(t *testing.T) {
	client := NewStreamClient(StreamConfig{
		ReconnectBase:   100 * time.Millisecond,
		ReconnectCap:    800 * time.Millisecond,
		ReconnectJitter: 50 * time.Millisecond,
	}, testLogger())

	for attempt := 1; attempt <= 8; attempt++ {
		d := client.reconnectDelay(attempt)
		expected := 100 * time.Millisecond << (attempt - 1)
		if expected > 800*time.Millisecond {
			expected = 800 * time.Millisecond
		}
		assert.GreaterOrEqual(t, d, expected, "attempt %d", attempt)
		assert.Less(t, d, expected+50*time.Millisecond, "attempt %d", attempt)
	}
}

func TestStreamClientDegradesAfterMaxAttempts(t *testing.T) {
	cfg := testStreamConfig("ws://127.0.0.1:1") // nothing listening
	cfg.ConnectTimeout = 200 * time.Millisecond
	client := NewStreamClient(cfg, testLogger())
	defer client.Close()

	client.mu.Lock()
	client.reconnecting = true
	client.mu.Unlock()
	done := make(chan struct{})
	go func() {
		client.runReconnect()
		close(done)
	}()

	var degraded bool
	deadline := time.After(5 * time.Second)
	for !degraded {
		select {
		case ev := <-client.Events():
			if sc, ok := ev.(domain.StateChangeEvent); ok && sc.State == domain.StreamDegraded {
				degraded = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for degraded state")
		}
	}
	<-done
	assert.Equal(t, domain.StreamDegraded, client.State())
}

func TestStreamClientCloseIsFinal(t *testing.T) {
	client := NewStreamClient(testStreamConfig("ws://127.0.0.1:1"), testLogger())
	require.NoError(t, client.Close())
	require.NoError(t, client.Close(), "double close is safe")

	assert.ErrorIs(t, client.Subscribe([]string{"a"}), domain.ErrStreamClosed)
	assert.ErrorIs(t, client.Connect(context.Background()), domain.ErrStreamClosed)
}

package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arbwatch/arbwatch/internal/domain"
)

const wsWriteWait = 10 * time.Second

// StreamConfig tunes the market-data websocket connection.
type StreamConfig struct {
	URL                  string
	ConnectTimeout       time.Duration
	HeartbeatInterval    time.Duration
	StaleThreshold       time.Duration
	StaleCheckInterval   time.Duration
	MaxReconnectAttempts int
	ReconnectBase        time.Duration
	ReconnectCap         time.Duration
	ReconnectJitter      time.Duration
	CoalesceDelay        time.Duration
}

// StreamClient maintains a websocket subscription to the venue's market
// channel. It reconnects with capped exponential backoff, detects stale
// connections, coalesces subscription changes, and degrades to a terminal
// state once reconnect attempts are exhausted. Decoded events are delivered
// on Events(); consumers own tier changes, the client only moves frames.
type StreamClient struct {
	cfg    StreamConfig
	logger *slog.Logger

	mu           sync.Mutex
	state        domain.StreamState
	conn         *websocket.Conn
	connGen      int // bumped per connection so loops from old conns exit
	subscribed   map[string]struct{}
	pending      map[string]struct{}
	flushTimer   *time.Timer
	attempts     int
	lastMsg      time.Time
	closed       bool
	reconnecting bool

	writeMu sync.Mutex

	events chan domain.StreamEvent
	done   chan struct{}
}

func NewStreamClient(cfg StreamConfig, logger *slog.Logger) *StreamClient {
	return &StreamClient{
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "stream_client")),
		state:      domain.StreamDisconnected,
		subscribed: make(map[string]struct{}),
		pending:    make(map[string]struct{}),
		events:     make(chan domain.StreamEvent, 256),
		done:       make(chan struct{}),
	}
}

// Events returns the channel carrying decoded stream events. The channel is
// never closed; consumers stop via their own context.
func (c *StreamClient) Events() <-chan domain.StreamEvent {
	return c.events
}

func (c *StreamClient) State() domain.StreamState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the stream, replays the current subscription set, and
// starts the read, heartbeat, and staleness loops. It is a no-op when a
// connection is already up or in progress.
func (c *StreamClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrStreamClosed
	}
	if c.state == domain.StreamConnecting || c.state == domain.StreamConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = domain.StreamConnecting
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.ConnectTimeout}
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, c.cfg.URL, nil)
	if err != nil {
		c.mu.Lock()
		if !c.closed {
			c.state = domain.StreamError
		}
		c.mu.Unlock()
		return fmt.Errorf("stream: connect %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return domain.ErrStreamClosed
	}
	c.conn = conn
	c.connGen++
	gen := c.connGen
	c.attempts = 0
	c.lastMsg = time.Now()
	c.state = domain.StreamConnected
	for id := range c.pending {
		c.subscribed[id] = struct{}{}
		delete(c.pending, id)
	}
	assets := make([]string, 0, len(c.subscribed))
	for id := range c.subscribed {
		assets = append(assets, id)
	}
	c.mu.Unlock()

	go c.readLoop(conn, gen)
	go c.heartbeatLoop(conn, gen)
	go c.staleLoop(conn, gen)

	if len(assets) > 0 {
		if err := c.sendCommand(conn, wsCommand{Type: "subscribe", Assets: assets}); err != nil {
			c.logger.Warn("subscription replay failed", slog.String("error", err.Error()))
		}
	}

	c.logger.Info("stream connected", slog.Int("subscriptions", len(assets)))
	c.deliver(domain.StateChangeEvent{State: domain.StreamConnected})
	return nil
}

// Subscribe queues token IDs for subscription. Changes within CoalesceDelay
// are batched into one frame. Safe to call while disconnected; the set is
// replayed on the next connect.
func (c *StreamClient) Subscribe(tokenIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrStreamClosed
	}

	added := false
	for _, id := range tokenIDs {
		if _, ok := c.subscribed[id]; ok {
			continue
		}
		if _, ok := c.pending[id]; ok {
			continue
		}
		c.pending[id] = struct{}{}
		added = true
	}
	if added && c.flushTimer == nil {
		c.flushTimer = time.AfterFunc(c.cfg.CoalesceDelay, c.flushPending)
	}
	return nil
}

// Unsubscribe drops token IDs immediately, without coalescing, so demoted
// or blacklisted instruments stop producing traffic right away.
func (c *StreamClient) Unsubscribe(tokenIDs []string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrStreamClosed
	}
	active := make([]string, 0, len(tokenIDs))
	for _, id := range tokenIDs {
		delete(c.pending, id)
		if _, ok := c.subscribed[id]; ok {
			delete(c.subscribed, id)
			active = append(active, id)
		}
	}
	conn := c.conn
	connected := c.state == domain.StreamConnected && conn != nil
	c.mu.Unlock()

	if !connected || len(active) == 0 {
		return nil
	}
	if err := c.sendCommand(conn, wsCommand{Type: "unsubscribe", Assets: active}); err != nil {
		return fmt.Errorf("stream: unsubscribe: %w", err)
	}
	return nil
}

func (c *StreamClient) flushPending() {
	c.mu.Lock()
	c.flushTimer = nil
	if c.closed || len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	assets := make([]string, 0, len(c.pending))
	for id := range c.pending {
		assets = append(assets, id)
		c.subscribed[id] = struct{}{}
	}
	c.pending = make(map[string]struct{})
	conn := c.conn
	connected := c.state == domain.StreamConnected && conn != nil
	c.mu.Unlock()

	if !connected {
		// Replayed on the next successful connect.
		return
	}
	if err := c.sendCommand(conn, wsCommand{Type: "subscribe", Assets: assets}); err != nil {
		c.logger.Warn("subscribe batch failed",
			slog.Int("count", len(assets)),
			slog.String("error", err.Error()))
		return
	}
	c.logger.Debug("subscribed", slog.Int("count", len(assets)))
}

// Close shuts the client down permanently. Any in-flight reconnect backoff
// is interrupted.
func (c *StreamClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = domain.StreamDisconnected
	c.connGen++
	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		c.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		conn.Close()
	}
	return nil
}

// TestConnectivity connects, subscribes the given tokens, and counts the
// events received within window. Diagnostics only; it drains the events
// channel, so do not run it alongside a live consumer.
func (c *StreamClient) TestConnectivity(ctx context.Context, tokenIDs []string, window time.Duration) (int, error) {
	if err := c.Connect(ctx); err != nil {
		return 0, err
	}
	if err := c.Subscribe(tokenIDs); err != nil {
		return 0, err
	}

	deadline := time.NewTimer(window)
	defer deadline.Stop()

	count := 0
	for {
		select {
		case <-ctx.Done():
			return count, ctx.Err()
		case <-deadline.C:
			return count, nil
		case <-c.events:
			count++
		}
	}
}

func (c *StreamClient) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, gen, err)
			return
		}

		c.mu.Lock()
		if gen == c.connGen {
			c.lastMsg = time.Now()
		}
		c.mu.Unlock()

		ev := decodeStreamEvent(raw)
		if ig, ok := ev.(domain.IgnoredEvent); ok {
			c.logger.Debug("ignoring stream message", slog.String("tag", ig.Tag))
			continue
		}
		c.deliver(ev)
	}
}

func (c *StreamClient) heartbeatLoop(conn *websocket.Conn, gen int) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		current := gen == c.connGen
		c.mu.Unlock()
		if !current {
			return
		}

		c.writeMu.Lock()
		err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
		c.writeMu.Unlock()
		if err != nil {
			// Force the read loop to observe the failure.
			conn.Close()
			return
		}
	}
}

func (c *StreamClient) staleLoop(conn *websocket.Conn, gen int) {
	ticker := time.NewTicker(c.cfg.StaleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		current := gen == c.connGen
		stale := time.Since(c.lastMsg) > c.cfg.StaleThreshold
		c.mu.Unlock()
		if !current {
			return
		}
		if stale {
			c.logger.Warn("stream stale, forcing reconnect",
				slog.Duration("threshold", c.cfg.StaleThreshold))
			conn.Close()
			return
		}
	}
}

func (c *StreamClient) handleDisconnect(conn *websocket.Conn, gen int, cause error) {
	conn.Close()

	c.mu.Lock()
	if gen != c.connGen {
		// A newer connection already replaced this one.
		c.mu.Unlock()
		return
	}
	c.connGen++
	c.conn = nil
	closed := c.closed
	if !closed {
		c.state = domain.StreamDisconnected
	}
	alreadyReconnecting := c.reconnecting
	if !closed {
		c.reconnecting = true
	}
	c.mu.Unlock()

	if closed || alreadyReconnecting {
		return
	}
	c.logger.Warn("stream disconnected", slog.String("error", cause.Error()))
	go c.runReconnect()
}

func (c *StreamClient) runReconnect() {
	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		if c.attempts >= c.cfg.MaxReconnectAttempts {
			c.state = domain.StreamDegraded
			c.mu.Unlock()
			c.logger.Error("stream degraded, reconnect attempts exhausted",
				slog.Int("attempts", c.cfg.MaxReconnectAttempts))
			c.deliver(domain.StateChangeEvent{State: domain.StreamDegraded})
			return
		}
		c.attempts++
		attempt := c.attempts
		c.state = domain.StreamReconnecting
		c.mu.Unlock()

		delay := c.reconnectDelay(attempt)
		c.logger.Info("reconnecting",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay))
		select {
		case <-c.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		c.logger.Warn("reconnect failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
	}
}

// reconnectDelay returns min(base*2^(attempt-1), cap) plus uniform jitter.
func (c *StreamClient) reconnectDelay(attempt int) time.Duration {
	d := c.cfg.ReconnectBase << (attempt - 1)
	if d <= 0 || d > c.cfg.ReconnectCap {
		d = c.cfg.ReconnectCap
	}
	if c.cfg.ReconnectJitter > 0 {
		d += time.Duration(rand.Int63n(int64(c.cfg.ReconnectJitter)))
	}
	return d
}

func (c *StreamClient) deliver(ev domain.StreamEvent) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *StreamClient) sendCommand(conn *websocket.Conn, cmd wsCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("stream: encode command: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

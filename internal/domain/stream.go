package domain

// StreamState is the connection state of the streaming market-data client.
// A single state covers the whole client: one physical connection fans out
// to every subscription.
type StreamState int

const (
	StreamDisconnected StreamState = iota
	StreamConnecting
	StreamConnected
	StreamReconnecting
	StreamDegraded
	StreamError
)

// String returns the lowercase state name.
func (s StreamState) String() string {
	switch s {
	case StreamDisconnected:
		return "disconnected"
	case StreamConnecting:
		return "connecting"
	case StreamConnected:
		return "connected"
	case StreamReconnecting:
		return "reconnecting"
	case StreamDegraded:
		return "degraded"
	case StreamError:
		return "error"
	default:
		return "unknown"
	}
}

// StreamEvent is a decoded push message or a client state notification.
// The set of implementations is closed: consumers switch exhaustively and
// treat IgnoredEvent as an explicit "not for us" variant rather than a
// silent pass-through.
type StreamEvent interface {
	streamEvent()
}

// BookEvent carries a full order-book snapshot for one instrument.
type BookEvent struct {
	AssetID string
	Book    OrderBook
}

// PriceChangeEvent carries an incremental level update for one instrument.
// Size 0 removes the level.
type PriceChangeEvent struct {
	AssetID string
	Side    string // "BUY" or "SELL"
	Price   float64
	Size    float64
}

// StateChangeEvent notifies consumers of a client state transition. The
// degraded transition is the one callers must react to: it means automatic
// reconnection has given up and polling is the only remaining data path.
type StateChangeEvent struct {
	State StreamState
}

// IgnoredEvent is a message whose tag the client does not understand.
type IgnoredEvent struct {
	Tag string
}

func (BookEvent) streamEvent()        {}
func (PriceChangeEvent) streamEvent() {}
func (StateChangeEvent) streamEvent() {}
func (IgnoredEvent) streamEvent()     {}

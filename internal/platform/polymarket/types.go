package polymarket

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/arbwatch/arbwatch/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma
// API responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Gamma discovery API.
type APIMarket struct {
	ID              string   `json:"id"`
	Question        string   `json:"question"`
	Slug            string   `json:"slug"`
	Outcomes        string   `json:"outcomes"`     // JSON-encoded: e.g. "[\"Yes\",\"No\"]"
	ClobTokenIDs    string   `json:"clobTokenIds"` // JSON-encoded: e.g. "[\"123\",\"456\"]"
	Liquidity       string   `json:"liquidity"`
	Volume24h       string   `json:"volume24hr"`
	Active          flexBool `json:"active"`
	Closed          bool     `json:"closed"`
	AcceptingOrders bool     `json:"acceptingOrders"`
	EnableOrderBook bool     `json:"enableOrderBook"`
	CreatedAt       string   `json:"createdAt"`
	UpdatedAt       string   `json:"updatedAt"`
}

// ToDomainMarket converts a Gamma APIMarket to a domain.Market. ok is false
// when the record does not describe exactly two complementary outcomes with
// parseable token IDs; such records are dropped by discovery, never fatal.
func (m *APIMarket) ToDomainMarket() (domain.Market, bool) {
	var outcomes []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil || len(outcomes) != 2 {
		return domain.Market{}, false
	}
	var tokens []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokens); err != nil || len(tokens) != 2 {
		return domain.Market{}, false
	}
	if tokens[0] == "" || tokens[1] == "" || m.ID == "" {
		return domain.Market{}, false
	}

	// The YES outcome is not guaranteed to come first.
	yesIdx, noIdx := 0, 1
	if strings.EqualFold(outcomes[1], "yes") {
		yesIdx, noIdx = 1, 0
	}

	dm := domain.Market{
		ID:              m.ID,
		Question:        m.Question,
		Slug:            m.Slug,
		YesTokenID:      tokens[yesIdx],
		NoTokenID:       tokens[noIdx],
		Active:          bool(m.Active) && !m.Closed,
		AcceptingOrders: m.AcceptingOrders,
		OrderBookOn:     m.EnableOrderBook,
	}
	if m.Slug != "" {
		dm.URL = "https://polymarket.com/event/" + m.Slug
	}
	if v, err := strconv.ParseFloat(m.Liquidity, 64); err == nil {
		dm.Liquidity = v
	}
	if v, err := strconv.ParseFloat(m.Volume24h, 64); err == nil {
		dm.Volume24h = v
	}
	if t, err := time.Parse(time.RFC3339, m.CreatedAt); err == nil {
		dm.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, m.UpdatedAt); err == nil {
		dm.UpdatedAt = t
	}
	return dm, true
}

// tradable reports whether the market can be watched at all: binary order
// book enabled and currently accepting orders.
func tradable(m domain.Market) bool {
	return m.Active && m.AcceptingOrders && m.OrderBookOn
}

// --------------------------------------------------------------------------
// CLOB order-book DTOs
// --------------------------------------------------------------------------

// apiPriceLevel is a single level with price/size as decimal strings.
type apiPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// apiBook is the order-book endpoint response. The hash is opaque to this
// client and carried through unverified.
type apiBook struct {
	Market    string          `json:"market"`
	AssetID   string          `json:"asset_id"`
	Bids      []apiPriceLevel `json:"bids"`
	Asks      []apiPriceLevel `json:"asks"`
	Timestamp string          `json:"timestamp"`
	Hash      string          `json:"hash"`
}

// toDomainOrderBook converts an apiBook into a domain.OrderBook with asks
// sorted ascending and bids descending. Levels that fail to parse are
// dropped.
func (b *apiBook) toDomainOrderBook() domain.OrderBook {
	book := domain.OrderBook{
		AssetID: b.AssetID,
		Hash:    b.Hash,
	}

	for _, lvl := range b.Bids {
		p, errP := strconv.ParseFloat(lvl.Price, 64)
		s, errS := strconv.ParseFloat(lvl.Size, 64)
		if errP != nil || errS != nil {
			continue
		}
		book.Bids = append(book.Bids, domain.PriceLevel{Price: p, Size: s})
	}
	for _, lvl := range b.Asks {
		p, errP := strconv.ParseFloat(lvl.Price, 64)
		s, errS := strconv.ParseFloat(lvl.Size, 64)
		if errP != nil || errS != nil {
			continue
		}
		book.Asks = append(book.Asks, domain.PriceLevel{Price: p, Size: s})
	}

	sort.Slice(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })
	sort.Slice(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })

	book.Timestamp = parseBookTimestamp(b.Timestamp)
	return book
}

// parseBookTimestamp accepts unix milliseconds, unix seconds, or RFC3339.
func parseBookTimestamp(raw string) time.Time {
	if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if ts > 1_000_000_000_000 {
			return time.UnixMilli(ts)
		}
		return time.Unix(ts, 0)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return time.Now()
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// wsCommand is the JSON payload sent to the stream to subscribe or
// unsubscribe instrument IDs.
type wsCommand struct {
	Type   string   `json:"type"` // "subscribe" or "unsubscribe"
	Assets []string `json:"assets_ids"`
}

// wsEnvelope carries the tag that selects the concrete message shape.
type wsEnvelope struct {
	EventType string `json:"event_type"`
	MsgType   string `json:"msg_type"`
}

// wsPriceChange is an incremental level update pushed by the venue.
type wsPriceChange struct {
	AssetID string `json:"asset_id"`
	Side    string `json:"side"` // "BUY" or "SELL"
	Price   string `json:"price"`
	Size    string `json:"size"` // "0" means level removed
}

// decodeStreamEvent turns a raw frame into a StreamEvent. Unknown or
// malformed payloads become an IgnoredEvent; decoding never fails hard.
func decodeStreamEvent(raw []byte) domain.StreamEvent {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.IgnoredEvent{Tag: "malformed"}
	}
	tag := env.EventType
	if tag == "" {
		tag = env.MsgType
	}

	switch tag {
	case "book":
		var book apiBook
		if err := json.Unmarshal(raw, &book); err != nil || book.AssetID == "" {
			return domain.IgnoredEvent{Tag: "book"}
		}
		return domain.BookEvent{AssetID: book.AssetID, Book: book.toDomainOrderBook()}

	case "price_change":
		var pc wsPriceChange
		if err := json.Unmarshal(raw, &pc); err != nil || pc.AssetID == "" {
			return domain.IgnoredEvent{Tag: "price_change"}
		}
		price, errP := strconv.ParseFloat(pc.Price, 64)
		size, errS := strconv.ParseFloat(pc.Size, 64)
		if errP != nil || errS != nil {
			return domain.IgnoredEvent{Tag: "price_change"}
		}
		return domain.PriceChangeEvent{
			AssetID: pc.AssetID,
			Side:    pc.Side,
			Price:   price,
			Size:    size,
		}

	default:
		return domain.IgnoredEvent{Tag: tag}
	}
}

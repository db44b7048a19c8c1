package domain

import "time"

// PriceLevel is a single price+size entry in an order book side.
type PriceLevel struct {
	Price float64
	Size  float64
}

// BookSide is an ordered sequence of price levels. Ask sides are sorted
// ascending by price, bid sides descending, so the best level is always
// index 0 when the side is non-empty.
type BookSide []PriceLevel

// Best returns the top-of-book level. ok is false when the side is empty.
func (s BookSide) Best() (PriceLevel, bool) {
	if len(s) == 0 {
		return PriceLevel{}, false
	}
	return s[0], true
}

// Depth sums the sizes of up to n levels from the top of the side.
func (s BookSide) Depth(n int) float64 {
	if n > len(s) {
		n = len(s)
	}
	var total float64
	for i := 0; i < n; i++ {
		total += s[i].Size
	}
	return total
}

// ApplyLevel applies an incremental update to the side, keeping it ordered.
// size == 0 removes the level; ascending selects ask ordering, otherwise
// bid ordering is used.
func (s BookSide) ApplyLevel(price, size float64, ascending bool) BookSide {
	for i, lvl := range s {
		if lvl.Price == price {
			if size == 0 {
				return append(s[:i], s[i+1:]...)
			}
			s[i].Size = size
			return s
		}
	}
	if size == 0 {
		return s
	}
	pos := len(s)
	for i, lvl := range s {
		if (ascending && price < lvl.Price) || (!ascending && price > lvl.Price) {
			pos = i
			break
		}
	}
	s = append(s, PriceLevel{})
	copy(s[pos+1:], s[pos:])
	s[pos] = PriceLevel{Price: price, Size: size}
	return s
}

// OrderBook is a snapshot of one instrument's book. The integrity hash is
// carried through opaquely and never verified here.
type OrderBook struct {
	AssetID   string
	Bids      BookSide
	Asks      BookSide
	Timestamp time.Time
	Hash      string
}

// BestAsk returns the lowest ask. ok is false when the ask side is empty.
func (b OrderBook) BestAsk() (PriceLevel, bool) { return b.Asks.Best() }

// BestBid returns the highest bid. ok is false when the bid side is empty.
func (b OrderBook) BestBid() (PriceLevel, bool) { return b.Bids.Best() }

// Spread returns best ask minus best bid. ok is false unless both sides
// have at least one level.
func (b OrderBook) Spread() (float64, bool) {
	ask, okA := b.BestAsk()
	bid, okB := b.BestBid()
	if !okA || !okB {
		return 0, false
	}
	return ask.Price - bid.Price, true
}

// IsEmpty reports whether the book carries no levels on either side.
func (b OrderBook) IsEmpty() bool {
	return len(b.Bids) == 0 && len(b.Asks) == 0
}

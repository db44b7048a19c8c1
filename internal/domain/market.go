package domain

import "time"

// Tier is a scan-priority class. Tier A markets are scanned far more
// frequently than tier B markets.
type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
)

// Market is a binary-outcome prediction market as returned by discovery.
// A Market is immutable after discovery; re-discovery replaces the whole
// value, it is never partially mutated.
type Market struct {
	ID              string
	Question        string
	Slug            string
	YesTokenID      string
	NoTokenID       string
	Liquidity       float64
	Volume24h       float64
	Active          bool
	AcceptingOrders bool
	OrderBookOn     bool
	URL             string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

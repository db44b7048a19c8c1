package domain

import "time"

// ArbSignal is an immutable record of one detected pricing inefficiency:
// the sum of the best YES and NO asks fell below 1 net of the fee buffer,
// sustained long enough for the emission state machine to fire. Produced
// once per emission, never mutated.
type ArbSignal struct {
	ID       string
	MarketID string
	Question string

	YesAskPrice float64
	YesAskSize  float64
	NoAskPrice  float64
	NoAskSize   float64

	SumCost       float64
	EffectiveEdge float64
	Threshold     float64
	FeeBuffer     float64

	Tier     Tier
	LowDepth bool

	// Latency is the round-trip time of the observation that produced the
	// signal. Zero for push-path detections.
	Latency    time.Duration
	DetectedAt time.Time
}

// Package tiering decides which markets deserve fast polling. It scores
// markets on activity metrics, applies operator overrides, and splits the
// watch set into a hot tier and a slow tier.
package tiering

import "github.com/arbwatch/arbwatch/internal/domain"

// ScoreParams weights and normalization scales for market scoring. Each
// term is normalized against its scale and clamped to [0,1] before
// weighting, so one runaway metric cannot dominate the score.
type ScoreParams struct {
	WeightVolume        float64
	WeightLiquidity     float64
	WeightDepth         float64
	WeightNearThreshold float64
	PenaltySpread       float64
	PenaltyStaleness    float64

	NormVolume        float64
	NormLiquidity     float64
	NormDepth         float64
	NormNearThreshold float64
	NormSpread        float64
}

// ScoreInput is the per-market snapshot the score is computed from.
type ScoreInput struct {
	Volume24h          float64
	Liquidity          float64
	TopDepth           float64 // combined size over the top levels of both books
	NearThresholdCount int     // recent scans that came close to signalling
	Spread             float64 // best-ask minus best-bid on the YES book
	StalenessPenalty   float64 // accumulated missed-refresh penalty, [0,1]
}

// Score computes the tiering score. Higher means more interesting. Never
// negative.
func Score(in ScoreInput, p ScoreParams) float64 {
	s := p.WeightVolume*normTerm(in.Volume24h, p.NormVolume) +
		p.WeightLiquidity*normTerm(in.Liquidity, p.NormLiquidity) +
		p.WeightDepth*normTerm(in.TopDepth, p.NormDepth) +
		p.WeightNearThreshold*normTerm(float64(in.NearThresholdCount), p.NormNearThreshold)

	s -= p.PenaltySpread * normTerm(in.Spread, p.NormSpread)
	s -= p.PenaltyStaleness * clamp01(in.StalenessPenalty)

	if s < 0 {
		return 0
	}
	return s
}

// PassesFilters reports whether a discovered market qualifies for the watch
// set at all.
func PassesFilters(m domain.Market, minLiquidity, minVolume24h float64) bool {
	if !m.Active || !m.AcceptingOrders || !m.OrderBookOn {
		return false
	}
	return m.Liquidity >= minLiquidity && m.Volume24h >= minVolume24h
}

func normTerm(v, scale float64) float64 {
	if scale <= 0 {
		return 0
	}
	return clamp01(v / scale)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

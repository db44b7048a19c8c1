package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/arbwatch/arbwatch/internal/domain"
)

var _ domain.SignalStore = (*SignalStore)(nil)

// SignalStore journals fired signals for later inspection.
type SignalStore struct {
	client *Client
}

func NewSignalStore(client *Client) *SignalStore {
	return &SignalStore{client: client}
}

func (s *SignalStore) Insert(ctx context.Context, sig domain.ArbSignal) error {
	_, err := s.client.pool.Exec(ctx, `
		INSERT INTO signals (
			id, market_id, question,
			yes_ask_price, yes_ask_size, no_ask_price, no_ask_size,
			sum_cost, effective_edge, threshold, fee_buffer,
			tier, low_depth, latency_ms, detected_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		sig.ID, sig.MarketID, sig.Question,
		sig.YesAskPrice, sig.YesAskSize, sig.NoAskPrice, sig.NoAskSize,
		sig.SumCost, sig.EffectiveEdge, sig.Threshold, sig.FeeBuffer,
		string(sig.Tier), sig.LowDepth, sig.Latency.Milliseconds(), sig.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert signal %s: %w", sig.ID, err)
	}
	return nil
}

func (s *SignalStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbSignal, error) {
	rows, err := s.client.pool.Query(ctx, `
		SELECT id, market_id, question,
		       yes_ask_price, yes_ask_size, no_ask_price, no_ask_size,
		       sum_cost, effective_edge, threshold, fee_buffer,
		       tier, low_depth, latency_ms, detected_at
		FROM signals
		ORDER BY detected_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals: %w", err)
	}
	defer rows.Close()

	var out []domain.ArbSignal
	for rows.Next() {
		var (
			sig       domain.ArbSignal
			tier      string
			latencyMS int64
		)
		if err := rows.Scan(
			&sig.ID, &sig.MarketID, &sig.Question,
			&sig.YesAskPrice, &sig.YesAskSize, &sig.NoAskPrice, &sig.NoAskSize,
			&sig.SumCost, &sig.EffectiveEdge, &sig.Threshold, &sig.FeeBuffer,
			&tier, &sig.LowDepth, &latencyMS, &sig.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan signal row: %w", err)
		}
		sig.Tier = domain.Tier(tier)
		sig.Latency = time.Duration(latencyMS) * time.Millisecond
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate signals: %w", err)
	}
	return out, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/arbwatch/arbwatch/internal/domain"
)

var _ domain.WatchlistStore = (*WatchlistStore)(nil)

// WatchlistStore persists pin and blacklist overrides.
type WatchlistStore struct {
	client *Client
}

func NewWatchlistStore(client *Client) *WatchlistStore {
	return &WatchlistStore{client: client}
}

func (s *WatchlistStore) Pin(ctx context.Context, marketID string) error {
	_, err := s.client.pool.Exec(ctx,
		`INSERT INTO watchlist_overrides (market_id, kind) VALUES ($1, 'pin')
		 ON CONFLICT DO NOTHING`, marketID)
	if err != nil {
		return fmt.Errorf("postgres: pin %s: %w", marketID, err)
	}
	return nil
}

func (s *WatchlistStore) Unpin(ctx context.Context, marketID string) error {
	_, err := s.client.pool.Exec(ctx,
		`DELETE FROM watchlist_overrides WHERE market_id = $1 AND kind = 'pin'`, marketID)
	if err != nil {
		return fmt.Errorf("postgres: unpin %s: %w", marketID, err)
	}
	return nil
}

// Blacklist bans a market and drops any pin for it in the same
// transaction.
func (s *WatchlistStore) Blacklist(ctx context.Context, marketID string) error {
	tx, err := s.client.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin blacklist: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM watchlist_overrides WHERE market_id = $1 AND kind = 'pin'`, marketID); err != nil {
		return fmt.Errorf("postgres: blacklist clear pin %s: %w", marketID, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO watchlist_overrides (market_id, kind) VALUES ($1, 'blacklist')
		 ON CONFLICT DO NOTHING`, marketID); err != nil {
		return fmt.Errorf("postgres: blacklist %s: %w", marketID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit blacklist %s: %w", marketID, err)
	}
	return nil
}

func (s *WatchlistStore) Unblacklist(ctx context.Context, marketID string) error {
	_, err := s.client.pool.Exec(ctx,
		`DELETE FROM watchlist_overrides WHERE market_id = $1 AND kind = 'blacklist'`, marketID)
	if err != nil {
		return fmt.Errorf("postgres: unblacklist %s: %w", marketID, err)
	}
	return nil
}

func (s *WatchlistStore) Load(ctx context.Context) (pins, blacklist []string, err error) {
	rows, err := s.client.pool.Query(ctx,
		`SELECT market_id, kind FROM watchlist_overrides`)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: load watchlist: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var marketID, kind string
		if err := rows.Scan(&marketID, &kind); err != nil {
			return nil, nil, fmt.Errorf("postgres: scan watchlist row: %w", err)
		}
		switch kind {
		case "pin":
			pins = append(pins, marketID)
		case "blacklist":
			blacklist = append(blacklist, marketID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("postgres: iterate watchlist: %w", err)
	}
	return pins, blacklist, nil
}

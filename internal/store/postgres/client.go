// Package postgres persists the watchlist overrides and the signal journal.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ClientConfig bundles the connection settings.
type ClientConfig struct {
	DSN           string
	MaxConns      int32
	MinConns      int32
	RunMigrations bool
}

// Client owns the connection pool and applies migrations on startup.
type Client struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewClient(ctx context.Context, config ClientConfig, logger *slog.Logger) (*Client, error) {
	cfg, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if config.MaxConns > 0 {
		cfg.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		cfg.MinConns = config.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	c := &Client{pool: pool, logger: logger.With(slog.String("component", "postgres"))}
	if config.RunMigrations {
		if err := c.migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) Close() error {
	c.pool.Close()
	return nil
}

// migrate applies the embedded migrations in filename order. Files are
// idempotent (IF NOT EXISTS), so there is no version table.
func (c *Client) migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := fs.ReadFile(migrationFS, "migrations/"+name)
		if err != nil {
			return fmt.Errorf("postgres: read migration %s: %w", name, err)
		}
		if _, err := c.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("postgres: apply migration %s: %w", name, err)
		}
		c.logger.Debug("migration applied", slog.String("file", name))
	}
	return nil
}

// Package redis provides the Redis-backed order-book cache and signal bus.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the Redis connection and key behaviour.
type Options struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int

	BookTTL       time.Duration
	SignalChannel string
	StreamKey     string
	StreamMaxLen  int64
}

// Client wraps the go-redis client with this service's key conventions.
type Client struct {
	rdb  *redis.Client
	opts Options
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:       opts.Addr,
		Password:   opts.Password,
		DB:         opts.DB,
		PoolSize:   opts.PoolSize,
		MaxRetries: opts.MaxRetries,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return &Client{rdb: rdb, opts: opts}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/arbwatch/arbwatch/internal/domain"
)

var _ domain.OrderbookCache = (*OrderbookCache)(nil)

// OrderbookCache mirrors the latest book per token into Redis so restarts
// and external consumers see fresh data. Entries expire on BookTTL, a
// stale mirror is worse than a miss.
type OrderbookCache struct {
	client *Client
}

func NewOrderbookCache(client *Client) *OrderbookCache {
	return &OrderbookCache{client: client}
}

func bookKey(assetID string) string {
	return "arbwatch:book:" + assetID
}

func (c *OrderbookCache) SetBook(ctx context.Context, assetID string, book domain.OrderBook) error {
	data, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("redis: marshal book: %w", err)
	}
	if err := c.client.rdb.Set(ctx, bookKey(assetID), data, c.client.opts.BookTTL).Err(); err != nil {
		return fmt.Errorf("redis: set book: %w", err)
	}
	return nil
}

func (c *OrderbookCache) GetBook(ctx context.Context, assetID string) (domain.OrderBook, error) {
	data, err := c.client.rdb.Get(ctx, bookKey(assetID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.OrderBook{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("redis: get book: %w", err)
	}
	var book domain.OrderBook
	if err := json.Unmarshal(data, &book); err != nil {
		return domain.OrderBook{}, fmt.Errorf("redis: unmarshal book: %w", err)
	}
	return book, nil
}

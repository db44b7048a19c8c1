package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/arbwatch/arbwatch/internal/domain"
)

// BookClient fetches order-book snapshots from the CLOB REST API. Requests
// go through the shared book rate limiter, independent of discovery.
type BookClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *RateLimiter
	logger     *slog.Logger
}

func NewBookClient(baseURL string, limiter *RateLimiter, timeout time.Duration, logger *slog.Logger) *BookClient {
	return &BookClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		logger:     logger.With(slog.String("component", "book_client")),
	}
}

// GetBook returns the order book for one token. ok is false when no data is
// available this cycle: the token has no book (404), the venue throttled us
// (429, penalty recorded), or the request failed. None of those are fatal
// for a scan loop, so err is reserved for context cancellation.
func (c *BookClient) GetBook(ctx context.Context, tokenID string) (domain.OrderBook, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.OrderBook{}, false, fmt.Errorf("book: wait for rate limit: %w", err)
	}

	body, err := doGet(ctx, c.httpClient, c.baseURL+"/book?token_id="+url.QueryEscape(tokenID))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			return domain.OrderBook{}, false, nil
		case errors.Is(err, domain.ErrRateLimited):
			delay := c.limiter.Penalize()
			c.logger.Warn("book fetch rate limited",
				slog.String("token_id", tokenID),
				slog.Duration("backoff", delay))
			return domain.OrderBook{}, false, nil
		case ctx.Err() != nil:
			return domain.OrderBook{}, false, ctx.Err()
		default:
			c.logger.Warn("book fetch failed",
				slog.String("token_id", tokenID),
				slog.String("error", err.Error()))
			return domain.OrderBook{}, false, nil
		}
	}

	var resp apiBook
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.Warn("book decode failed", slog.String("token_id", tokenID))
		return domain.OrderBook{}, false, nil
	}

	book := resp.toDomainOrderBook()
	if book.AssetID == "" {
		book.AssetID = tokenID
	}
	return book, true, nil
}

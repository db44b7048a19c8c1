package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/arbwatch/arbwatch/internal/domain"
)

// GammaClient discovers markets through the Gamma API. All requests go
// through the shared discovery rate limiter.
type GammaClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *RateLimiter
	pageSize   int
	logger     *slog.Logger
}

func NewGammaClient(baseURL string, limiter *RateLimiter, pageSize int, timeout time.Duration, logger *slog.Logger) *GammaClient {
	return &GammaClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		pageSize:   pageSize,
		logger:     logger.With(slog.String("component", "gamma_client")),
	}
}

// ListMarkets pages through all active markets ordered by 24h volume and
// returns the tradable binary subset. Records that cannot be parsed into a
// two-outcome market are dropped, not fatal. A 429 penalizes the limiter
// and retries the same page.
func (g *GammaClient) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	var (
		out     []domain.Market
		offset  int
		dropped int
	)

	for {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("gamma: wait for rate limit: %w", err)
		}

		page, err := g.fetchPage(ctx, offset)
		if err != nil {
			if errors.Is(err, domain.ErrRateLimited) {
				delay := g.limiter.Penalize()
				g.logger.Warn("discovery rate limited",
					slog.Int("offset", offset),
					slog.Duration("backoff", delay))
				continue
			}
			return nil, err
		}

		for i := range page {
			m, ok := page[i].ToDomainMarket()
			if !ok {
				dropped++
				continue
			}
			if !tradable(m) {
				continue
			}
			out = append(out, m)
		}

		if len(page) < g.pageSize {
			break
		}
		offset += g.pageSize
	}

	g.logger.Debug("discovery complete",
		slog.Int("markets", len(out)),
		slog.Int("dropped", dropped))
	return out, nil
}

func (g *GammaClient) fetchPage(ctx context.Context, offset int) ([]APIMarket, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(g.pageSize))
	params.Set("offset", strconv.Itoa(offset))
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("order", "volume24hr")
	params.Set("ascending", "false")

	body, err := doGet(ctx, g.httpClient, g.baseURL+"/markets?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var page []APIMarket
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("gamma: decode markets page: %w", err)
	}
	return page, nil
}

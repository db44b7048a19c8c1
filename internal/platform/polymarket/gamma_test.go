package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLimiter() *RateLimiter {
	return NewRateLimiter(LimiterConfig{
		Limit:       1000,
		Window:      time.Second,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	})
}

func gammaMarket(id int) APIMarket {
	return APIMarket{
		ID:              strconv.Itoa(id),
		Question:        fmt.Sprintf("Question %d?", id),
		Slug:            fmt.Sprintf("question-%d", id),
		Outcomes:        `["Yes","No"]`,
		ClobTokenIDs:    fmt.Sprintf(`["%d-yes","%d-no"]`, id, id),
		Liquidity:       "1000",
		Volume24h:       "500",
		Active:          true,
		AcceptingOrders: true,
		EnableOrderBook: true,
	}
}

func TestListMarketsPaginates(t *testing.T) {
	const pageSize = 3
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		var page []APIMarket
		switch offset {
		case 0:
			for i := 0; i < pageSize; i++ {
				page = append(page, gammaMarket(i))
			}
		case pageSize:
			page = append(page, gammaMarket(pageSize)) // short page ends pagination
		default:
			t.Errorf("unexpected offset %d", offset)
		}
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	client := NewGammaClient(srv.URL, testLimiter(), pageSize, time.Second, testLogger())
	markets, err := client.ListMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, pageSize+1)
	assert.Equal(t, "0-yes", markets[0].YesTokenID)
}

func TestListMarketsFiltersAndDrops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		good := gammaMarket(1)
		notAccepting := gammaMarket(2)
		notAccepting.AcceptingOrders = false
		threeWay := gammaMarket(3)
		threeWay.Outcomes = `["A","B","C"]`
		json.NewEncoder(w).Encode([]APIMarket{good, notAccepting, threeWay})
	}))
	defer srv.Close()

	client := NewGammaClient(srv.URL, testLimiter(), 100, time.Second, testLogger())
	markets, err := client.ListMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 1)
	assert.Equal(t, "1", markets[0].ID)
}

func TestListMarketsRetriesAfterThrottle(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode([]APIMarket{gammaMarket(1)})
	}))
	defer srv.Close()

	client := NewGammaClient(srv.URL, testLimiter(), 100, time.Second, testLogger())
	markets, err := client.ListMarkets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "same page must be retried after a 429")
	assert.Len(t, markets, 1)
}

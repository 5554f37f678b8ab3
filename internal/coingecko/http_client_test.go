package coingecko

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/observability"
)

const marketsBody = `[
	{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":16625.08,"market_cap":320000000000,
	 "total_volume":12000000000,"price_change_percentage_24h":0.45,"last_updated":"2023-01-07T23:59:00.000Z"},
	{"id":"ethereum","symbol":"eth","name":"Ethereum","current_price":null,"market_cap":150000000000,
	 "last_updated":"2023-01-07T23:59:00.000Z"}
]`

func newTestClient(url string, opts ...ClientOption) *HTTPClient {
	base := []ClientOption{
		WithRetryDelay(time.Millisecond),
		WithMaxDelay(10 * time.Millisecond),
	}
	return NewHTTPClient(url, append(base, opts...)...)
}

func TestHTTPClient_GetMarkets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/markets", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "usd", q.Get("vs_currency"))
		assert.Equal(t, "bitcoin,ethereum", q.Get("ids"))
		assert.Equal(t, "market_cap_desc", q.Get("order"))
		assert.Equal(t, "false", q.Get("sparkline"))
		assert.Equal(t, "secret", r.Header.Get("x-cg-demo-api-key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(marketsBody))
	}))
	defer server.Close()

	client := newTestClient(server.URL, WithAPIKey("", "secret"))

	records, err := client.GetMarkets(context.Background(), []string{"bitcoin", "ethereum"}, "usd")
	require.NoError(t, err)
	require.Len(t, records, 2)

	btc := records[0]
	assert.Equal(t, "bitcoin", btc.ID)
	assert.Equal(t, "btc", btc.Symbol)
	require.True(t, btc.CurrentPrice.Valid)
	assert.True(t, btc.CurrentPrice.Decimal.Equal(decimal.RequireFromString("16625.08")))
	assert.True(t, btc.PercentChange24h.Valid)
	assert.Equal(t, time.Date(2023, 1, 7, 23, 59, 0, 0, time.UTC), btc.Timestamp)

	eth := records[1]
	assert.False(t, eth.CurrentPrice.Valid, "null price stays null")
	assert.False(t, eth.PercentChange24h.Valid, "absent field stays null")
	assert.False(t, eth.TotalVolume.Valid)
	assert.True(t, eth.MarketCap.Valid)
}

func TestHTTPClient_GetMarkets_UnknownCoin(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`[{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":1}]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	records, err := client.GetMarkets(context.Background(), []string{"bitcoin", "notacoin"}, "usd")
	assert.Nil(t, records, "no partial result")
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	assert.ErrorIs(t, err, ErrUnknownCoin)
	assert.Contains(t, err.Error(), "notacoin")
	assert.Equal(t, int32(1), requests.Load())
}

func TestHTTPClient_GetMarketChartRange(t *testing.T) {
	from := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/bitcoin/market_chart/range", r.URL.Path)
		assert.Equal(t, "eur", r.URL.Query().Get("vs_currency"))
		assert.Equal(t, "1672531200", r.URL.Query().Get("from"))
		assert.Equal(t, "1672617600", r.URL.Query().Get("to"))

		// second sample delivered first; one market cap missing
		w.Write([]byte(`{
			"prices": [[1672617600000, 16700.5], [1672531200000, 16500.25]],
			"market_caps": [[1672617600000, 321000000000]],
			"total_volumes": [[1672617600000, 9000000], [1672531200000, 8000000]]
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	series, err := client.GetMarketChartRange(context.Background(), "bitcoin", "eur", from, to)
	require.NoError(t, err)
	assert.Equal(t, "bitcoin", series.CoinID)
	assert.Equal(t, "eur", series.Currency)
	require.Equal(t, 2, series.Len())

	first, second := series.Points[0], series.Points[1]
	assert.Equal(t, from, first.Timestamp, "sorted by timestamp ASC")
	assert.True(t, first.Price.Decimal.Equal(decimal.RequireFromString("16500.25")))
	assert.False(t, first.MarketCap.Valid, "missing market cap is null")
	assert.True(t, first.Volume.Valid)
	assert.Equal(t, to, second.Timestamp)
	assert.True(t, second.MarketCap.Valid)
}

func TestHTTPClient_GetMarketChartRange_NotFound(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"coin not found"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.GetMarketChartRange(context.Background(), "notacoin", "usd", time.Unix(0, 0), time.Unix(10, 0))
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	assert.ErrorIs(t, err, ErrUnknownCoin)
	assert.Contains(t, err.Error(), "coin not found")
	assert.Equal(t, int32(1), requests.Load(), "4xx is not retried")
}

func TestHTTPClient_RetriesServerErrorOnce(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	before := testutil.ToFloat64(observability.DefaultMetrics.UpstreamRetries.WithLabelValues(EndpointCoinList))

	_, err := client.GetCoinList(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)

	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusBadGateway, fe.StatusCode)
	assert.Equal(t, int32(2), requests.Load(), "one attempt plus one retry")

	after := testutil.ToFloat64(observability.DefaultMetrics.UpstreamRetries.WithLabelValues(EndpointCoinList))
	assert.Equal(t, 1.0, after-before)
}

func TestHTTPClient_NegativeMaxRetriesMeansNoRetry(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL, WithMaxRetries(-3))
	assert.Equal(t, 0, client.maxRetries)

	_, err := client.GetCoinList(context.Background())
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	assert.Equal(t, int32(1), requests.Load())
}

func TestHTTPClient_RetrySucceeds(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[{"id":"bitcoin","symbol":"btc","name":"Bitcoin"}]`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	coins, err := client.GetCoinList(context.Background())
	require.NoError(t, err)
	require.Len(t, coins, 1)
	assert.Equal(t, "bitcoin", coins[0].ID)
	assert.Equal(t, int32(2), requests.Load())
}

func TestHTTPClient_RateLimitBeyondMaxDelay(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.GetMarkets(context.Background(), []string{"bitcoin"}, "usd")
	require.Error(t, err)

	var fe *domain.FetchError
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.RateLimited())
	assert.Equal(t, 60*time.Second, fe.RetryAfter)
	assert.Equal(t, int32(1), requests.Load(), "not retried when the wait exceeds max delay")
}

func TestHTTPClient_MalformedJSON(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(`{"prices": [[1, `))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.GetMarketChartRange(context.Background(), "bitcoin", "usd", time.Unix(0, 0), time.Unix(10, 0))
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	assert.Contains(t, err.Error(), "unmarshal response")
	assert.Equal(t, int32(1), requests.Load())
}

func TestHTTPClient_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetCoinList(ctx)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, 30*time.Second, parseRetryAfter("30", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-5", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
	assert.Equal(t, 90*time.Second, parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
}

// Package stub provides an in-memory coingecko.Client for tests.
package stub

import (
	"context"
	"strings"
	"sync"
	"time"

	"crypto-dashboard/internal/coingecko"
	"crypto-dashboard/internal/domain"
)

// Client implements coingecko.Client from canned data and counts calls.
type Client struct {
	mu      sync.Mutex
	Coins   []domain.CoinInfo
	Markets map[string]domain.CoinRecord        // keyed by coin id
	Series  map[string]*domain.HistoricalSeries // keyed by coin id
	Err     error                               // returned by every call when set
	Gate    chan struct{}                       // when set, GetMarkets waits for it to close

	calls map[string]int
}

// NewClient creates a new stub client.
func NewClient() *Client {
	return &Client{
		Markets: make(map[string]domain.CoinRecord),
		Series:  make(map[string]*domain.HistoricalSeries),
		calls:   make(map[string]int),
	}
}

var _ coingecko.Client = (*Client)(nil)

// GetCoinList returns the canned coin list.
func (c *Client) GetCoinList(_ context.Context) ([]domain.CoinInfo, error) {
	c.record(coingecko.EndpointCoinList)
	if c.Err != nil {
		return nil, c.Err
	}
	return append([]domain.CoinInfo(nil), c.Coins...), nil
}

// GetMarkets returns the canned records for ids in request order.
// Unknown ids fail the whole call, like the HTTP client.
func (c *Client) GetMarkets(ctx context.Context, ids []string, _ string) ([]domain.CoinRecord, error) {
	c.record(coingecko.EndpointMarkets)
	if c.Gate != nil {
		select {
		case <-c.Gate:
		case <-ctx.Done():
			return nil, &domain.FetchError{Op: coingecko.EndpointMarkets, Err: ctx.Err()}
		}
	}
	if c.Err != nil {
		return nil, c.Err
	}

	var missing []string
	records := make([]domain.CoinRecord, 0, len(ids))
	for _, id := range ids {
		rec, ok := c.Markets[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		records = append(records, rec)
	}
	if len(missing) > 0 {
		return nil, &domain.FetchError{
			Op:     coingecko.EndpointMarkets,
			CoinID: strings.Join(missing, ","),
			Err:    coingecko.ErrUnknownCoin,
		}
	}
	return records, nil
}

// GetMarketChartRange returns the canned series points within [from, to].
func (c *Client) GetMarketChartRange(_ context.Context, id, currency string, from, to time.Time) (*domain.HistoricalSeries, error) {
	c.record(coingecko.EndpointMarketChart)
	if c.Err != nil {
		return nil, c.Err
	}

	s, ok := c.Series[id]
	if !ok {
		return nil, &domain.FetchError{
			Op:         coingecko.EndpointMarketChart,
			CoinID:     id,
			StatusCode: 404,
			Err:        coingecko.ErrUnknownCoin,
		}
	}

	out := &domain.HistoricalSeries{CoinID: id, Currency: currency}
	for _, p := range s.Points {
		if p.Timestamp.Before(from) || p.Timestamp.After(to) {
			continue
		}
		out.Points = append(out.Points, p)
	}
	return out, nil
}

// AddMarket adds a market record.
func (c *Client) AddMarket(rec domain.CoinRecord) {
	c.Markets[rec.ID] = rec
}

// AddSeries adds a historical series.
func (c *Client) AddSeries(s *domain.HistoricalSeries) {
	c.Series[s.CoinID] = s
}

// Calls returns how many times endpoint was called.
func (c *Client) Calls(endpoint string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[endpoint]
}

// TotalCalls returns the number of calls across all endpoints.
func (c *Client) TotalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

func (c *Client) record(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[endpoint]++
}

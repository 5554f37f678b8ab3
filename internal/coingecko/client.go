// Package coingecko is a read-only client for the CoinGecko market data API.
package coingecko

import (
	"context"
	"time"

	"crypto-dashboard/internal/domain"
)

// Client defines the market data endpoints used by the dashboard.
type Client interface {
	// GetCoinList retrieves all coin identifiers known to the API.
	GetCoinList(ctx context.Context) ([]domain.CoinInfo, error)

	// GetMarkets retrieves current market data for ids priced in currency.
	// Fails if any id is unknown to the API.
	GetMarkets(ctx context.Context, ids []string, currency string) ([]domain.CoinRecord, error)

	// GetMarketChartRange retrieves the price history of id within [from, to].
	GetMarketChartRange(ctx context.Context, id, currency string, from, to time.Time) (*domain.HistoricalSeries, error)
}

// Endpoint names used in logs, metrics and errors.
const (
	EndpointCoinList    = "coin_list"
	EndpointMarkets     = "markets"
	EndpointMarketChart = "market_chart_range"
)

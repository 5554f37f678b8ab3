package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CoinInfo is one entry of the upstream coin list.
type CoinInfo struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// CoinRecord is the current market snapshot of a single coin.
// Numeric fields are null when the upstream response omitted them.
type CoinRecord struct {
	ID               string              // coin identifier, e.g. "bitcoin"
	Symbol           string              // ticker, e.g. "btc"
	Name             string              // display name
	CurrentPrice     decimal.NullDecimal // price in the query currency
	MarketCap        decimal.NullDecimal // market capitalization in the query currency
	PercentChange24h decimal.NullDecimal // price change over 24h, percent
	TotalVolume      decimal.NullDecimal // 24h traded volume
	Timestamp        time.Time           // upstream last_updated, zero if absent
}

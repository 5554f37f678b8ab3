package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SeriesPoint is one sample of a historical series.
type SeriesPoint struct {
	Timestamp time.Time
	Price     decimal.NullDecimal
	MarketCap decimal.NullDecimal
	Volume    decimal.NullDecimal
}

// HistoricalSeries holds the samples of one coin over a date range,
// ordered by timestamp ASC. Duplicate timestamps are kept as delivered.
type HistoricalSeries struct {
	CoinID   string
	Currency string
	Points   []SeriesPoint
}

// Len returns the number of points.
func (s *HistoricalSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

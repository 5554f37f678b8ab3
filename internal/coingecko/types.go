package coingecko

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"crypto-dashboard/internal/domain"
)

// marketResult is one element of the /coins/markets response.
// NullDecimal keeps absent and null fields distinguishable from zero.
type marketResult struct {
	ID                       string              `json:"id"`
	Symbol                   string              `json:"symbol"`
	Name                     string              `json:"name"`
	CurrentPrice             decimal.NullDecimal `json:"current_price"`
	MarketCap                decimal.NullDecimal `json:"market_cap"`
	TotalVolume              decimal.NullDecimal `json:"total_volume"`
	PriceChangePercentage24h decimal.NullDecimal `json:"price_change_percentage_24h"`
	LastUpdated              string              `json:"last_updated"`
}

func (r *marketResult) toDomain() domain.CoinRecord {
	rec := domain.CoinRecord{
		ID:               r.ID,
		Symbol:           r.Symbol,
		Name:             r.Name,
		CurrentPrice:     r.CurrentPrice,
		MarketCap:        r.MarketCap,
		PercentChange24h: r.PriceChangePercentage24h,
		TotalVolume:      r.TotalVolume,
	}
	if ts, err := time.Parse(time.RFC3339Nano, r.LastUpdated); err == nil {
		rec.Timestamp = ts.UTC()
	}
	return rec
}

// marketChartResult is the /coins/{id}/market_chart/range response.
// Each sample is [timestamp_ms, value].
type marketChartResult struct {
	Prices       [][]decimal.NullDecimal `json:"prices"`
	MarketCaps   [][]decimal.NullDecimal `json:"market_caps"`
	TotalVolumes [][]decimal.NullDecimal `json:"total_volumes"`
}

// toDomain zips the three sample arrays by index. Prices drive the row set;
// market cap and volume samples missing at an index stay null.
func (r *marketChartResult) toDomain(id, currency string) *domain.HistoricalSeries {
	series := &domain.HistoricalSeries{
		CoinID:   id,
		Currency: currency,
		Points:   make([]domain.SeriesPoint, 0, len(r.Prices)),
	}

	for i, p := range r.Prices {
		point := domain.SeriesPoint{
			Timestamp: sampleTime(p),
			Price:     sampleValue(p),
		}
		if i < len(r.MarketCaps) {
			point.MarketCap = sampleValue(r.MarketCaps[i])
		}
		if i < len(r.TotalVolumes) {
			point.Volume = sampleValue(r.TotalVolumes[i])
		}
		series.Points = append(series.Points, point)
	}

	sort.SliceStable(series.Points, func(i, j int) bool {
		return series.Points[i].Timestamp.Before(series.Points[j].Timestamp)
	})

	return series
}

func sampleTime(sample []decimal.NullDecimal) time.Time {
	if len(sample) < 1 || !sample[0].Valid {
		return time.Time{}
	}
	return time.UnixMilli(sample[0].Decimal.IntPart()).UTC()
}

func sampleValue(sample []decimal.NullDecimal) decimal.NullDecimal {
	if len(sample) < 2 {
		return decimal.NullDecimal{}
	}
	return sample[1]
}

// apiError is the error body CoinGecko returns with 4xx statuses.
type apiError struct {
	Error  string `json:"error"`
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

func (e apiError) message() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Status.ErrorMessage
}

// Package charts renders dashboard charts as ECharts HTML.
package charts

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"crypto-dashboard/internal/domain"
	"crypto-dashboard/internal/table"
)

const (
	chartWidth  = "900px"
	chartHeight = "420px"
)

func initOpts(title string) charts.GlobalOpts {
	return charts.WithInitializationOpts(opts.Initialization{
		PageTitle: title,
		Width:     chartWidth,
		Height:    chartHeight,
	})
}

// PriceBar charts the current price of each record.
func PriceBar(records []domain.CoinRecord, currency string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		initOpts("Live Prices"),
		charts.WithTitleOpts(opts.Title{Title: "Live Prices", Subtitle: strings.ToUpper(currency)}),
	)

	names := make([]string, 0, len(records))
	data := make([]opts.BarData, 0, len(records))
	for _, r := range records {
		names = append(names, displayName(r))
		data = append(data, opts.BarData{Value: floatOrNil(r.CurrentPrice.Valid, r.CurrentPrice.Decimal.InexactFloat64())})
	}

	bar.SetXAxis(names).AddSeries("Price", data)
	return bar
}

// ChangeBar charts the 24h percent change of each record.
func ChangeBar(records []domain.CoinRecord) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		initOpts("24 Hour Change"),
		charts.WithTitleOpts(opts.Title{Title: "24 Hour Change", Subtitle: "%"}),
	)

	names := make([]string, 0, len(records))
	data := make([]opts.BarData, 0, len(records))
	for _, r := range records {
		names = append(names, displayName(r))
		data = append(data, opts.BarData{Value: floatOrNil(r.PercentChange24h.Valid, r.PercentChange24h.Decimal.InexactFloat64())})
	}

	bar.SetXAxis(names).AddSeries("24h Change (%)", data)
	return bar
}

// HistoryLine charts the price of one series keyed by timestamp.
func HistoryLine(s *domain.HistoricalSeries) *charts.Line {
	title := fmt.Sprintf("%s Historical Price Trend", titleCase(s.CoinID))

	line := charts.NewLine()
	line.SetGlobalOptions(
		initOpts(title),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "Price (" + strings.ToUpper(s.Currency) + ")"}),
	)

	xs := make([]string, 0, s.Len())
	data := make([]opts.LineData, 0, s.Len())
	for _, p := range s.Points {
		xs = append(xs, table.Timestamp(p.Timestamp).String())
		data = append(data, opts.LineData{Value: floatOrNil(p.Price.Valid, p.Price.Decimal.InexactFloat64())})
	}

	line.SetXAxis(xs).AddSeries(s.CoinID, data)
	return line
}

// DominancePie charts market cap shares as a donut.
func DominancePie(shares []table.Share) *charts.Pie {
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		initOpts("Market Cap Dominance"),
		charts.WithTitleOpts(opts.Title{Title: "Market Cap Share"}),
	)

	data := make([]opts.PieData, 0, len(shares))
	for _, s := range shares {
		data = append(data, opts.PieData{Name: s.Name, Value: s.Percent.InexactFloat64()})
	}

	pie.AddSeries("Market Cap", data,
		charts.WithPieChartOpts(opts.PieChart{Radius: []string{"40%", "75%"}}))
	return pie
}

// RenderPage writes every chart to w as one HTML page.
func RenderPage(w io.Writer, title string, cs ...components.Charter) error {
	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(cs...)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render charts: %w", err)
	}
	return nil
}

func displayName(r domain.CoinRecord) string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// floatOrNil leaves gaps in charts for missing values.
func floatOrNil(valid bool, v float64) interface{} {
	if !valid {
		return nil
	}
	return v
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

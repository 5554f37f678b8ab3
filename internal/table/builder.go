package table

import (
	"crypto-dashboard/internal/domain"
)

// Table names, also used as export file stems.
const (
	MarketTableName  = "markets"
	HistoryTableName = "history"
)

// Market table columns.
const (
	ColCoin      = "Coin"
	ColName      = "Name"
	ColSymbol    = "Symbol"
	ColPrice     = "Price"
	ColMarketCap = "Market Cap"
	ColChange24h = "24h Change (%)"
	ColTimestamp = "Timestamp"
	ColDate      = "Date"
	ColVolume    = "Volume"
)

// MarketColumns are the columns of MarketTable.
var MarketColumns = []string{ColCoin, ColName, ColSymbol, ColPrice, ColMarketCap, ColChange24h, ColTimestamp}

// HistoryColumns are the columns of HistoryTable.
var HistoryColumns = []string{ColCoin, ColDate, ColPrice, ColMarketCap, ColVolume}

// MarketTable builds one row per record, in record order.
// Missing values become placeholder cells; the row is kept.
func MarketTable(records []domain.CoinRecord) *Table {
	t := &Table{
		Name:    MarketTableName,
		Columns: MarketColumns,
		Rows:    make([]Row, 0, len(records)),
	}

	for _, r := range records {
		t.Rows = append(t.Rows, Row{
			Text(r.ID),
			textOrNull(r.Name),
			textOrNull(r.Symbol),
			Number(r.CurrentPrice),
			Number(r.MarketCap),
			Number(r.PercentChange24h),
			Timestamp(r.Timestamp),
		})
	}

	return t
}

// HistoryTable builds one row per series point, series after series.
// Price is rounded to cents, market cap and volume to whole units.
func HistoryTable(series ...*domain.HistoricalSeries) *Table {
	n := 0
	for _, s := range series {
		n += s.Len()
	}

	t := &Table{
		Name:    HistoryTableName,
		Columns: HistoryColumns,
		Rows:    make([]Row, 0, n),
	}

	for _, s := range series {
		if s == nil {
			continue
		}
		for _, p := range s.Points {
			t.Rows = append(t.Rows, Row{
				Text(s.CoinID),
				Timestamp(p.Timestamp),
				RoundedNumber(p.Price, 2),
				RoundedNumber(p.MarketCap, 0),
				RoundedNumber(p.Volume, 0),
			})
		}
	}

	return t
}

// ForCoin returns the rows of t whose Coin column equals id.
func ForCoin(t *Table, id string) *Table {
	col := t.Column(ColCoin)
	if col < 0 {
		return t
	}
	out := t.Filter(func(r Row) bool {
		return r[col].Text == id
	})
	out.Name = t.Name + "_" + id
	return out
}

func textOrNull(s string) Cell {
	if s == "" {
		return Null()
	}
	return Text(s)
}

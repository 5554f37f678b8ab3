package table

import (
	"sort"

	"github.com/shopspring/decimal"

	"crypto-dashboard/internal/domain"
)

// percentPlaces is the precision of dominance percentages.
const percentPlaces = 4

var hundred = decimal.NewFromInt(100)

// Share is one coin's slice of the combined market cap.
type Share struct {
	CoinID    string
	Name      string
	MarketCap decimal.Decimal
	Percent   decimal.Decimal // 0..100
}

// Dominance computes each coin's share of the combined market cap of records,
// sorted by market cap DESC. Records without a positive market cap are left out.
// Returns nil when nothing has a market cap.
func Dominance(records []domain.CoinRecord) []Share {
	total := decimal.Zero
	shares := make([]Share, 0, len(records))
	for _, r := range records {
		if !r.MarketCap.Valid || !r.MarketCap.Decimal.IsPositive() {
			continue
		}
		name := r.Name
		if name == "" {
			name = r.ID
		}
		shares = append(shares, Share{CoinID: r.ID, Name: name, MarketCap: r.MarketCap.Decimal})
		total = total.Add(r.MarketCap.Decimal)
	}
	if len(shares) == 0 {
		return nil
	}

	sort.SliceStable(shares, func(i, j int) bool {
		return shares[i].MarketCap.GreaterThan(shares[j].MarketCap)
	})

	// Rounding residue goes to the largest slice so the total is exactly 100.
	sum := decimal.Zero
	for i := range shares {
		shares[i].Percent = shares[i].MarketCap.Mul(hundred).DivRound(total, percentPlaces)
		sum = sum.Add(shares[i].Percent)
	}
	shares[0].Percent = shares[0].Percent.Add(hundred.Sub(sum))

	return shares
}

// DominanceTable renders shares as a table.
func DominanceTable(shares []Share) *Table {
	t := &Table{
		Name:    "dominance",
		Columns: []string{ColCoin, ColName, ColMarketCap, "Share (%)"},
		Rows:    make([]Row, 0, len(shares)),
	}
	for _, s := range shares {
		t.Rows = append(t.Rows, Row{
			Text(s.CoinID),
			Text(s.Name),
			Cell{Kind: KindNumber, Number: s.MarketCap},
			Cell{Kind: KindNumber, Number: s.Percent},
		})
	}
	return t
}

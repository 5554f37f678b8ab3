// Package table flattens market data into display and export ready tables.
// All functions are pure.
package table

import (
	"time"

	"github.com/shopspring/decimal"
)

// Placeholder is rendered for values the upstream API did not provide.
const Placeholder = "N/A"

// TimeLayout is how timestamps render in tables and CSV.
const TimeLayout = "2006-01-02 15:04:05"

// CellKind identifies the value held by a Cell.
type CellKind int

const (
	KindNull CellKind = iota
	KindText
	KindNumber
	KindTime
)

// Cell is a single typed table value.
type Cell struct {
	Kind   CellKind
	Text   string
	Number decimal.Decimal
	Time   time.Time
}

// Null returns a placeholder cell.
func Null() Cell {
	return Cell{Kind: KindNull}
}

// Text returns a text cell.
func Text(s string) Cell {
	return Cell{Kind: KindText, Text: s}
}

// Number returns a number cell, or a null cell if d is not valid.
func Number(d decimal.NullDecimal) Cell {
	if !d.Valid {
		return Null()
	}
	return Cell{Kind: KindNumber, Number: d.Decimal}
}

// RoundedNumber is Number rounded to places decimal places.
func RoundedNumber(d decimal.NullDecimal, places int32) Cell {
	if !d.Valid {
		return Null()
	}
	return Cell{Kind: KindNumber, Number: d.Decimal.Round(places)}
}

// Timestamp returns a time cell, or a null cell for the zero time.
func Timestamp(t time.Time) Cell {
	if t.IsZero() {
		return Null()
	}
	return Cell{Kind: KindTime, Time: t.UTC()}
}

// IsNull reports whether c holds no value.
func (c Cell) IsNull() bool {
	return c.Kind == KindNull
}

// String renders the cell for display and CSV.
func (c Cell) String() string {
	switch c.Kind {
	case KindText:
		return c.Text
	case KindNumber:
		return c.Number.String()
	case KindTime:
		return c.Time.Format(TimeLayout)
	default:
		return Placeholder
	}
}

// Row is one table row, aligned with Table.Columns.
type Row []Cell

// Table is a named, flat set of rows.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Column returns the index of the named column, or -1.
func (t *Table) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Strings renders every row as strings.
func (t *Table) Strings() [][]string {
	out := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rec := make([]string, len(row))
		for j, c := range row {
			rec[j] = c.String()
		}
		out[i] = rec
	}
	return out
}

// Filter returns a table with the rows for which keep returns true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := &Table{Name: t.Name, Columns: t.Columns, Rows: make([]Row, 0, len(t.Rows))}
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

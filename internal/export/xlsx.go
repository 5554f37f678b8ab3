package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"crypto-dashboard/internal/table"
)

// SheetName is the single worksheet of an XLSX export.
const SheetName = "Sheet1"

// XLSX renders t as a one-sheet workbook: a header row, then one row per table row.
// Numbers are written as numeric cells; placeholders as text.
func XLSX(t *table.Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]interface{}, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write xlsx header: %w", err)
	}

	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("xlsx cell name: %w", err)
		}
		values := make([]interface{}, len(row))
		for j, c := range row {
			values[j] = xlsxValue(c)
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("write xlsx row %d: %w", i+1, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func xlsxValue(c table.Cell) interface{} {
	switch c.Kind {
	case table.KindNumber:
		return c.Number.InexactFloat64()
	default:
		// Times as text keep the sheet free of date styles.
		return c.String()
	}
}

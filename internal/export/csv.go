package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"crypto-dashboard/internal/table"
)

// CSV renders t as UTF-8, comma-delimited CSV with a header row.
func CSV(t *table.Table) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if err := w.WriteAll(t.Strings()); err != nil {
		return nil, fmt.Errorf("write csv rows: %w", err)
	}

	return buf.Bytes(), nil
}

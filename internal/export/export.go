// Package export serializes tables into downloadable CSV and XLSX files.
package export

import (
	"fmt"
	"strings"

	"crypto-dashboard/internal/table"
)

// Format is a download format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat parses a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Filename returns the download name for a table.
func (f Format) Filename(stem string) string {
	return fmt.Sprintf("%s.%s", stem, f)
}

// Encode serializes t in format f.
func Encode(t *table.Table, f Format) ([]byte, error) {
	switch f {
	case FormatCSV:
		return CSV(t)
	case FormatXLSX:
		return XLSX(t)
	default:
		return nil, fmt.Errorf("unsupported export format %q", f)
	}
}

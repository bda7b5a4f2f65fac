package export

import (
	"fmt"
	"strings"
)

// Format names a supported export encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatICS  Format = "ics"
	FormatXLSX Format = "xlsx"
)

// ParseFormat normalises a user supplied format; empty means CSV.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatPDF, FormatICS, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatICS:
		return "text/calendar; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Table is tabular export content; every row has len(Headers) cells.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// File is a rendered export ready to stream.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

func (t Table) validate(kind string) error {
	if len(t.Headers) == 0 {
		return fmt.Errorf("%s requires at least one header", kind)
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Headers) {
			return fmt.Errorf("%s row %d has %d cells, want %d", kind, i, len(row), len(t.Headers))
		}
	}
	return nil
}

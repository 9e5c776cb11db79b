// Package export writes extraction results as spreadsheets and CSV.
package export

import (
	"fmt"
	"strings"
)

// Table names one of the exportable tables.
type Table string

const (
	TableRecords   Table = "records"
	TableMaterials Table = "materials"
	TablePatches   Table = "patches"
)

// ParseTable accepts a table name case-insensitively. Empty means records.
func ParseTable(s string) (Table, error) {
	switch t := Table(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TableRecords, nil
	case TableRecords, TableMaterials, TablePatches:
		return t, nil
	default:
		return "", fmt.Errorf("unknown table %q", s)
	}
}

// Format is an output file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatXLSX, nil
	case FormatXLSX, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// bool columns are written the way the workshop sheets spell them.
func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

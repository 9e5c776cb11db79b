package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/brunobiangulo/worksheet/pipeline"
	"github.com/brunobiangulo/worksheet/record"
	"github.com/brunobiangulo/worksheet/summary"
)

type recordRow struct {
	Sequence  int    `csv:"sequence"`
	Page      int    `csv:"page"`
	Customer  string `csv:"customer"`
	TireSize  string `csv:"tire_size"`
	TreadCode string `csv:"tread_code"`
	Width     string `csv:"width"`
	Patches   string `csv:"patches"`
	Scrap     string `csv:"scrap"`
	Ambiguous string `csv:"ambiguous"`
}

type materialRow struct {
	TireSize  string `csv:"tire_size"`
	TreadCode string `csv:"tread_code"`
	Width     string `csv:"width"`
	Count     int    `csv:"count"`
}

type patchRow struct {
	PatchCode string `csv:"patch_code"`
	Count     int    `csv:"count"`
}

func recordRows(records []record.Record) []*recordRow {
	rows := make([]*recordRow, len(records))
	for i, r := range records {
		rows[i] = &recordRow{
			Sequence:  r.Sequence,
			Page:      r.Page,
			Customer:  r.Customer,
			TireSize:  r.TireSize,
			TreadCode: r.TreadCode,
			Width:     r.Width,
			Patches:   r.Patches,
			Scrap:     yesNo(r.IsScrap),
			Ambiguous: yesNo(r.Ambiguous),
		}
	}
	return rows
}

func materialRows(groups []summary.MaterialGroup) []*materialRow {
	rows := make([]*materialRow, len(groups))
	for i, g := range groups {
		rows[i] = &materialRow{TireSize: g.TireSize, TreadCode: g.TreadCode, Width: g.Width, Count: g.Count}
	}
	return rows
}

func patchRows(groups []summary.PatchGroup) []*patchRow {
	rows := make([]*patchRow, len(groups))
	for i, g := range groups {
		rows[i] = &patchRow{PatchCode: g.PatchCode, Count: g.Count}
	}
	return rows
}

// WriteRecordsCSV writes one line per record after a header line.
func WriteRecordsCSV(w io.Writer, records []record.Record) error {
	return marshal(recordRows(records), w)
}

// WriteMaterialsCSV writes the material groups in their summary order.
func WriteMaterialsCSV(w io.Writer, groups []summary.MaterialGroup) error {
	return marshal(materialRows(groups), w)
}

// WritePatchesCSV writes the patch groups in their summary order.
func WritePatchesCSV(w io.Writer, groups []summary.PatchGroup) error {
	return marshal(patchRows(groups), w)
}

// WriteCSV writes one table of res.
func WriteCSV(w io.Writer, res *pipeline.Result, table Table) error {
	switch table {
	case TableRecords:
		return WriteRecordsCSV(w, res.Records)
	case TableMaterials:
		return WriteMaterialsCSV(w, res.MaterialGroups)
	case TablePatches:
		return WritePatchesCSV(w, res.PatchGroups)
	default:
		return fmt.Errorf("unknown table %q", table)
	}
}

// ReadRecordsCSV reads records in the WriteRecordsCSV layout. Empty tread
// code, width and patches cells read as record.Unknown, and the scrap and
// ambiguous columns accept yes/no, true/false, 1/0 and x.
func ReadRecordsCSV(r io.Reader) ([]record.Record, error) {
	var rows []*recordRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	records := make([]record.Record, len(rows))
	for i, row := range rows {
		records[i] = record.Record{
			Sequence:  row.Sequence,
			Page:      row.Page,
			Customer:  strings.TrimSpace(row.Customer),
			TireSize:  strings.TrimSpace(row.TireSize),
			TreadCode: orUnknown(row.TreadCode),
			Width:     orUnknown(row.Width),
			Patches:   orUnknown(row.Patches),
			IsScrap:   truthy(row.Scrap),
			Ambiguous: truthy(row.Ambiguous),
		}
	}
	return records, nil
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return record.Unknown
	}
	return s
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1", "x", "jah":
		return true
	}
	return false
}

func marshal(rows interface{}, w io.Writer) error {
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("writing CSV: %w", err)
	}
	return nil
}

package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/worksheet/pipeline"
)

const (
	SheetRecords   = "Records"
	SheetMaterials = "Materials"
	SheetPatches   = "Patches"
	SheetSummary   = "Summary"
)

// WriteXLSX writes res as a workbook with one sheet per table plus a
// summary sheet with the totals.
func WriteXLSX(w io.Writer, res *pipeline.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetRecords); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	for _, name := range []string{SheetMaterials, SheetPatches, SheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("adding sheet %s: %w", name, err)
		}
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}

	sw := &sheetWriter{f: f, header: header}

	sw.table(SheetRecords,
		[]interface{}{"Nr", "Page", "Customer", "Tire size", "Tread code", "Width", "Patches", "Scrap", "Ambiguous"},
		len(res.Records), func(i int) []interface{} {
			r := res.Records[i]
			return []interface{}{r.Sequence, r.Page, r.Customer, r.TireSize, r.TreadCode, r.Width, r.Patches, yesNo(r.IsScrap), yesNo(r.Ambiguous)}
		})
	sw.table(SheetMaterials,
		[]interface{}{"Tire size", "Tread code", "Width", "Count"},
		len(res.MaterialGroups), func(i int) []interface{} {
			g := res.MaterialGroups[i]
			return []interface{}{g.TireSize, g.TreadCode, g.Width, g.Count}
		})
	sw.table(SheetPatches,
		[]interface{}{"Patch code", "Count"},
		len(res.PatchGroups), func(i int) []interface{} {
			g := res.PatchGroups[i]
			return []interface{}{g.PatchCode, g.Count}
		})

	t := res.Totals
	totals := [][]interface{}{
		{"Pages", res.Pages},
		{"Rows", t.Rows},
		{"Production rows", t.ProductionRows},
		{"Scrap rows", t.ScrapRows},
		{"Ambiguous rows", t.AmbiguousRows},
		{"Material pieces", t.MaterialPieces},
		{"Patch pieces", t.PatchPieces},
	}
	sw.table(SheetSummary, []interface{}{"Metric", "Value"}, len(totals), func(i int) []interface{} { return totals[i] })

	if sw.err != nil {
		return sw.err
	}
	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing XLSX: %w", err)
	}
	return nil
}

// sheetWriter keeps the first error so the table calls read linearly.
type sheetWriter struct {
	f      *excelize.File
	header int
	err    error
}

func (s *sheetWriter) table(sheet string, head []interface{}, n int, row func(int) []interface{}) {
	if s.err != nil {
		return
	}
	if err := s.f.SetSheetRow(sheet, "A1", &head); err != nil {
		s.err = fmt.Errorf("writing %s header: %w", sheet, err)
		return
	}
	last, _ := excelize.CoordinatesToCellName(len(head), 1)
	if err := s.f.SetCellStyle(sheet, "A1", last, s.header); err != nil {
		s.err = fmt.Errorf("styling %s header: %w", sheet, err)
		return
	}
	for i := 0; i < n; i++ {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		values := row(i)
		if err := s.f.SetSheetRow(sheet, cell, &values); err != nil {
			s.err = fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
			return
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(head))
	if err := s.f.SetColWidth(sheet, "A", lastCol, 16); err != nil {
		s.err = fmt.Errorf("sizing %s columns: %w", sheet, err)
	}
}

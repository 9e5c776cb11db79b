package parser

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// XLSXDecoder treats every non-empty sheet of a workbook as one page.
type XLSXDecoder struct{}

func (d *XLSXDecoder) SupportedFormats() []string { return []string{"xlsx"} }

func (d *XLSXDecoder) Decode(ctx context.Context, data []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	doc := &pagesDocument{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		doc.pages = append(doc.pages, gridLines(rows))
	}
	return doc, nil
}

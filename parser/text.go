package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
)

// TextDecoder reads plain text. Form feeds separate pages and each line
// becomes one fragment.
type TextDecoder struct{}

func (d *TextDecoder) SupportedFormats() []string { return []string{"txt"} }

func (d *TextDecoder) Decode(ctx context.Context, data []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")

	doc := &pagesDocument{}
	if strings.TrimSpace(text) == "" {
		return doc, nil
	}
	for _, page := range strings.Split(text, "\f") {
		var lines [][]string
		for _, line := range strings.Split(page, "\n") {
			lines = append(lines, []string{strings.TrimSpace(line)})
		}
		doc.pages = append(doc.pages, gridLines(lines))
	}
	return doc, nil
}

// CSVDecoder reads a comma or semicolon separated export as a single page.
type CSVDecoder struct{}

func (d *CSVDecoder) SupportedFormats() []string { return []string{"csv"} }

func (d *CSVDecoder) Decode(ctx context.Context, data []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if firstLine, _, _ := strings.Cut(string(data), "\n"); strings.Count(firstLine, ";") > strings.Count(firstLine, ",") {
		r.Comma = ';'
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	doc := &pagesDocument{}
	if len(rows) > 0 {
		doc.pages = append(doc.pages, gridLines(rows))
	}
	return doc, nil
}

package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/brunobiangulo/worksheet/layout"
)

// PDFDecoder reads the text layer of a PDF.
type PDFDecoder struct{}

func (d *PDFDecoder) SupportedFormats() []string { return []string{"pdf"} }

func (d *PDFDecoder) Decode(ctx context.Context, data []byte) (doc Document, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// The pdf package panics on some malformed input.
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("opening PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	return &pdfDocument{reader: reader, pages: reader.NumPage()}, nil
}

type pdfDocument struct {
	reader *pdf.Reader
	pages  int
}

func (d *pdfDocument) NumPages() int { return d.pages }

func (d *pdfDocument) Page(ctx context.Context, n int) (frags []layout.Fragment, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n < 1 || n > d.pages {
		return nil, &PageError{Page: n, Err: errPageRange}
	}
	defer func() {
		if r := recover(); r != nil {
			frags, err = nil, &PageError{Page: n, Err: fmt.Errorf("reading content: %v", r)}
		}
	}()

	page := d.reader.Page(n)
	if page.V.IsNull() {
		return nil, nil
	}
	return mergeGlyphs(page.Content().Text), nil
}

// mergeGlyphs joins consecutive glyphs into text runs. The pdf package
// reports one Text per glyph; a run ends at whitespace, at a baseline
// change, or at a horizontal gap of at least half a space width.
func mergeGlyphs(glyphs []pdf.Text) []layout.Fragment {
	var (
		frags []layout.Fragment
		run   strings.Builder
		cur   layout.Fragment
		end   float64 // right edge of the last glyph in the run
		size  float64
	)

	flush := func() {
		if run.Len() > 0 {
			cur.Text = run.String()
			frags = append(frags, cur)
			run.Reset()
		}
	}

	for _, g := range glyphs {
		if strings.TrimSpace(g.S) == "" {
			flush()
			continue
		}

		if run.Len() > 0 {
			gap := g.X - end
			space := spaceWidth(size)
			sameLine := abs(g.Y-cur.Y) <= size*0.2
			if !sameLine || gap >= space*0.5 || gap < -size {
				flush()
			}
		}

		if run.Len() == 0 {
			cur = layout.Fragment{X: g.X, Y: g.Y}
			size = g.FontSize
		}
		run.WriteString(g.S)
		end = g.X + glyphWidth(g)
	}
	flush()
	return frags
}

// spaceWidth estimates the width of a space as 25% of the font size.
func spaceWidth(fontSize float64) float64 {
	if fontSize <= 0 {
		fontSize = 10
	}
	return fontSize * 0.25
}

// glyphWidth falls back to half an em per rune when the font carries no
// width table.
func glyphWidth(g pdf.Text) float64 {
	if g.W > 0 {
		return g.W
	}
	size := g.FontSize
	if size <= 0 {
		size = 10
	}
	return size * 0.5 * float64(utf8.RuneCountInString(g.S))
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

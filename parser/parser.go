// Package parser decodes worksheet documents into pages of positioned text
// fragments.
package parser

import (
	"context"

	"github.com/brunobiangulo/worksheet/layout"
)

// Document is a decoded, paginated document. Pages are numbered from 1.
type Document interface {
	NumPages() int
	// Page returns the fragments of page n in content-stream order.
	Page(ctx context.Context, n int) ([]layout.Fragment, error)
}

// Decoder opens raw document bytes of one or more formats.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (Document, error)
	SupportedFormats() []string
}

// Synthetic grid used by decoders whose source has no coordinates. The row
// pitch is well above layout.DefaultTolerance so lines never merge.
const (
	gridRowPitch    = 20.0
	gridColumnPitch = 100.0
)

// pagesDocument serves pages that were fully decoded up front.
type pagesDocument struct {
	pages [][]layout.Fragment
}

func (d *pagesDocument) NumPages() int { return len(d.pages) }

func (d *pagesDocument) Page(ctx context.Context, n int) ([]layout.Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n < 1 || n > len(d.pages) {
		return nil, &PageError{Page: n, Err: errPageRange}
	}
	return d.pages[n-1], nil
}

// gridLines lays out lines of cells top to bottom on the synthetic grid.
func gridLines(lines [][]string) []layout.Fragment {
	var frags []layout.Fragment
	for i, cells := range lines {
		y := float64(len(lines)-i) * gridRowPitch
		for j, cell := range cells {
			if cell == "" {
				continue
			}
			frags = append(frags, layout.Fragment{Text: cell, X: float64(j) * gridColumnPitch, Y: y})
		}
	}
	return frags
}

// Package pipeline turns a decoded document into records and their
// consumption summaries.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/worksheet/layout"
	"github.com/brunobiangulo/worksheet/parser"
	"github.com/brunobiangulo/worksheet/record"
	"github.com/brunobiangulo/worksheet/summary"
)

// ErrNoPages is returned for a document without pages.
var ErrNoPages = errors.New("document has no pages")

// Result is the outcome of one extraction.
type Result struct {
	Records        []record.Record          `json:"records"`
	MaterialGroups []summary.MaterialGroup  `json:"material_groups"`
	PatchGroups    []summary.PatchGroup     `json:"patch_groups"`
	Totals         summary.Totals           `json:"totals"`
	Pages          int                      `json:"pages"`
	Skipped        map[record.Rejection]int `json:"skipped,omitempty"`
}

// Pipeline runs clustering, row parsing and aggregation page by page.
// One Pipeline may serve concurrent Run calls.
type Pipeline struct {
	clusterer *layout.Clusterer
	parser    *record.Parser
	metrics   *Metrics
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics records extraction counters on m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger replaces slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New builds a pipeline from a row clusterer and a record parser.
func New(c *layout.Clusterer, rp *record.Parser, opts ...Option) *Pipeline {
	p := &Pipeline{clusterer: c, parser: rp, logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// accumulator carries the running state across pages. Sequence numbers
// continue from one page to the next.
type accumulator struct {
	records []record.Record
	skipped map[record.Rejection]int
}

func (a *accumulator) add(r record.Record, page int) {
	r.Sequence = len(a.records) + 1
	r.Page = page
	a.records = append(a.records, r)
}

// Run processes pages 1..N strictly in order. Any page failure aborts the
// run and no partial result is returned.
func (p *Pipeline) Run(ctx context.Context, doc parser.Document) (*Result, error) {
	start := time.Now()
	res, err := p.run(ctx, doc)
	p.metrics.observe(res, err, time.Since(start))
	return res, err
}

func (p *Pipeline) run(ctx context.Context, doc parser.Document) (*Result, error) {
	pages := doc.NumPages()
	if pages <= 0 {
		return nil, ErrNoPages
	}

	acc := &accumulator{skipped: make(map[record.Rejection]int)}
	for n := 1; n <= pages; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frags, err := doc.Page(ctx, n)
		if err != nil {
			var pe *parser.PageError
			if errors.As(err, &pe) {
				return nil, err
			}
			return nil, fmt.Errorf("page %d: %w", n, err)
		}

		rows := p.clusterer.Cluster(frags)
		before := len(acc.records)
		for _, row := range rows {
			rec, why := p.parser.Parse(row.Text())
			if why != record.Accepted {
				acc.skipped[why]++
				continue
			}
			acc.add(rec, n)
		}
		p.logger.Debug("extract: page processed",
			"page", n, "fragments", len(frags), "rows", len(rows), "records", len(acc.records)-before)
	}

	res := Assemble(acc.records)
	res.Pages = pages
	res.Skipped = acc.skipped

	p.logger.Info("extract: document processed",
		"pages", pages,
		"records", res.Totals.Rows,
		"scrap", res.Totals.ScrapRows,
		"ambiguous", res.Totals.AmbiguousRows,
		"material_groups", len(res.MaterialGroups),
		"patch_groups", len(res.PatchGroups))
	return res, nil
}

// Assemble derives the groups and totals of a record set. It is used both
// after a run and when records are reloaded from storage.
func Assemble(records []record.Record) *Result {
	if records == nil {
		records = []record.Record{}
	}
	materials := summary.Materials(records)
	if materials == nil {
		materials = []summary.MaterialGroup{}
	}
	patches := summary.Patches(records)
	if patches == nil {
		patches = []summary.PatchGroup{}
	}
	return &Result{
		Records:        records,
		MaterialGroups: materials,
		PatchGroups:    patches,
		Totals:         summary.Summarize(records, materials, patches),
	}
}

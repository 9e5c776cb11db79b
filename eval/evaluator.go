// Package eval scores extraction output against hand-checked golden
// records.
package eval

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/brunobiangulo/worksheet"
	"github.com/brunobiangulo/worksheet/export"
	"github.com/brunobiangulo/worksheet/record"
)

// Report holds the results of comparing one extraction with its golden
// records.
type Report struct {
	Document  string `json:"document"`
	Expected  int    `json:"expected"`
	Extracted int    `json:"extracted"`
	Matched   int    `json:"matched"`
	// ExactRows counts matched rows whose compared fields all agree.
	ExactRows int `json:"exact_rows"`

	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`

	// FieldAccuracy is the share of matched rows with the field right.
	FieldAccuracy map[string]float64 `json:"field_accuracy"`

	// MaterialDelta and PatchDelta count pieces by which the consumption
	// tables differ from the ones computed from the golden records.
	MaterialDelta int `json:"material_delta"`
	PatchDelta    int `json:"patch_delta"`

	Rows    []RowResult   `json:"rows"`
	RunTime time.Duration `json:"run_time"`
}

// RowResult describes one expected or extracted row that did not match
// exactly.
type RowResult struct {
	Expected *record.Record `json:"expected,omitempty"`
	Got      *record.Record `json:"got,omitempty"`
	// Mismatches lists the fields that differ; empty for missing and
	// spurious rows.
	Mismatches []string `json:"mismatches,omitempty"`
}

// Status is MISSING, SPURIOUS or DIFF.
func (r RowResult) Status() string {
	switch {
	case r.Got == nil:
		return "MISSING"
	case r.Expected == nil:
		return "SPURIOUS"
	default:
		return "DIFF"
	}
}

// Passed reports whether every golden row was found with every field right
// and nothing extra was extracted.
func (r *Report) Passed() bool {
	return r.Matched == r.Expected && r.Extracted == r.Expected && r.ExactRows == r.Matched
}

// Compare scores got against expected.
func Compare(expected, got []record.Record) *Report {
	rep := &Report{
		Expected:      len(expected),
		Extracted:     len(got),
		FieldAccuracy: make(map[string]float64, len(Fields)),
	}

	pairs, missing, spurious := align(expected, got)
	rep.Matched = len(pairs)

	correct := make(map[string]int, len(Fields))
	for _, p := range pairs {
		e, g := expected[p[0]], got[p[1]]
		want, have := fieldValues(e), fieldValues(g)
		var diff []string
		for _, f := range Fields {
			if want[f] == have[f] {
				correct[f]++
			} else {
				diff = append(diff, f)
			}
		}
		if len(diff) == 0 {
			rep.ExactRows++
			continue
		}
		rep.Rows = append(rep.Rows, RowResult{Expected: &e, Got: &g, Mismatches: diff})
	}
	for _, i := range missing {
		e := expected[i]
		rep.Rows = append(rep.Rows, RowResult{Expected: &e})
	}
	for _, j := range spurious {
		g := got[j]
		rep.Rows = append(rep.Rows, RowResult{Got: &g})
	}

	for _, f := range Fields {
		rep.FieldAccuracy[f] = ratio(correct[f], rep.Matched)
	}
	rep.Precision = ratio(rep.Matched, rep.Extracted)
	rep.Recall = ratio(rep.Matched, rep.Expected)
	rep.F1 = f1(rep.Precision, rep.Recall)
	rep.MaterialDelta = pieceDelta(materialCounts(expected), materialCounts(got))
	rep.PatchDelta = pieceDelta(patchCounts(expected), patchCounts(got))
	return rep
}

// LoadGolden reads golden records from a CSV file in the records export
// layout.
func LoadGolden(path string) ([]record.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening golden file: %w", err)
	}
	defer f.Close()
	return export.ReadRecordsCSV(f)
}

// Evaluator runs extractions and compares them with golden records.
type Evaluator struct {
	engine worksheet.Engine
}

// NewEvaluator creates an evaluator backed by engine.
func NewEvaluator(engine worksheet.Engine) *Evaluator {
	return &Evaluator{engine: engine}
}

// Run extracts path, bypassing stored results, and scores it.
func (e *Evaluator) Run(ctx context.Context, path string, golden []record.Record) (*Report, error) {
	start := time.Now()
	ex, err := e.engine.ExtractFile(ctx, path, worksheet.WithForce())
	if err != nil {
		return nil, err
	}
	rep := Compare(golden, ex.Records)
	rep.Document = ex.Filename
	rep.RunTime = time.Since(start)

	slog.Info("eval: compared extraction",
		"file", ex.Filename, "expected", rep.Expected, "extracted", rep.Extracted,
		"f1", fmt.Sprintf("%.3f", rep.F1))
	return rep, nil
}

// FormatReport produces a human-readable report string.
func FormatReport(r *Report) string {
	var b strings.Builder
	WriteReport(&b, r)
	return b.String()
}

// WriteReport writes the human-readable report to w.
func WriteReport(w io.Writer, r *Report) {
	fmt.Fprintf(w, "=== Extraction Report: %s ===\n", r.Document)
	fmt.Fprintf(w, "Expected: %d | Extracted: %d | Matched: %d | Exact: %d\n",
		r.Expected, r.Extracted, r.Matched, r.ExactRows)
	fmt.Fprintf(w, "Precision: %.1f%% | Recall: %.1f%% | F1: %.3f\n",
		r.Precision*100, r.Recall*100, r.F1)
	if r.RunTime > 0 {
		fmt.Fprintf(w, "Run time: %s\n", r.RunTime.Round(time.Millisecond))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Field Accuracy:\n")
	for _, f := range Fields {
		fmt.Fprintf(w, "  %-11s %.1f%%\n", f, r.FieldAccuracy[f]*100)
	}
	fmt.Fprintf(w, "\nConsumption delta: materials=%d patches=%d pieces\n", r.MaterialDelta, r.PatchDelta)

	if len(r.Rows) > 0 {
		fmt.Fprintln(w)
	}
	for _, row := range r.Rows {
		switch row.Status() {
		case "MISSING":
			fmt.Fprintf(w, "[MISSING]  page %d %s %s\n", row.Expected.Page, row.Expected.TireSize, row.Expected.Customer)
		case "SPURIOUS":
			fmt.Fprintf(w, "[SPURIOUS] page %d #%d %s\n", row.Got.Page, row.Got.Sequence, truncate(row.Got.Text, 60))
		default:
			want, have := fieldValues(*row.Expected), fieldValues(*row.Got)
			fmt.Fprintf(w, "[DIFF]     page %d #%d", row.Got.Page, row.Got.Sequence)
			for _, f := range row.Mismatches {
				fmt.Fprintf(w, " %s=%q want %q", f, have[f], want[f])
			}
			fmt.Fprintln(w)
		}
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

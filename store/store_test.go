//go:build cgo

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/brunobiangulo/worksheet/record"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecords() []record.Record {
	return []record.Record{
		{Sequence: 1, Page: 1, Customer: "Acme Ltd", TireSize: "315/80/225", TreadCode: "NRD", Width: "260",
			Patches: "Ct20, Ct22", Text: "12 Acme Ltd 315/80/225 NRD 260 Ct20, Ct22"},
		{Sequence: 2, Page: 1, Customer: "Põltsamaa Vedu OÜ", TireSize: "295/80/225", TreadCode: "WTS", Width: "240",
			Patches: record.Unknown, Text: "13 Põltsamaa Vedu OÜ 295/80/225 WTS 240"},
		{Sequence: 3, Page: 2, Customer: "Beta AS", TireSize: "385/65/225", TreadCode: record.Unknown, Width: record.Unknown,
			Patches: record.Unknown, IsScrap: true, Ambiguous: true, Text: "14 Beta AS 385/65/225 crack"},
	}
}

func saveSample(t *testing.T, s *Store, hash string) *Extraction {
	t.Helper()
	ex := &Extraction{
		Filename:    "week12.pdf",
		Format:      "pdf",
		ContentHash: hash,
		Pages:       2,
		Skipped:     map[string]int{"header": 2, "pagination": 1},
	}
	if err := s.SaveExtraction(context.Background(), ex, sampleRecords()); err != nil {
		t.Fatalf("saving extraction: %v", err)
	}
	return ex
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	s, err := New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestMigrationsApplied(t *testing.T) {
	s := newTestStore(t)
	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("reading schema version: %v", err)
	}
	if want := migrations[len(migrations)-1].version; v != want {
		t.Errorf("schema version = %d, want %d", v, want)
	}
	// A second run is a no-op.
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("re-running migrations: %v", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	ex := saveSample(t, s, "h1")
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer s.Close()
	if _, err := s.GetExtraction(context.Background(), ex.PublicID); err != nil {
		t.Fatalf("extraction lost after reopen: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Extraction CRUD
// ---------------------------------------------------------------------------

func TestSaveAndGetExtraction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ex := saveSample(t, s, "abc123")
	if ex.ID == 0 {
		t.Fatal("expected non-zero id")
	}
	if _, err := uuid.Parse(ex.PublicID); err != nil {
		t.Errorf("public id %q is not a UUID: %v", ex.PublicID, err)
	}
	if ex.RecordCount != 3 || ex.ScrapCount != 1 {
		t.Errorf("counts = %d/%d, want 3/1", ex.RecordCount, ex.ScrapCount)
	}
	if ex.CreatedAt.IsZero() {
		t.Error("expected created_at to be filled in")
	}

	got, err := s.GetExtraction(ctx, ex.PublicID)
	if err != nil {
		t.Fatalf("getting extraction: %v", err)
	}
	if got.Filename != "week12.pdf" || got.Pages != 2 || got.ContentHash != "abc123" {
		t.Errorf("unexpected extraction: %+v", got)
	}
	if got.Skipped["header"] != 2 || got.Skipped["pagination"] != 1 {
		t.Errorf("skipped = %v", got.Skipped)
	}

	recs, err := s.Records(ctx, got.ID)
	if err != nil {
		t.Fatalf("loading records: %v", err)
	}
	want := sampleRecords()
	if len(recs) != len(want) {
		t.Fatalf("got %d records, want %d", len(recs), len(want))
	}
	for i := range want {
		if recs[i] != want[i] {
			t.Errorf("record[%d] = %+v, want %+v", i, recs[i], want[i])
		}
	}
}

func TestGetExtractionNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetExtraction(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteExtraction(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete err = %v, want ErrNotFound", err)
	}
}

func TestGetExtractionByHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	saveSample(t, s, "same")
	second := saveSample(t, s, "same")
	saveSample(t, s, "other")

	got, err := s.GetExtractionByHash(ctx, "same", "")
	if err != nil {
		t.Fatalf("by hash: %v", err)
	}
	if got.PublicID != second.PublicID {
		t.Errorf("expected the latest extraction for the hash")
	}
	if _, err := s.GetExtractionByHash(ctx, "none", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetExtractionByHashMatchesSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ex := &Extraction{Filename: "week12.pdf", Format: "pdf", ContentHash: "same", SettingsHash: "strict", Pages: 2}
	if err := s.SaveExtraction(ctx, ex, sampleRecords()); err != nil {
		t.Fatalf("saving extraction: %v", err)
	}

	got, err := s.GetExtractionByHash(ctx, "same", "strict")
	if err != nil {
		t.Fatalf("by hash: %v", err)
	}
	if got.PublicID != ex.PublicID || got.SettingsHash != "strict" {
		t.Errorf("got %+v, want extraction %s with settings strict", got, ex.PublicID)
	}
	if _, err := s.GetExtractionByHash(ctx, "same", "lenient"); !errors.Is(err, ErrNotFound) {
		t.Errorf("other settings: err = %v, want ErrNotFound", err)
	}
}

func TestListExtractions(t *testing.T) {
	s := newTestStore(t)
	first := saveSample(t, s, "a")
	second := saveSample(t, s, "b")

	list, err := s.ListExtractions(context.Background())
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d extractions, want 2", len(list))
	}
	if list[0].PublicID != second.PublicID || list[1].PublicID != first.PublicID {
		t.Error("expected newest first")
	}
}

func TestDeleteExtraction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	keep := saveSample(t, s, "keep")
	drop := saveSample(t, s, "drop")

	if err := s.DeleteExtraction(ctx, drop.PublicID); err != nil {
		t.Fatalf("deleting: %v", err)
	}
	if _, err := s.GetExtraction(ctx, drop.PublicID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted extraction still present: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// Two of the three sample records have numeric dimensions.
	if stats.Extractions != 1 || stats.Records != 3 || stats.Indexed != 2 {
		t.Errorf("stats after delete = %+v", stats)
	}

	hits, err := s.SearchRecords(ctx, "acme", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range hits {
		if h.ExtractionID != keep.PublicID {
			t.Errorf("search returned record of deleted extraction %s", h.ExtractionID)
		}
	}
}

func TestDeleteExtractionsBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	saveSample(t, s, "a")
	saveSample(t, s, "b")

	n, err := s.DeleteExtractionsBefore(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("deleted %d recent extractions", n)
	}

	n, err = s.DeleteExtractionsBefore(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}
	stats, _ := s.Stats(ctx)
	if stats.Records != 0 || stats.Indexed != 0 {
		t.Errorf("stats after retention = %+v", stats)
	}
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

func TestSearchRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ex := saveSample(t, s, "h")

	tests := []struct {
		query string
		want  []int // sequences
	}{
		{"acme", []int{1}},
		{"Acm", []int{1}},
		{"poltsamaa", []int{2}},
		{"crack", []int{3}},
		{"acme crack", nil},
		{`"quoted`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			hits, err := s.SearchRecords(ctx, tt.query, 10)
			if err != nil {
				t.Fatalf("search %q: %v", tt.query, err)
			}
			if len(hits) != len(tt.want) {
				t.Fatalf("search %q returned %d hits, want %d", tt.query, len(hits), len(tt.want))
			}
			for i, h := range hits {
				if h.Sequence != tt.want[i] {
					t.Errorf("hit[%d].Sequence = %d, want %d", i, h.Sequence, tt.want[i])
				}
				if h.ExtractionID != ex.PublicID || h.Filename != "week12.pdf" {
					t.Errorf("hit[%d] has wrong extraction: %+v", i, h)
				}
				if h.Score <= 0 {
					t.Errorf("hit[%d].Score = %v, want > 0", i, h.Score)
				}
			}
		})
	}

	hits, err := s.SearchRecords(ctx, "   ", 10)
	if err != nil || hits != nil {
		t.Errorf("blank query = %v, %v; want nil, nil", hits, err)
	}
}

func TestSimilarRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	saveSample(t, s, "h")

	hits, err := s.SimilarRecords(ctx, "315/80/225", "255", 2)
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].TireSize != "315/80/225" || hits[1].TireSize != "295/80/225" {
		t.Errorf("unexpected order: %s, %s", hits[0].TireSize, hits[1].TireSize)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("scores not descending: %v, %v", hits[0].Score, hits[1].Score)
	}

	if _, err := s.SimilarRecords(ctx, "315/80/225", "—", 2); err == nil {
		t.Error("expected error for unknown width")
	}
}

func TestDimensionVector(t *testing.T) {
	tests := []struct {
		size, width string
		want        []float32
		ok          bool
	}{
		{"315/80/225", "260", []float32{3.15, 8, 22.5, 2.6}, true},
		{"315/80", "260", []float32{3.15, 8, 0, 2.6}, true},
		{"315", "260", nil, false},
		{"315/80/225", record.Unknown, nil, false},
		{"a/b/c", "260", nil, false},
	}
	for _, tt := range tests {
		got, ok := DimensionVector(tt.size, tt.width)
		if ok != tt.ok {
			t.Errorf("DimensionVector(%q, %q) ok = %v, want %v", tt.size, tt.width, ok, tt.ok)
			continue
		}
		for i := range tt.want {
			if d := got[i] - tt.want[i]; d > 1e-5 || d < -1e-5 {
				t.Errorf("DimensionVector(%q, %q)[%d] = %v, want %v", tt.size, tt.width, i, got[i], tt.want[i])
			}
		}
	}
}

func TestFTSQuery(t *testing.T) {
	tests := map[string]string{
		"acme":       `"acme"*`,
		" acme  ltd": `"acme"* "ltd"*`,
		`a"b`:        `"a""b"*`,
		"":           "",
	}
	for in, want := range tests {
		if got := ftsQuery(in); got != want {
			t.Errorf("ftsQuery(%q) = %q, want %q", in, got, want)
		}
	}
}

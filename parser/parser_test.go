package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/worksheet/layout"
)

// ---------------------------------------------------------------------------
// Registry tests
// ---------------------------------------------------------------------------

func TestRegistryBuiltInDecoders(t *testing.T) {
	reg := NewRegistry()

	for _, format := range []string{"pdf", "xlsx", "docx", "txt", "csv", "PDF"} {
		t.Run(format, func(t *testing.T) {
			d, err := reg.Get(format)
			if err != nil {
				t.Fatalf("Get(%q) returned error: %v", format, err)
			}
			found := false
			for _, f := range d.SupportedFormats() {
				if f == strings.ToLower(format) {
					found = true
				}
			}
			if !found {
				t.Errorf("decoder for %q does not list it in SupportedFormats(): %v", format, d.SupportedFormats())
			}
		})
	}
}

func TestRegistryUnknown(t *testing.T) {
	reg := NewRegistry()
	for _, format := range []string{"xls", "doc", "json", "html", ""} {
		t.Run("format_"+format, func(t *testing.T) {
			d, err := reg.Get(format)
			if err == nil {
				t.Errorf("Get(%q) expected error, got decoder %T", format, d)
			}
		})
	}
}

func TestRegistryCustomDecoder(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Get("custom"); err == nil {
		t.Fatal("expected error for unregistered format")
	}
	reg.Register("Custom", &TextDecoder{})
	if _, err := reg.Get("custom"); err != nil {
		t.Fatalf("Get(\"custom\") after Register returned error: %v", err)
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"pdf", []byte("%PDF-1.4\n..."), "pdf"},
		{"pdf_leading_newline", []byte("\n%PDF-1.7\n"), "pdf"},
		{"xlsx", buildXLSX(t, [][]interface{}{{"a"}}), "xlsx"},
		{"docx", buildDOCX(t, `<w:p><w:r><w:t>x</w:t></w:r></w:p>`), "docx"},
		{"text", []byte("1 Acme 315/80/225 NRD 260\n"), "txt"},
		{"binary", []byte{0xff, 0xfe, 0x00, 0x81}, ""},
		{"empty", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Detect(tt.data); got != tt.want {
				t.Errorf("Detect() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatFromName(t *testing.T) {
	tests := map[string]string{
		"worksheet.PDF":        "pdf",
		"/tmp/march.xlsx":      "xlsx",
		"notes.txt":            "txt",
		"no_extension":         "",
		"archive.tar.gz":       "gz",
		"C:/scans/Week 12.Pdf": "pdf",
	}
	for name, want := range tests {
		if got := FormatFromName(name); got != want {
			t.Errorf("FormatFromName(%q) = %q, want %q", name, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Glyph merging
// ---------------------------------------------------------------------------

func glyphs(x, y, size, w float64, s string) []pdf.Text {
	var out []pdf.Text
	for _, r := range s {
		out = append(out, pdf.Text{FontSize: size, X: x, Y: y, W: w, S: string(r)})
		x += w
	}
	return out
}

func TestMergeGlyphs(t *testing.T) {
	t.Run("spaces split runs", func(t *testing.T) {
		frags := mergeGlyphs(glyphs(72, 700, 12, 6, "Acme 315/80/225"))
		want := []layout.Fragment{
			{Text: "Acme", X: 72, Y: 700},
			{Text: "315/80/225", X: 102, Y: 700},
		}
		assertFragments(t, frags, want)
	})

	t.Run("gap splits runs", func(t *testing.T) {
		in := append(glyphs(72, 700, 12, 6, "NRD"), glyphs(200, 700, 12, 6, "260")...)
		assertFragments(t, mergeGlyphs(in), []layout.Fragment{
			{Text: "NRD", X: 72, Y: 700},
			{Text: "260", X: 200, Y: 700},
		})
	})

	t.Run("small gap keeps run", func(t *testing.T) {
		// Half a space at 12pt is 1.5; a 1.0 kerning gap stays joined.
		in := append(glyphs(72, 700, 12, 6, "Ct"), glyphs(85, 700, 12, 6, "20")...)
		assertFragments(t, mergeGlyphs(in), []layout.Fragment{{Text: "Ct20", X: 72, Y: 700}})
	})

	t.Run("baseline change splits runs", func(t *testing.T) {
		in := append(glyphs(72, 700, 12, 6, "ab"), glyphs(84, 680, 12, 6, "cd")...)
		assertFragments(t, mergeGlyphs(in), []layout.Fragment{
			{Text: "ab", X: 72, Y: 700},
			{Text: "cd", X: 84, Y: 680},
		})
	})

	t.Run("missing widths are estimated", func(t *testing.T) {
		in := glyphs(0, 10, 10, 0, "abc")
		// With W=0 every glyph sits at X=0; the estimate keeps the run whole
		// because backward steps smaller than one em are tolerated.
		assertFragments(t, mergeGlyphs(in), []layout.Fragment{{Text: "abc", X: 0, Y: 10}})
	})

	t.Run("empty", func(t *testing.T) {
		if frags := mergeGlyphs(nil); len(frags) != 0 {
			t.Errorf("expected no fragments, got %v", frags)
		}
	})
}

func assertFragments(t *testing.T, got, want []layout.Fragment) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d fragments %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fragment[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

// ---------------------------------------------------------------------------
// Decoders
// ---------------------------------------------------------------------------

func pageTexts(t *testing.T, doc Document, n int) []string {
	t.Helper()
	frags, err := doc.Page(context.Background(), n)
	if err != nil {
		t.Fatalf("Page(%d): %v", n, err)
	}
	var out []string
	for _, f := range frags {
		out = append(out, f.Text)
	}
	return out
}

func TestTextDecoder(t *testing.T) {
	data := []byte("Klient Mõõt\r\n1 Acme 315/80/225 NRD 260\n\f2 Beta 295/80/225 WTS 240\n")
	doc, err := (&TextDecoder{}).Decode(context.Background(), data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.NumPages() != 2 {
		t.Fatalf("NumPages = %d, want 2", doc.NumPages())
	}

	frags, _ := doc.Page(context.Background(), 1)
	if len(frags) != 2 {
		t.Fatalf("page 1 has %d fragments, want 2", len(frags))
	}
	if frags[0].Y <= frags[1].Y {
		t.Errorf("first line should sit above the second: %v", frags)
	}
	if got := pageTexts(t, doc, 2); len(got) != 1 || got[0] != "2 Beta 295/80/225 WTS 240" {
		t.Errorf("page 2 = %q", got)
	}

	rows := layout.NewClusterer(layout.DefaultTolerance).Cluster(frags)
	if len(rows) != 2 {
		t.Errorf("synthetic grid lines must not merge, got %d rows", len(rows))
	}
}

func TestTextDecoderEmpty(t *testing.T) {
	doc, err := (&TextDecoder{}).Decode(context.Background(), []byte("  \n\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.NumPages() != 0 {
		t.Errorf("NumPages = %d, want 0", doc.NumPages())
	}
}

func TestCSVDecoderSemicolon(t *testing.T) {
	data := []byte("nr;klient;mõõt\n1;Acme;315/80/225;NRD;260\n")
	doc, err := (&CSVDecoder{}).Decode(context.Background(), data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := pageTexts(t, doc, 1)
	want := []string{"nr", "klient", "mõõt", "1", "Acme", "315/80/225", "NRD", "260"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("fragments = %q, want %q", got, want)
	}
}

func buildXLSX(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestXLSXDecoder(t *testing.T) {
	data := buildXLSX(t, [][]interface{}{
		{"Nr", "Klient", "Mõõt"},
		{1, "Acme", "315/80/225", "NRD", 260},
	})
	doc, err := (&XLSXDecoder{}).Decode(context.Background(), data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.NumPages() != 1 {
		t.Fatalf("NumPages = %d, want 1", doc.NumPages())
	}
	frags, _ := doc.Page(context.Background(), 1)
	rows := layout.NewClusterer(layout.DefaultTolerance).Cluster(frags)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if got := rows[1].Text(); got != "1 Acme 315/80/225 NRD 260" {
		t.Errorf("row text = %q", got)
	}
}

func TestXLSXDecoderInvalid(t *testing.T) {
	if _, err := (&XLSXDecoder{}).Decode(context.Background(), []byte("not a workbook")); err == nil {
		t.Fatal("expected error for invalid workbook")
	}
}

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>%s</w:body></w:document>`, body)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDOCXDecoder(t *testing.T) {
	body := `<w:p><w:r><w:t>Töölehe päis</w:t></w:r></w:p>` +
		`<w:tbl>` +
		`<w:tr><w:tc><w:p><w:r><w:t>1</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>Acme</w:t></w:r></w:p></w:tc>` +
		`<w:tc><w:p><w:r><w:t>315/80/225 NRD</w:t></w:r></w:p><w:p><w:r><w:t>260</w:t></w:r></w:p></w:tc></w:tr>` +
		`<w:tr><w:tc><w:p/></w:tc></w:tr>` +
		`</w:tbl>` +
		`<w:p><w:r><w:br w:type="page"/></w:r></w:p>` +
		`<w:p><w:r><w:t xml:space="preserve">2 Beta </w:t></w:r><w:r><w:t>295/80/225</w:t></w:r></w:p>`

	doc, err := (&DOCXDecoder{}).Decode(context.Background(), buildDOCX(t, body))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.NumPages() != 2 {
		t.Fatalf("NumPages = %d, want 2", doc.NumPages())
	}

	frags, _ := doc.Page(context.Background(), 1)
	rows := layout.NewClusterer(layout.DefaultTolerance).Cluster(frags)
	if len(rows) != 2 {
		t.Fatalf("page 1 rows = %d, want 2", len(rows))
	}
	if got := rows[1].Text(); got != "1 Acme 315/80/225 NRD 260" {
		t.Errorf("table row = %q", got)
	}
	if got := pageTexts(t, doc, 2); len(got) != 1 || got[0] != "2 Beta 295/80/225" {
		t.Errorf("page 2 = %q", got)
	}
}

func TestDOCXDecoderMissingDocument(t *testing.T) {
	data := buildXLSX(t, [][]interface{}{{"a"}})
	if _, err := (&DOCXDecoder{}).Decode(context.Background(), data); err == nil {
		t.Fatal("expected error for zip without word/document.xml")
	}
}

// buildPDF writes a minimal uncompressed PDF with one page per entry. Each
// line is drawn at its own baseline in 12pt Helvetica.
func buildPDF(pages [][]string) []byte {
	var objs []string
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")
	objs = append(objs, "") // pages tree, filled in below

	widths := strings.TrimSpace(strings.Repeat("500 ", 126-32+1))
	objs = append(objs, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /FirstChar 32 /LastChar 126 /Widths ["+widths+"] /Encoding /WinAnsiEncoding >>")
	const fontObj = 3

	var kids []string
	for _, lines := range pages {
		var content strings.Builder
		for i, line := range lines {
			fmt.Fprintf(&content, "BT /F1 12 Tf 72 %d Td (%s) Tj ET\n", 700-i*20, line)
		}
		stream := content.String()
		objs = append(objs, fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(stream), stream))
		contentObj := len(objs)
		objs = append(objs, fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", fontObj, contentObj))
		kids = append(kids, fmt.Sprintf("%d 0 R", len(objs)))
	}
	objs[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, obj := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestPDFDecoder(t *testing.T) {
	data := buildPDF([][]string{
		{"Klient Moot Protektor", "1 Acme 315/80/225 NRD 260 Ct20"},
		{"2 Beta 295/80/225 WTS 240"},
	})
	if got := Detect(data); got != "pdf" {
		t.Fatalf("Detect = %q, want pdf", got)
	}

	doc, err := (&PDFDecoder{}).Decode(context.Background(), data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if doc.NumPages() != 2 {
		t.Fatalf("NumPages = %d, want 2", doc.NumPages())
	}

	frags, err := doc.Page(context.Background(), 1)
	if err != nil {
		t.Fatalf("Page(1): %v", err)
	}
	rows := layout.NewClusterer(layout.DefaultTolerance).Cluster(frags)
	if len(rows) != 2 {
		t.Fatalf("page 1 rows = %d, want 2", len(rows))
	}
	if got := rows[1].Text(); got != "1 Acme 315/80/225 NRD 260 Ct20" {
		t.Errorf("row text = %q", got)
	}
	if rows[1].Y != 680 {
		t.Errorf("row Y = %v, want 680", rows[1].Y)
	}

	if got := strings.Join(pageTexts(t, doc, 2), " "); got != "2 Beta 295/80/225 WTS 240" {
		t.Errorf("page 2 = %q", got)
	}

	var pe *PageError
	if _, err := doc.Page(context.Background(), 3); !errors.As(err, &pe) || pe.Page != 3 {
		t.Errorf("Page(3) error = %v, want PageError for page 3", err)
	}
}

func TestPDFDecoderInvalid(t *testing.T) {
	if _, err := (&PDFDecoder{}).Decode(context.Background(), []byte("%PDF-1.4\ngarbage")); err == nil {
		t.Fatal("expected error for truncated PDF")
	}
}

func TestDecodeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, d := range []Decoder{&PDFDecoder{}, &XLSXDecoder{}, &DOCXDecoder{}, &TextDecoder{}, &CSVDecoder{}} {
		if _, err := d.Decode(ctx, []byte("x")); !errors.Is(err, context.Canceled) {
			t.Errorf("%T: err = %v, want context.Canceled", d, err)
		}
	}
}

package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Registry maps format names to decoders.
type Registry struct {
	decoders map[string]Decoder
}

// NewRegistry returns a registry with every built-in decoder.
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[string]Decoder)}
	for _, d := range []Decoder{&PDFDecoder{}, &XLSXDecoder{}, &DOCXDecoder{}, &TextDecoder{}, &CSVDecoder{}} {
		for _, f := range d.SupportedFormats() {
			r.decoders[f] = d
		}
	}
	return r
}

// Get returns the decoder for format, case-insensitively.
func (r *Registry) Get(format string) (Decoder, error) {
	d, ok := r.decoders[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("no decoder for format: %s", format)
	}
	return d, nil
}

// Register adds or replaces the decoder for format.
func (r *Registry) Register(format string, d Decoder) {
	r.decoders[strings.ToLower(format)] = d
}

// Formats lists the registered format names.
func (r *Registry) Formats() []string {
	out := make([]string, 0, len(r.decoders))
	for f := range r.decoders {
		out = append(out, f)
	}
	return out
}

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
)

// Detect guesses the format from the content. Zip containers are
// workbooks unless they hold a Word document part. It returns "" when
// nothing matches.
func Detect(data []byte) string {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	switch {
	case bytes.HasPrefix(bytes.TrimLeft(head, "\x00\t\r\n "), pdfMagic):
		return "pdf"
	case bytes.HasPrefix(head, zipMagic):
		return zipFormat(data)
	case len(data) > 0 && utf8.Valid(data):
		return "txt"
	}
	return ""
}

// FormatFromName returns the lower-cased file extension without the dot.
func FormatFromName(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func zipFormat(data []byte) string {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ""
	}
	for _, f := range zr.File {
		switch {
		case f.Name == "word/document.xml":
			return "docx"
		case strings.HasPrefix(f.Name, "xl/"):
			return "xlsx"
		}
	}
	return ""
}

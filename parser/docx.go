package parser

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// DOCXDecoder reads worksheets typed into Word documents. Each paragraph
// outside a table is a line, each table row is a line of cells, and
// explicit page breaks start a new page.
type DOCXDecoder struct{}

func (d *DOCXDecoder) SupportedFormats() []string { return []string{"docx"} }

func (d *DOCXDecoder) Decode(ctx context.Context, data []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening DOCX: %w", err)
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("word/document.xml not found in DOCX")
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("opening document.xml: %w", err)
	}
	defer rc.Close()

	pages, err := docxPages(rc)
	if err != nil {
		return nil, fmt.Errorf("parsing DOCX XML: %w", err)
	}

	doc := &pagesDocument{}
	for _, lines := range pages {
		doc.pages = append(doc.pages, gridLines(lines))
	}
	return doc, nil
}

// docxPages walks the document token stream and collects lines per page.
func docxPages(r io.Reader) ([][][]string, error) {
	dec := xml.NewDecoder(r)

	var (
		pages    [][][]string
		lines    [][]string
		row      []string // cells of the current table row
		text     strings.Builder
		tblDepth int
		inText   bool
	)

	endPara := func() {
		s := strings.TrimSpace(text.String())
		text.Reset()
		if tblDepth > 0 {
			if row != nil {
				// Paragraphs within one cell are joined by a space.
				last := len(row) - 1
				row[last] = strings.TrimSpace(row[last] + " " + s)
			}
			return
		}
		if s != "" {
			lines = append(lines, []string{s})
		}
	}
	breakPage := func() {
		if len(lines) > 0 {
			pages = append(pages, lines)
			lines = nil
		}
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tblDepth++
			case "tr":
				if tblDepth == 1 {
					row = []string{}
				}
			case "tc":
				if tblDepth == 1 && row != nil {
					row = append(row, "")
				}
			case "t":
				inText = true
			case "tab":
				text.WriteString(" ")
			case "br":
				for _, a := range t.Attr {
					if a.Name.Local == "type" && a.Value == "page" && tblDepth == 0 {
						endPara()
						breakPage()
					}
				}
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				endPara()
			case "tr":
				if tblDepth == 1 && row != nil {
					if strings.Join(row, "") != "" {
						lines = append(lines, row)
					}
					row = nil
				}
			case "tbl":
				tblDepth--
			}
		}
	}
	breakPage()
	return pages, nil
}

package ingest

import (
	"bytes"
	"context"
	"fmt"
	"os"

	pdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"wegtop/internal"
)

// PDFTextExtractor reads the embedded text layer of a PDF.
type PDFTextExtractor struct{}

func (e *PDFTextExtractor) Extract(ctx context.Context, path string) ([]internal.Page, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return PDFPages(content)
}

// PDFPages extracts one Page per PDF page. Pages without a readable text layer
// are kept with empty text so page numbers stay aligned.
func PDFPages(content []byte) (pages []internal.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("pdf reader: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	pages = make([]internal.Page, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		text := ""
		if !p.V.IsNull() {
			if t, err := p.GetPlainText(nil); err == nil {
				text = t
			}
		}
		pages = append(pages, internal.Page{Number: i, Text: text})
	}
	return pages, nil
}

// PageCount returns the number of pages of the PDF at path.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	n, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("page count: %w", err)
	}
	return n, nil
}

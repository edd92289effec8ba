package ingest

import (
	"context"
	"os"
	"strings"

	"wegtop/internal"
)

// TextExtractor reads plain text. Form feeds separate pages, as in pdftotext output.
type TextExtractor struct{}

func (e *TextExtractor) Extract(ctx context.Context, path string) ([]internal.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return SplitPages(string(data)), nil
}

func SplitPages(text string) []internal.Page {
	parts := strings.Split(text, "\f")
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	pages := make([]internal.Page, 0, len(parts))
	for i, p := range parts {
		pages = append(pages, internal.Page{Number: i + 1, Text: p})
	}
	return pages
}

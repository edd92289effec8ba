package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fumiama/go-docx"

	"wegtop/internal"
)

// DocxExtractor reads Word minutes. Explicit page breaks start a new page,
// everything else ends up on page 1.
type DocxExtractor struct{}

func (e *DocxExtractor) Extract(ctx context.Context, path string) ([]internal.Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	doc, err := docx.Parse(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	pages := []internal.Page{}
	var cur strings.Builder
	flush := func() {
		pages = append(pages, internal.Page{Number: len(pages) + 1, Text: strings.TrimSpace(cur.String())})
		cur.Reset()
	}

	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		text, pageBreak := docxParagraph(para)
		if pageBreak && cur.Len() > 0 {
			flush()
		}
		if text != "" {
			if cur.Len() > 0 {
				cur.WriteString("\n")
			}
			cur.WriteString(text)
		}
	}
	if cur.Len() > 0 || len(pages) == 0 {
		flush()
	}
	return pages, nil
}

func docxParagraph(para *docx.Paragraph) (string, bool) {
	var buf strings.Builder
	pageBreak := false
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			switch c := rc.(type) {
			case *docx.Text:
				buf.WriteString(c.Text)
			case *docx.Tab:
				buf.WriteString("\t")
			case *docx.BarterRabbet:
				if c.Type == "page" {
					pageBreak = true
				}
			}
		}
	}
	return strings.TrimSpace(buf.String()), pageBreak
}

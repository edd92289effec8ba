// Package ingest turns Protokoll files into page text for the TOP engine.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"wegtop/internal"
)

var ErrUnsupportedFormat = errors.New("unsupported format")

// Extractor reads the page texts of one file.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]internal.Page, error)
}

// KindForFile maps a file extension to its source kind.
func KindForFile(path string) (internal.SourceKind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return internal.SourcePDF, nil
	case ".docx":
		return internal.SourceDOCX, nil
	case ".html", ".htm":
		return internal.SourceHTML, nil
	case ".md", ".markdown":
		return internal.SourceMarkdown, nil
	case ".txt":
		return internal.SourceText, nil
	case ".json":
		return internal.SourceCorpus, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func IsSupported(path string) bool {
	_, err := KindForFile(path)
	return err == nil
}

type Options struct {
	MinAvgChars     float64
	LayoutEnabled   bool
	LayoutGainRatio float64
	OCREnabled      bool
	OCRGainRatio    float64
	OCRMinChars     float64
	OCRDPI          int
	OCRLang         string
	OCRMaxPages     int
	OCRAttempts     int
}

func DefaultOptions() Options {
	return Options{
		MinAvgChars:     250,
		LayoutEnabled:   true,
		LayoutGainRatio: 1.2,
		OCREnabled:      true,
		OCRGainRatio:    1.5,
		OCRMinChars:     200,
		OCRDPI:          140,
		OCRLang:         "deu+eng",
		OCRAttempts:     2,
	}
}

// Ingestor picks the extractor for a file and, for PDFs, falls back to layout
// text and OCR when the text layer is too thin.
type Ingestor struct {
	opts       Options
	log        *slog.Logger
	PDF        Extractor
	Layout     Extractor
	OCR        Extractor
	Docx       Extractor
	HTML       Extractor
	Markdown   Extractor
	Text       Extractor
	corpusLoad func(path string) (internal.Document, error)
}

func NewIngestor(opts Options, log *slog.Logger) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{
		opts:       opts,
		log:        log,
		PDF:        &PDFTextExtractor{},
		Layout:     &LayoutExtractor{},
		OCR:        &OCRExtractor{DPI: opts.OCRDPI, Lang: opts.OCRLang, MaxPages: opts.OCRMaxPages, Attempts: opts.OCRAttempts},
		Docx:       &DocxExtractor{},
		HTML:       &HTMLExtractor{},
		Markdown:   &MarkdownExtractor{},
		Text:       &TextExtractor{},
		corpusLoad: LoadCorpus,
	}
}

// Ingest reads path into a Document.
func (in *Ingestor) Ingest(ctx context.Context, path string) (internal.Document, error) {
	kind, err := KindForFile(path)
	if err != nil {
		return internal.Document{}, err
	}
	if kind == internal.SourceCorpus {
		return in.corpusLoad(path)
	}
	if kind == internal.SourcePDF {
		return in.ingestPDF(ctx, path)
	}

	var ex Extractor
	switch kind {
	case internal.SourceDOCX:
		ex = in.Docx
	case internal.SourceHTML:
		ex = in.HTML
	case internal.SourceMarkdown:
		ex = in.Markdown
	default:
		ex = in.Text
	}
	pages, err := ex.Extract(ctx, path)
	if err != nil {
		return internal.Document{}, fmt.Errorf("extract %s: %w", filepath.Base(path), err)
	}
	return internal.Document{Identifier: path, Kind: kind, Pages: pages, AvgCharsPerPage: AvgChars(pages)}, nil
}

func (in *Ingestor) ingestPDF(ctx context.Context, path string) (internal.Document, error) {
	log := in.log.With("file", filepath.Base(path))
	doc := internal.Document{Identifier: path, Kind: internal.SourcePDF}

	pages, primaryErr := in.PDF.Extract(ctx, path)
	if primaryErr != nil {
		log.Warn("pdf text layer failed", "err", primaryErr)
		pages = nil
	}
	a0 := AvgChars(pages)

	if in.opts.LayoutEnabled && in.Layout != nil && a0 < in.opts.MinAvgChars {
		alt, err := in.Layout.Extract(ctx, path)
		switch {
		case err != nil:
			log.Warn("layout extraction failed", "err", err)
		case AvgChars(alt) > a0*in.opts.LayoutGainRatio:
			pages, doc.LayoutUsed = alt, true
		}
	}

	if cur := AvgChars(pages); in.opts.OCREnabled && in.OCR != nil && cur < in.opts.MinAvgChars {
		if err := ctx.Err(); err != nil {
			return doc, err
		}
		alt, err := in.OCR.Extract(ctx, path)
		if err != nil {
			log.Warn("ocr failed, keeping text layer", "err", err)
		} else if a := AvgChars(alt); a > cur*in.opts.OCRGainRatio && a > in.opts.OCRMinChars {
			pages, doc.OCRUsed = alt, true
		}
	}

	if primaryErr != nil && !doc.LayoutUsed && !doc.OCRUsed {
		return doc, fmt.Errorf("extract %s: %w", filepath.Base(path), primaryErr)
	}
	doc.Pages = pages
	doc.AvgCharsPerPage = AvgChars(pages)
	log.Debug("pdf ingested", "pages", len(pages), "avg_chars", doc.AvgCharsPerPage, "layout", doc.LayoutUsed, "ocr", doc.OCRUsed)
	return doc, nil
}

// AvgChars is the mean rune count per page, 0 for no pages.
func AvgChars(pages []internal.Page) float64 {
	if len(pages) == 0 {
		return 0
	}
	total := 0
	for _, p := range pages {
		total += p.CharCount()
	}
	return float64(total) / float64(len(pages))
}

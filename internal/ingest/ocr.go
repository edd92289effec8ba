package ingest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"

	"wegtop/internal"
)

// OCRExtractor renders each page with pdftoppm and reads it back with tesseract.
type OCRExtractor struct {
	DPI      int
	Lang     string
	MaxPages int
	Attempts int
}

func (e *OCRExtractor) Extract(ctx context.Context, path string) ([]internal.Page, error) {
	total, err := PageCount(path)
	if err != nil {
		return nil, err
	}
	if e.MaxPages > 0 && total > e.MaxPages {
		total = e.MaxPages
	}

	tmpDir, err := os.MkdirTemp("", "wegtop-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	attempts := e.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	pages := make([]internal.Page, 0, total)
	for i := 1; i <= total; i++ {
		var text string
		err := retry.Do(
			func() error {
				t, err := e.ocrPage(ctx, path, tmpDir, i)
				if err != nil {
					return err
				}
				text = t
				return nil
			},
			retry.Context(ctx),
			retry.Attempts(uint(attempts)),
			retry.Delay(500*time.Millisecond),
		)
		if err != nil {
			return nil, fmt.Errorf("ocr page %d: %w", i, err)
		}
		pages = append(pages, internal.Page{Number: i, Text: text})
	}
	return pages, nil
}

func (e *OCRExtractor) ocrPage(ctx context.Context, pdfPath, tmpDir string, page int) (string, error) {
	dpi := e.DPI
	if dpi <= 0 {
		dpi = 140
	}
	lang := e.Lang
	if lang == "" {
		lang = "deu+eng"
	}

	prefix := filepath.Join(tmpDir, fmt.Sprintf("page_%04d", page))
	pageStr := strconv.Itoa(page)
	render := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(dpi),
		"-singlefile",
		pdfPath,
		prefix,
	)
	if out, err := render.CombinedOutput(); err != nil {
		return "", fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(out))
	}
	img := prefix + ".png"
	defer os.Remove(img)

	read := exec.CommandContext(ctx, "tesseract", img, "stdout", "-l", lang)
	out, err := read.Output()
	if err != nil {
		return "", fmt.Errorf("tesseract failed: %w", err)
	}
	return string(out), nil
}

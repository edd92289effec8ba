package ingest

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"wegtop/internal"
)

// LayoutExtractor runs poppler's pdftotext in layout mode page by page. It helps
// with multi-column scans whose text layer comes out scrambled.
type LayoutExtractor struct {
	Binary string
}

func (e *LayoutExtractor) Extract(ctx context.Context, path string) ([]internal.Page, error) {
	bin := e.Binary
	if bin == "" {
		bin = "pdftotext"
	}
	n, err := PageCount(path)
	if err != nil {
		return nil, err
	}

	pages := make([]internal.Page, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := strconv.Itoa(i)
		cmd := exec.CommandContext(ctx, bin, "-layout", "-enc", "UTF-8", "-f", page, "-l", page, path, "-")
		out, err := cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("pdftotext page %d: %w", i, err)
		}
		pages = append(pages, internal.Page{Number: i, Text: string(out)})
	}
	return pages, nil
}

package ingest

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"wegtop/internal"
)

// HTMLExtractor reads minutes exported as HTML. Block elements become lines,
// table rows become " | "-joined lines.
type HTMLExtractor struct{}

func (e *HTMLExtractor) Extract(ctx context.Context, path string) ([]internal.Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	text, err := HTMLText(f)
	if err != nil {
		return nil, err
	}
	return []internal.Page{{Number: 1, Text: text}}, nil
}

// HTMLText flattens an HTML document into line-oriented plain text.
func HTMLText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}
	doc.Find("script,style,nav,footer,head").Remove()

	lines := []string{}
	doc.Find("h1,h2,h3,h4,h5,h6,p,li,tr,pre,blockquote").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) != "tr" && s.ParentsFiltered("tr,li,p").Length() > 0 {
			return
		}
		var line string
		if goquery.NodeName(s) == "tr" {
			cells := []string{}
			s.Find("th,td").Each(func(_ int, c *goquery.Selection) {
				if t := strings.Join(strings.Fields(c.Text()), " "); t != "" {
					cells = append(cells, t)
				}
			})
			line = strings.Join(cells, " | ")
		} else {
			line = strings.TrimSpace(s.Text())
		}
		if line != "" {
			lines = append(lines, line)
		}
	})
	if len(lines) == 0 {
		return strings.TrimSpace(doc.Find("body").Text()), nil
	}
	return strings.Join(lines, "\n"), nil
}

package tops

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"wegtop/internal"
)

var (
	reNoiseLines  = regexp.MustCompile(`(?m)^(?:DSZ_[A-Z].*|ALTMP_.*\.PDF)$`)
	reLineHyphen  = regexp.MustCompile(`(\p{L})-[ \t]*\n[ \t]*(\p{Ll})`)
	reInlineSpace = regexp.MustCompile(`[ \t\x{00A0}\x{2007}\x{202F}]+`)
	reBlankLines  = regexp.MustCompile(`\n{3,}`)
)

var spacedUmlauts = strings.NewReplacer(
	"A¨", "Ä", "O¨", "Ö", "U¨", "Ü",
	"a¨", "ä", "o¨", "ö", "u¨", "ü",
	"¨A", "Ä", "¨O", "Ö", "¨U", "Ü",
	"¨a", "ä", "¨o", "ö", "¨u", "ü",
)

type pageSpan struct {
	Offset int
	Page   int
}

// NormalizedText is the cleaned text of a whole document. Page boundaries are kept
// in an offset map rather than as markers in the text.
type NormalizedText struct {
	Text  string
	spans []pageSpan
}

// PageAt returns the page the byte offset originates from, 0 for an empty document.
func (n NormalizedText) PageAt(offset int) int {
	if len(n.spans) == 0 {
		return 0
	}
	i := sort.Search(len(n.spans), func(i int) bool { return n.spans[i].Offset > offset })
	if i == 0 {
		return n.spans[0].Page
	}
	return n.spans[i-1].Page
}

// Normalize cleans every page and concatenates them. It never fails; blank or
// unreadable pages contribute nothing but their entry in the page map.
func Normalize(pages []internal.Page) NormalizedText {
	var buf []byte
	spans := make([]pageSpan, 0, len(pages))

	for _, p := range pages {
		text := NormalizePageText(p.Text)
		if text == "" {
			spans = append(spans, pageSpan{Offset: len(buf), Page: p.Number})
			continue
		}
		if len(buf) > 0 {
			if endsWithWordHyphen(buf) && startsLower(text) {
				buf = buf[:len(buf)-1]
			} else {
				buf = append(buf, '\n', '\n')
			}
		}
		spans = append(spans, pageSpan{Offset: len(buf), Page: p.Number})
		buf = append(buf, text...)
	}

	return NormalizedText{Text: string(buf), spans: spans}
}

// NormalizePageText cleans a single page: line endings, spaced umlauts, scanner noise
// lines, line-end hyphenation and whitespace runs. Paragraph breaks survive as "\n\n".
func NormalizePageText(text string) string {
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	if strings.TrimSpace(text) == "" {
		return ""
	}
	text = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\f", "\n").Replace(text)
	text = spacedUmlauts.Replace(text)
	text = norm.NFC.String(text)
	text = reNoiseLines.ReplaceAllString(text, "")
	text = reLineHyphen.ReplaceAllString(text, "$1$2")

	lines := strings.Split(text, "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimSpace(reInlineSpace.ReplaceAllString(ln, " "))
	}
	text = strings.Join(lines, "\n")
	text = reBlankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func endsWithWordHyphen(buf []byte) bool {
	if len(buf) < 2 || buf[len(buf)-1] != '-' {
		return false
	}
	r, _ := utf8.DecodeLastRune(buf[:len(buf)-1])
	return unicode.IsLetter(r)
}

func startsLower(text string) bool {
	r, _ := utf8.DecodeRuneInString(text)
	return unicode.IsLower(r)
}

package tops

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"wegtop/internal/util"
)

const maxTitleRunes = 240

var (
	// "TOP 4", "TOP 4.", "T O P 4:", "Tagesordnungspunkt Nr. 17.1", "TOP 4a" at the start of a line.
	reBlockHeader = regexp.MustCompile(`(?mi)^[ \t]*(T[ \t]?O[ \t]?P|Tagesordnungspunkt)[ \t]*(?:Nr\.?[ \t]*)?(\d+)(?:[.,/](\d{1,2}))?([a-z])?\b[.:)]?`)

	// "... wurde unter TOP 7 Beschlussfassung über ..." anywhere in a line.
	reInlineHeader = regexp.MustCompile(`(?i)\bTOP[ \t]*(\d+)(?:[.,/](\d{1,2}))?[ \t]*[:.,\-–]?[ \t]*((?:Beschlussfassung|Antrag)\b[^\n]*)`)

	reSentenceEnd = regexp.MustCompile(`[.!?…]+\s+\p{Lu}`)
)

// Locate finds every TOP header in document order. A block-form and an inline-form
// match at the same offset and number count once, as block form. Sub-item headers
// ("TOP 17.1", "TOP 17a") directly following their parent item stay inside the parent's block.
func Locate(nt NormalizedText) []TopHeaderMatch {
	text := nt.Text
	type key struct{ start, number int }
	seen := map[key]struct{}{}
	matches := []TopHeaderMatch{}
	subs := map[int]bool{}

	for _, idx := range reBlockHeader.FindAllStringSubmatchIndex(text, -1) {
		n, ok := parseTopNumber(text[idx[4]:idx[5]])
		if !ok {
			continue
		}
		start := idx[2]
		lineEnd := strings.IndexByte(text[idx[1]:], '\n')
		rest := text[idx[1]:]
		if lineEnd >= 0 {
			rest = rest[:lineEnd]
		}
		m := TopHeaderMatch{
			Number: n,
			Label:  headerLabel(text, idx[4], idx[5], idx[6], idx[7], idx[8], idx[9]),
			Title:  headerTitle(rest),
			Start:  start,
			End:    idx[1],
			Page:   nt.PageAt(start),
			Kind:   HeaderBlock,
		}
		seen[key{start, n}] = struct{}{}
		subs[start] = idx[6] >= 0 || idx[8] >= 0
		matches = append(matches, m)
	}

	for _, idx := range reInlineHeader.FindAllStringSubmatchIndex(text, -1) {
		n, ok := parseTopNumber(text[idx[2]:idx[3]])
		if !ok {
			continue
		}
		start := idx[0]
		if _, dup := seen[key{start, n}]; dup {
			continue
		}
		end := idx[3]
		if idx[5] > end {
			end = idx[5]
		}
		m := TopHeaderMatch{
			Number: n,
			Label:  headerLabel(text, idx[2], idx[3], idx[4], idx[5], -1, -1),
			Title:  headerTitle(text[idx[6]:idx[7]]),
			Start:  start,
			End:    end,
			Page:   nt.PageAt(start),
			Kind:   HeaderInline,
		}
		seen[key{start, n}] = struct{}{}
		subs[start] = idx[4] >= 0
		matches = append(matches, m)
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Start < matches[j].Start })

	out := make([]TopHeaderMatch, 0, len(matches))
	for _, m := range matches {
		if subs[m.Start] && len(out) > 0 && out[len(out)-1].Number == m.Number {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Cut turns header matches into blocks. The body of block i runs from the end of
// match i to the start of match i+1, the last one to the end of the document.
func Cut(nt NormalizedText, matches []TopHeaderMatch) []TopBlock {
	blocks := make([]TopBlock, 0, len(matches))
	for i, m := range matches {
		end := len(nt.Text)
		if i+1 < len(matches) {
			end = matches[i+1].Start
		}
		bodyEnd := end - 1
		if bodyEnd < m.Start {
			bodyEnd = m.Start
		}
		body := ""
		if m.End < end {
			body = strings.TrimSpace(nt.Text[m.End:end])
		}
		blocks = append(blocks, TopBlock{
			Number:    m.Number,
			Label:     m.Label,
			Title:     m.Title,
			Kind:      m.Kind,
			Body:      body,
			Region:    RegionUnknown,
			Start:     m.Start,
			PageStart: m.Page,
			PageEnd:   nt.PageAt(bodyEnd),
		})
	}
	return blocks
}

func parseTopNumber(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func headerLabel(text string, ns, ne, ss, se, xs, xe int) string {
	label := text[ns:ne]
	if ss >= 0 {
		label += "." + text[ss:se]
	}
	if xs >= 0 {
		label += strings.ToLower(text[xs:xe])
	}
	return label
}

// headerTitle takes the text following a header on the same line and keeps its
// first sentence as title.
func headerTitle(rest string) string {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return ""
	}
	if loc := reSentenceEnd.FindStringIndex(rest); loc != nil {
		rest = rest[:loc[0]]
	}
	t := util.TruncateRunes(util.CleanTitle(rest), maxTitleRunes)
	if util.IsGarbageTitle(t) {
		return ""
	}
	return t
}

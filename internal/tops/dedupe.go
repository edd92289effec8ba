package tops

import (
	"sort"
	"strings"
	"unicode/utf8"

	"wegtop/internal/util"
)

const (
	maxBodyTitleLines  = 12
	bodyTitleSoftRunes = 200
)

// Deduplicate merges all blocks sharing a TOP number into one record. The
// authoritative block is the best detailed block of the group, or the longest
// block when the group has no detailed one. Records keep first-appearance order.
func Deduplicate(blocks []TopBlock, rules *Rules) []ResolvedTop {
	order := []int{}
	groups := map[int][]TopBlock{}
	for _, b := range blocks {
		if _, ok := groups[b.Number]; !ok {
			order = append(order, b.Number)
		}
		groups[b.Number] = append(groups[b.Number], b)
	}

	out := make([]ResolvedTop, 0, len(order))
	for _, n := range order {
		group := groups[n]
		auth := authoritative(group, rules)
		label := group[auth].Label
		if label == "" {
			label = group[0].Label
		}
		out = append(out, ResolvedTop{
			Number:      n,
			Label:       label,
			Title:       pickTitle(group, auth, rules),
			Body:        group[auth].Body,
			Region:      group[auth].Region,
			Verdict:     VerdictUndetermined,
			Confidence:  ConfidenceLow,
			SourcePages: sourcePages(group),
			Mentions:    len(group),
		})
	}
	return out
}

type blockScore struct {
	tally    bool
	explicit bool
	length   int
}

func (s blockScore) beats(o blockScore) bool {
	if s.tally != o.tally {
		return s.tally
	}
	if s.explicit != o.explicit {
		return s.explicit
	}
	return s.length > o.length
}

func authoritative(group []TopBlock, rules *Rules) int {
	best := -1
	var bestScore blockScore
	for i, b := range group {
		if b.Region != RegionDetailed {
			continue
		}
		_, _, explicit := rules.ExplicitDecision(b.Body)
		sc := blockScore{tally: ParseVotes(b.Body).Complete(), explicit: explicit, length: utf8.RuneCountInString(b.Body)}
		if best < 0 || sc.beats(bestScore) {
			best, bestScore = i, sc
		}
	}
	if best >= 0 {
		return best
	}
	best = 0
	for i, b := range group {
		if utf8.RuneCountInString(b.Body) > utf8.RuneCountInString(group[best].Body) {
			best = i
		}
	}
	return best
}

// pickTitle prefers block-form header titles, then inline titles, then the first
// plausible line of a body. The authoritative block is tried first in each tier.
func pickTitle(group []TopBlock, auth int, rules *Rules) string {
	ordered := make([]TopBlock, 0, len(group))
	ordered = append(ordered, group[auth])
	for i, b := range group {
		if i != auth {
			ordered = append(ordered, b)
		}
	}
	for _, kind := range []HeaderKind{HeaderBlock, HeaderInline} {
		for _, b := range ordered {
			if b.Kind == kind && b.Title != "" {
				return b.Title
			}
		}
	}
	for _, b := range ordered {
		if t := titleFromBody(b.Body, rules); t != "" {
			return t
		}
	}
	return ""
}

// titleFromBody joins the leading body lines up to a stop marker. A title that
// wraps onto following lines is kept whole, capped at maxTitleRunes.
func titleFromBody(body string, rules *Rules) string {
	parts := []string{}
	n := 0
	for i, line := range strings.Split(body, "\n") {
		if i >= maxBodyTitleLines {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if rules.isTitleStop(line) {
			break
		}
		t := util.CleanTitle(line)
		if utf8.RuneCountInString(t) < 3 || util.IsGarbageTitle(t) {
			continue
		}
		parts = append(parts, t)
		n += utf8.RuneCountInString(t) + 1
		if n > bodyTitleSoftRunes {
			break
		}
	}
	return util.TruncateRunes(strings.Join(parts, " "), maxTitleRunes)
}

func sourcePages(group []TopBlock) []int {
	seen := map[int]struct{}{}
	pages := []int{}
	for _, b := range group {
		for p := b.PageStart; p <= b.PageEnd; p++ {
			if p <= 0 {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			pages = append(pages, p)
		}
	}
	sort.Ints(pages)
	return pages
}

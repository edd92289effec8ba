package tops

import (
	"regexp"
	"strings"

	"wegtop/internal/util"
)

const num = `(\d[\d.]*)`

var (
	reYesAfter  = regexp.MustCompile(`(?i)\b(?:ja[- ]?stimmen|jastimmen|ja)\b[ \t]*[:=]?[ \t]*` + num)
	reYesBefore = regexp.MustCompile(`(?i)` + num + `[ \t]*(?:ja[- ]?stimmen|jastimmen)\b`)

	reNoAfter  = regexp.MustCompile(`(?i)\b(?:nein[- ]?stimmen|neinstimmen|gegenstimmen|nein)\b[ \t]*[:=]?[ \t]*` + num)
	reNoBefore = regexp.MustCompile(`(?i)` + num + `[ \t]*(?:nein[- ]?stimmen|neinstimmen|gegenstimmen?)\b`)

	reAbstainAfter  = regexp.MustCompile(`(?i)\b(?:stimmenthaltungen|stimmenthaltung|enthaltungen|enthaltung)\b[ \t]*[:=]?[ \t]*` + num)
	reAbstainBefore = regexp.MustCompile(`(?i)` + num + `[ \t]*(?:stimm)?enthaltung(?:en)?\b`)

	reSlashTally = regexp.MustCompile(`\b(\d[\d.]{0,9})[ \t]*/[ \t]*(\d[\d.]{0,9})[ \t]*/[ \t]*(\d[\d.]{0,9})\b`)
	reTallyHint  = regexp.MustCompile(`(?i)stimmen|\bja\b|\bnein\b|enth`)
)

// ParseVotes extracts yes/no/abstain counts from a block. Labelled counts
// ("Ja: 10", "10 Ja-Stimmen") win over an unlabelled "10/2/1" line.
//
// A block writes its tally either label first ("Ja-Stimmen: 10 Nein-Stimmen: 15")
// or count first ("10 Ja-Stimmen, 2 Nein-Stimmen"). Whichever form appears first
// is preferred for every count, so a number is never read as belonging to the
// label on its other side.
func ParseVotes(text string) Votes {
	after := []*regexp.Regexp{reYesAfter, reNoAfter, reAbstainAfter}
	before := []*regexp.Regexp{reYesBefore, reNoBefore, reAbstainBefore}
	a, b := earliestMatch(text, after...), earliestMatch(text, before...)
	labelFirst := b < 0 || (a >= 0 && a <= b)

	count := func(i int) *int {
		first, second := after[i], before[i]
		if !labelFirst {
			first, second = second, first
		}
		if n := firstCount(text, first); n != nil {
			return n
		}
		return firstCount(text, second)
	}
	v := Votes{Yes: count(0), No: count(1), Abstain: count(2)}
	if v.Yes != nil || v.No != nil {
		return v
	}
	for _, line := range strings.Split(text, "\n") {
		if !reTallyHint.MatchString(line) {
			continue
		}
		m := reSlashTally.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		yes, no, abstain := util.ParseGermanInt(m[1]), util.ParseGermanInt(m[2]), util.ParseGermanInt(m[3])
		if yes != nil && no != nil {
			return Votes{Yes: yes, No: no, Abstain: abstain}
		}
	}
	return v
}

func earliestMatch(text string, patterns ...*regexp.Regexp) int {
	best := -1
	for _, re := range patterns {
		if loc := re.FindStringIndex(text); loc != nil && (best < 0 || loc[0] < best) {
			best = loc[0]
		}
	}
	return best
}

// firstCount returns the count of whichever pattern matches earliest in text.
func firstCount(text string, patterns ...*regexp.Regexp) *int {
	best := -1
	var out *int
	for _, re := range patterns {
		idx := re.FindStringSubmatchIndex(text)
		if idx == nil {
			continue
		}
		if best >= 0 && idx[0] >= best {
			continue
		}
		if n := util.ParseGermanInt(text[idx[2]:idx[3]]); n != nil {
			best, out = idx[0], n
		}
	}
	return out
}

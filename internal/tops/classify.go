package tops

import "unicode/utf8"

// DefaultDetailMinChars is the body length from which a block counts as detailed
// minutes even without resolution language.
const DefaultDetailMinChars = 500

// Classify assigns a region to every block. A block is detailed when it carries
// resolution language, a decision phrase, a complete tally or enough text. Other
// blocks are agenda-list before the first detailed block and unknown after it.
func Classify(blocks []TopBlock, rules *Rules, detailMinChars int) []TopBlock {
	if detailMinChars <= 0 {
		detailMinChars = DefaultDetailMinChars
	}
	out := make([]TopBlock, len(blocks))
	copy(out, blocks)

	firstDetailed := -1
	for i := range out {
		if isDetailed(out[i].Body, rules, detailMinChars) {
			out[i].Region = RegionDetailed
			if firstDetailed < 0 {
				firstDetailed = i
			}
		}
	}
	for i := range out {
		if out[i].Region == RegionDetailed {
			continue
		}
		if firstDetailed < 0 || i < firstDetailed {
			out[i].Region = RegionAgenda
		} else {
			out[i].Region = RegionUnknown
		}
	}
	return out
}

func isDetailed(body string, rules *Rules, minChars int) bool {
	if rules.HasResolutionLanguage(body) {
		return true
	}
	if _, _, ok := rules.ExplicitDecision(body); ok {
		return true
	}
	if ParseVotes(body).Complete() {
		return true
	}
	return utf8.RuneCountInString(body) >= minChars
}

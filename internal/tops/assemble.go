package tops

import (
	"fmt"
	"sort"

	"wegtop/internal/util"
)

const DefaultExcerptChars = 500

// Assemble orders records by TOP number, fills missing titles and excerpts and
// checks that every number occurs once.
func Assemble(source string, records []ResolvedTop, excerptChars int) (Tracker, error) {
	if excerptChars <= 0 {
		excerptChars = DefaultExcerptChars
	}
	entries := make([]ResolvedTop, len(records))
	copy(entries, records)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Number < entries[j].Number })

	for i := range entries {
		if i > 0 && entries[i].Number == entries[i-1].Number {
			return Tracker{Source: source}, &IntegrityError{Source: source, Number: entries[i].Number}
		}
		e := &entries[i]
		if e.Title == "" {
			e.Title = fmt.Sprintf("TOP %d", e.Number)
		}
		if e.Label == "" {
			e.Label = fmt.Sprint(e.Number)
		}
		e.TitleIssues = util.TitleIssues(e.Title)
		e.Excerpt = util.TruncateRunes(util.NormalizeSpaces(e.Body), excerptChars)
	}
	return Tracker{Source: source, Entries: entries}, nil
}

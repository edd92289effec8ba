// Package tops turns the page text of a WEG Eigentümerversammlung Protokoll into an
// ordered tracker of agenda items (TOPs) with their approval outcome.
//
// The stages run strictly in sequence and each returns a new value:
// Normalize -> Locate -> Cut -> Classify -> Deduplicate -> Annotate -> Assemble.
package tops

import "fmt"

// Region tells which part of a Protokoll a block was found in.
type Region string

const (
	RegionAgenda   Region = "agenda-list"
	RegionDetailed Region = "detailed"
	RegionUnknown  Region = "unknown"
)

type Verdict string

const (
	VerdictApproved     Verdict = "approved"
	VerdictRejected     Verdict = "rejected"
	VerdictUndetermined Verdict = "undetermined"
)

type Confidence string

const (
	ConfidenceHigh Confidence = "high"
	ConfidenceLow  Confidence = "low"
)

// HeaderKind is the pattern that produced a TopHeaderMatch.
type HeaderKind string

const (
	HeaderBlock  HeaderKind = "block"
	HeaderInline HeaderKind = "inline"
)

// TopHeaderMatch is one occurrence of a TOP marker in the normalized text.
type TopHeaderMatch struct {
	Number int
	Label  string // number as written, e.g. "17.1"
	Title  string // inline title, may be empty
	Start  int    // offset of the marker
	End    int    // offset right after the TOP number
	Page   int
	Kind   HeaderKind
}

// TopBlock is the text between two consecutive header matches.
type TopBlock struct {
	Number    int
	Label     string
	Title     string
	Kind      HeaderKind
	Body      string
	Region    Region
	Start     int
	PageStart int
	PageEnd   int
}

// Votes holds an extracted tally. Nil fields were not found.
type Votes struct {
	Yes     *int
	No      *int
	Abstain *int
}

func (v Votes) Complete() bool {
	return v.Yes != nil && v.No != nil
}

// ResolvedTop is the single merged record for one TOP number.
type ResolvedTop struct {
	Number      int
	Label       string
	Title       string
	TitleIssues []string
	Body        string
	Excerpt     string
	Region      Region
	Verdict     Verdict
	Confidence  Confidence
	Reason      string
	Votes       Votes
	SourcePages []int
	Mentions    int
}

func (r ResolvedTop) PageStart() int {
	if len(r.SourcePages) == 0 {
		return 0
	}
	return r.SourcePages[0]
}

func (r ResolvedTop) PageEnd() int {
	if len(r.SourcePages) == 0 {
		return 0
	}
	return r.SourcePages[len(r.SourcePages)-1]
}

// Tracker is the ordered result for one document.
type Tracker struct {
	Source      string
	MeetingDate string
	OCRUsed     bool
	Entries     []ResolvedTop
}

func (t Tracker) Count(v Verdict) int {
	n := 0
	for _, e := range t.Entries {
		if e.Verdict == v {
			n++
		}
	}
	return n
}

// IntegrityError reports a TOP number that survived deduplication twice.
type IntegrityError struct {
	Source string
	Number int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation in %s: TOP %d appears more than once after deduplication", e.Source, e.Number)
}

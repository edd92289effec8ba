package tops

import (
	"path/filepath"
	"unicode/utf8"

	"wegtop/internal"
)

type Options struct {
	Rules          *Rules
	DetailMinChars int
	ExcerptChars   int
}

func DefaultOptions() Options {
	return Options{
		Rules:          DefaultRules(),
		DetailMinChars: DefaultDetailMinChars,
		ExcerptChars:   DefaultExcerptChars,
	}
}

// Engine runs the extraction stages for one document at a time. It holds no
// per-document state and can be shared between goroutines.
type Engine struct {
	opts Options
}

func NewEngine(opts Options) *Engine {
	if opts.Rules == nil {
		opts.Rules = DefaultRules()
	}
	if opts.DetailMinChars <= 0 {
		opts.DetailMinChars = DefaultDetailMinChars
	}
	if opts.ExcerptChars <= 0 {
		opts.ExcerptChars = DefaultExcerptChars
	}
	return &Engine{opts: opts}
}

func (e *Engine) Rules() *Rules { return e.opts.Rules }

// Parse builds the tracker for doc. The only error is *IntegrityError.
func (e *Engine) Parse(doc internal.Document) (Tracker, error) {
	nt := Normalize(doc.Pages)
	blocks := Cut(nt, Locate(nt))
	blocks = Classify(blocks, e.opts.Rules, e.opts.DetailMinChars)
	records := Annotate(Deduplicate(blocks, e.opts.Rules), e.opts.Rules)

	tr, err := Assemble(doc.Identifier, records, e.opts.ExcerptChars)
	if err != nil {
		return tr, err
	}
	tr.MeetingDate = MeetingDate(nt.Text, filepath.Base(doc.Identifier))
	tr.OCRUsed = doc.OCRUsed
	return tr, nil
}

// Rows flattens a tracker into export rows.
func (t Tracker) Rows() []internal.ExportRow {
	rows := make([]internal.ExportRow, 0, len(t.Entries))
	source := filepath.Base(t.Source)
	for _, e := range t.Entries {
		rows = append(rows, internal.ExportRow{
			MeetingDate:  t.MeetingDate,
			SourceFile:   source,
			TopNumber:    e.Number,
			TopLabel:     e.Label,
			TopTitle:     e.Title,
			TitleIssues:  e.TitleIssues,
			Verdict:      string(e.Verdict),
			Confidence:   string(e.Confidence),
			Region:       string(e.Region),
			VotesYes:     e.Votes.Yes,
			VotesNo:      e.Votes.No,
			VotesAbstain: e.Votes.Abstain,
			PageStart:    e.PageStart(),
			PageEnd:      e.PageEnd(),
			BlockLen:     utf8.RuneCountInString(e.Body),
			Excerpt:      e.Excerpt,
		})
	}
	return rows
}

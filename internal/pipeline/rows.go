package pipeline

import (
	"math"
	"path/filepath"
	"sort"

	"wegtop/internal"
	"wegtop/internal/tops"
)

// Status values offered to the Beirat for follow-up of approved TOPs.
var GermanStatuses = []string{
	"Neu / offen",
	"In Prüfung",
	"Beauftragt",
	"In Umsetzung",
	"Wartet auf Verwalter",
	"Wartet auf Dienstleister",
	"Erledigt",
	"Blockiert",
}

const (
	DefaultOwner  = "Verwalter"
	DefaultStatus = "Neu / offen"
)

// TrackerRow is one approved TOP with the Beirat follow-up columns.
type TrackerRow struct {
	MeetingDate      string `json:"meeting_date"`
	TopNumber        int    `json:"top_number"`
	TopTitle         string `json:"top_title"`
	VotesYes         *int   `json:"votes_yes"`
	VotesNo          *int   `json:"votes_no"`
	VotesAbstain     *int   `json:"votes_abstain"`
	SourceFile       string `json:"source_file"`
	PageStart        int    `json:"page_start"`
	PageEnd          int    `json:"page_end"`
	Owner            string `json:"owner"`
	Status           string `json:"status"`
	LastBeiratAction string `json:"last_beirat_action"`
	NextSteps        string `json:"next_steps"`
	DueDate          string `json:"due_date"`
	RiskFlag         string `json:"risk_flag"`
	Notes            string `json:"notes"`
}

func BuildTrackerRows(rows []internal.ExportRow) []TrackerRow {
	out := []TrackerRow{}
	for _, r := range rows {
		if !r.Approved() {
			continue
		}
		out = append(out, TrackerRow{
			MeetingDate:  r.MeetingDate,
			TopNumber:    r.TopNumber,
			TopTitle:     r.TopTitle,
			VotesYes:     r.VotesYes,
			VotesNo:      r.VotesNo,
			VotesAbstain: r.VotesAbstain,
			SourceFile:   r.SourceFile,
			PageStart:    r.PageStart,
			PageEnd:      r.PageEnd,
			Owner:        DefaultOwner,
			Status:       DefaultStatus,
		})
	}
	return out
}

func BuildQARow(file string, doc internal.Document, tr tops.Tracker) internal.QARow {
	return internal.QARow{
		File:            file,
		MeetingDate:     tr.MeetingDate,
		Tops:            len(tr.Entries),
		Approved:        tr.Count(tops.VerdictApproved),
		Rejected:        tr.Count(tops.VerdictRejected),
		Undetermined:    tr.Count(tops.VerdictUndetermined),
		OCRUsed:         doc.OCRUsed,
		LayoutUsed:      doc.LayoutUsed,
		AvgCharsPerPage: math.Round(doc.AvgCharsPerPage*10) / 10,
	}
}

// QARowFromStored rebuilds a QA row from stored TOPs of one document.
func QARowFromStored(doc internal.DocumentRow, rows []internal.ExportRow) internal.QARow {
	qa := internal.QARow{
		File:            filepath.Base(doc.Path),
		MeetingDate:     doc.MeetingDate,
		Tops:            len(rows),
		OCRUsed:         doc.OCRUsed,
		LayoutUsed:      doc.LayoutUsed,
		AvgCharsPerPage: math.Round(doc.AvgCharsPerPage*10) / 10,
	}
	for _, r := range rows {
		switch tops.Verdict(r.Verdict) {
		case tops.VerdictApproved:
			qa.Approved++
		case tops.VerdictRejected:
			qa.Rejected++
		default:
			qa.Undetermined++
		}
	}
	return qa
}

// SortRows orders rows by meeting date, source file and TOP number. Rows
// without a date go last.
func SortRows(rows []internal.ExportRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.MeetingDate != b.MeetingDate {
			if a.MeetingDate == "" || b.MeetingDate == "" {
				return b.MeetingDate == ""
			}
			return a.MeetingDate < b.MeetingDate
		}
		if a.SourceFile != b.SourceFile {
			return a.SourceFile < b.SourceFile
		}
		return a.TopNumber < b.TopNumber
	})
}

// GroupByYear splits rows by meeting year. Years are returned ascending with
// "unknown" last.
func GroupByYear(rows []internal.ExportRow) ([]string, map[string][]internal.ExportRow) {
	groups := map[string][]internal.ExportRow{}
	for _, r := range rows {
		y := tops.MeetingYear(r.MeetingDate)
		groups[y] = append(groups[y], r)
	}
	years := make([]string, 0, len(groups))
	for y := range groups {
		years = append(years, y)
	}
	sort.Slice(years, func(i, j int) bool {
		if years[i] == "unknown" || years[j] == "unknown" {
			return years[j] == "unknown" && years[i] != "unknown"
		}
		return years[i] < years[j]
	})
	return years, groups
}

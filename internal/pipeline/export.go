package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"wegtop/internal"
)

const (
	DetailJSONLName   = "parsed_tops_detail.jsonl"
	ErrorsJSONLName   = "errors.jsonl"
	TrackerXLSXName   = "approved_TOPs_tracker.xlsx"
	ByYearXLSXName    = "approved_TOPs_tracker_by_year.xlsx"
	sheetApproved     = "Approved_TOPs"
	sheetQA           = "QA_Summary"
	sheetDetail       = "All_TOPs_Detail"
	sheetStatusValues = "Status_Values"
)

var trackerHeaders = []string{
	"meeting_date", "top_number", "top_title", "votes_yes", "votes_no", "votes_abstain",
	"source_file", "page_start", "page_end",
	"owner", "status", "last_beirat_action", "next_steps", "due_date", "risk_flag", "notes",
}

var detailHeaders = []string{
	"meeting_date", "source_file", "top_number", "top_label", "top_title", "title_issues",
	"verdict", "approved", "confidence", "region", "votes_yes", "votes_no", "votes_abstain",
	"page_start", "page_end", "block_len", "raw_excerpt",
}

var yearHeaders = []string{
	"meeting_date", "top_number", "top_title", "votes_yes", "votes_no", "votes_abstain",
	"source_file", "page_start", "page_end",
}

var qaHeaders = []string{
	"file", "meeting_date", "tops_detail", "approved", "rejected", "unknown",
	"used_ocr", "used_layout", "avg_chars_per_page",
}

// WriteOutputs writes the JSONL files and both workbooks for a batch and
// returns the written paths.
func WriteOutputs(outDir string, results []DocumentResult) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	rows := []internal.ExportRow{}
	qa := []internal.QARow{}
	for _, r := range results {
		if r.Failed() {
			continue
		}
		rows = append(rows, r.Rows...)
		qa = append(qa, r.QA)
	}
	SortRows(rows)

	written := []string{}
	detailPath := filepath.Join(outDir, DetailJSONLName)
	if err := WriteJSONL(detailPath, rows); err != nil {
		return written, err
	}
	written = append(written, detailPath)

	errPath, err := WriteErrors(outDir, results)
	if err != nil {
		return written, err
	}
	if errPath != "" {
		written = append(written, errPath)
	}

	trackerPath := filepath.Join(outDir, TrackerXLSXName)
	if err := ExportTrackerXLSX(BuildTrackerRows(rows), qa, rows, trackerPath); err != nil {
		return written, err
	}
	written = append(written, trackerPath)

	byYearPath := filepath.Join(outDir, ByYearXLSXName)
	if err := ExportByYearXLSX(rows, qa, byYearPath); err != nil {
		return written, err
	}
	written = append(written, byYearPath)
	return written, nil
}

// WriteErrors writes errors.jsonl when any document failed. It returns the
// path, or "" when there was nothing to write.
func WriteErrors(outDir string, results []DocumentResult) (string, error) {
	errs := []internal.ErrorRow{}
	for _, r := range results {
		if r.Failed() {
			errs = append(errs, internal.ErrorRow{File: filepath.Base(r.Path), Error: r.Err.Error()})
		}
	}
	if len(errs) == 0 {
		return "", nil
	}
	path := filepath.Join(outDir, ErrorsJSONLName)
	return path, WriteJSONL(path, errs)
}

// WriteJSONL writes one JSON object per line.
func WriteJSONL[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

// ExportTrackerXLSX writes the Beirat tracker workbook: approved TOPs with
// follow-up columns, the QA summary and every TOP in detail.
func ExportTrackerXLSX(tracker []TrackerRow, qa []internal.QARow, all []internal.ExportRow, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetApproved); err != nil {
		return err
	}
	trackerRows := make([][]any, 0, len(tracker))
	for _, r := range tracker {
		trackerRows = append(trackerRows, []any{
			r.MeetingDate, r.TopNumber, r.TopTitle, derefInt(r.VotesYes), derefInt(r.VotesNo), derefInt(r.VotesAbstain),
			r.SourceFile, r.PageStart, r.PageEnd,
			r.Owner, r.Status, r.LastBeiratAction, r.NextSteps, r.DueDate, r.RiskFlag, r.Notes,
		})
	}
	if err := writeSheet(f, sheetApproved, trackerHeaders, trackerRows); err != nil {
		return err
	}
	if len(tracker) > 0 {
		statusCol := indexOf(trackerHeaders, "status") + 1
		from, _ := excelize.CoordinatesToCellName(statusCol, 2)
		to, _ := excelize.CoordinatesToCellName(statusCol, len(tracker)+1)
		dv := excelize.NewDataValidation(true)
		dv.SetSqref(from + ":" + to)
		if err := dv.SetDropList(GermanStatuses); err != nil {
			return err
		}
		if err := f.AddDataValidation(sheetApproved, dv); err != nil {
			return err
		}
	}

	if err := addSheet(f, sheetQA, qaHeaders, qaSheetRows(qa)); err != nil {
		return err
	}
	if err := addSheet(f, sheetDetail, detailHeaders, detailSheetRows(all)); err != nil {
		return err
	}

	statusRows := make([][]any, 0, len(GermanStatuses))
	for _, s := range GermanStatuses {
		statusRows = append(statusRows, []any{s})
	}
	if err := addSheet(f, sheetStatusValues, []string{"status"}, statusRows); err != nil {
		return err
	}

	return save(f, outputPath)
}

// ExportByYearXLSX writes one sheet per meeting year holding that year's
// approved TOPs, followed by the QA summary.
func ExportByYearXLSX(all []internal.ExportRow, qa []internal.QARow, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	approved := []internal.ExportRow{}
	for _, r := range all {
		if r.Approved() {
			approved = append(approved, r)
		}
	}
	SortRows(approved)
	years, groups := GroupByYear(approved)

	first := f.GetSheetName(0)
	for i, y := range years {
		rows := make([][]any, 0, len(groups[y]))
		for _, r := range groups[y] {
			rows = append(rows, []any{
				r.MeetingDate, r.TopNumber, r.TopTitle, derefInt(r.VotesYes), derefInt(r.VotesNo), derefInt(r.VotesAbstain),
				r.SourceFile, r.PageStart, r.PageEnd,
			})
		}
		if i == 0 {
			if err := f.SetSheetName(first, y); err != nil {
				return err
			}
			if err := writeSheet(f, y, yearHeaders, rows); err != nil {
				return err
			}
			continue
		}
		if err := addSheet(f, y, yearHeaders, rows); err != nil {
			return err
		}
	}

	if len(years) == 0 {
		if err := f.SetSheetName(first, sheetQA); err != nil {
			return err
		}
		if err := writeSheet(f, sheetQA, qaHeaders, qaSheetRows(qa)); err != nil {
			return err
		}
	} else if err := addSheet(f, sheetQA, qaHeaders, qaSheetRows(qa)); err != nil {
		return err
	}

	return save(f, outputPath)
}

func qaSheetRows(qa []internal.QARow) [][]any {
	rows := make([][]any, 0, len(qa))
	for _, q := range qa {
		rows = append(rows, []any{
			q.File, q.MeetingDate, q.Tops, q.Approved, q.Rejected, q.Undetermined,
			q.OCRUsed, q.LayoutUsed, q.AvgCharsPerPage,
		})
	}
	return rows
}

func detailSheetRows(all []internal.ExportRow) [][]any {
	rows := make([][]any, 0, len(all))
	for _, r := range all {
		issues, _ := json.Marshal(r.TitleIssues)
		rows = append(rows, []any{
			r.MeetingDate, r.SourceFile, r.TopNumber, r.TopLabel, r.TopTitle, string(issues),
			r.Verdict, r.Approved(), r.Confidence, r.Region,
			derefInt(r.VotesYes), derefInt(r.VotesNo), derefInt(r.VotesAbstain),
			r.PageStart, r.PageEnd, r.BlockLen, r.Excerpt,
		})
	}
	return rows
}

func addSheet(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("sheet %s: %w", sheet, err)
	}
	return writeSheet(f, sheet, headers, rows)
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for i, row := range rows {
		for j, value := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func save(f *excelize.File, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefInt(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}

func indexOf(values []string, want string) int {
	for i, v := range values {
		if v == want {
			return i
		}
	}
	return -1
}

package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"wegtop/internal"
	"wegtop/internal/config"
	"wegtop/internal/storage"
	"wegtop/internal/tops"
)

const protokoll2024 = "Protokoll der Eigentümerversammlung vom 12.02.2024\n" +
	"TOP 1 Wirtschaftsplan\nDie Versammlung hat mehrheitlich beschlossen.\f" +
	"TOP 2 Dachsanierung\nDer Antrag wurde abgelehnt."

const protokoll2023 = "Protokoll vom 05.06.2023\nTOP 3 Fassade\nEinstimmig beschlossen."

func testService(t *testing.T, db *storage.DB, cfg config.Config) *ProcessingService {
	t.Helper()
	if cfg.Workers == 0 {
		cfg.Workers = 2
	}
	svc, err := NewProcessingService(db, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc
}

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "wegtop.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
	}
	return n
}

func TestRunDirWritesOutputs(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	writeInput(t, in, "a_protokoll.txt", protokoll2024)
	writeInput(t, in, "b_protokoll.txt", protokoll2023)
	writeInput(t, in, "liste.xls", "ignored")

	db := openDB(t)
	svc := testService(t, db, config.Config{})
	summary, err := svc.RunDir(context.Background(), in, out)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Files != 2 || summary.Processed != 2 || summary.Failed != 0 || summary.Tops != 3 || summary.Approved != 2 {
		t.Fatalf("summary: %+v", summary)
	}

	if n := countLines(t, filepath.Join(out, DetailJSONLName)); n != 3 {
		t.Fatalf("detail lines=%d", n)
	}
	if _, err := os.Stat(filepath.Join(out, ErrorsJSONLName)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("errors.jsonl should not exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "corpus", "a_protokoll.json")); err != nil {
		t.Fatalf("corpus: %v", err)
	}

	f, err := excelize.OpenFile(filepath.Join(out, TrackerXLSXName))
	if err != nil {
		t.Fatalf("open tracker: %v", err)
	}
	defer f.Close()
	sheets := strings.Join(f.GetSheetList(), ",")
	if sheets != "Approved_TOPs,QA_Summary,All_TOPs_Detail,Status_Values" {
		t.Fatalf("sheets=%s", sheets)
	}
	rows, err := f.GetRows("Approved_TOPs")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("approved rows=%d", len(rows))
	}
	if rows[1][0] != "2023-06-05" || rows[1][2] != "Fassade" || rows[1][9] != "Verwalter" || rows[1][10] != "Neu / offen" {
		t.Fatalf("row=%v", rows[1])
	}
	detail, _ := f.GetRows("All_TOPs_Detail")
	if len(detail) != 4 {
		t.Fatalf("detail rows=%d", len(detail))
	}

	byYear, err := excelize.OpenFile(filepath.Join(out, ByYearXLSXName))
	if err != nil {
		t.Fatalf("open by year: %v", err)
	}
	defer byYear.Close()
	if got := strings.Join(byYear.GetSheetList(), ","); got != "2023,2024,QA_Summary" {
		t.Fatalf("year sheets=%s", got)
	}
	qa, _ := byYear.GetRows("QA_Summary")
	if len(qa) != 3 || qa[1][0] != "a_protokoll.txt" || qa[1][3] != "1" || qa[1][4] != "1" {
		t.Fatalf("qa=%v", qa)
	}

	docs, err := db.ListDocuments(10)
	if err != nil || len(docs) != 2 {
		t.Fatalf("docs=%+v err=%v", docs, err)
	}
	for _, d := range docs {
		if d.Status != "processed" {
			t.Fatalf("doc=%+v", d)
		}
	}
	if n, _ := db.CountRuns(summary.TraceID); n != 3 {
		t.Fatalf("runs=%d", n)
	}
	if !svc.AlreadyProcessed(filepath.Join(in, "a_protokoll.txt")) {
		t.Fatalf("expected processed")
	}
}

func TestRunDirEmpty(t *testing.T) {
	svc := testService(t, nil, config.Config{})
	if _, err := svc.RunDir(context.Background(), t.TempDir(), t.TempDir()); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}

type failingIngester struct {
	next Ingester
}

func (f failingIngester) Ingest(ctx context.Context, path string) (internal.Document, error) {
	if strings.Contains(filepath.Base(path), "bad") {
		return internal.Document{}, &tops.IntegrityError{Source: path, Number: 4}
	}
	return f.next.Ingest(ctx, path)
}

func TestRunFilesIsolatesFailures(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	paths := []string{
		writeInput(t, in, "a_bad.txt", protokoll2024),
		writeInput(t, in, "b_good.txt", protokoll2023),
	}
	db := openDB(t)
	svc := testService(t, db, config.Config{})
	svc.WithIngester(failingIngester{next: svc.Ingester()})

	summary, err := svc.RunFiles(context.Background(), paths, out, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Processed != 1 || summary.Failed != 1 || summary.Tops != 1 {
		t.Fatalf("summary: %+v", summary)
	}
	data, err := os.ReadFile(filepath.Join(out, ErrorsJSONLName))
	if err != nil {
		t.Fatalf("errors.jsonl: %v", err)
	}
	if !strings.Contains(string(data), `"file":"a_bad.txt"`) || !strings.Contains(string(data), "TOP 4") {
		t.Fatalf("errors=%s", data)
	}
	bad, _ := db.GetDocumentByPath(paths[0])
	if bad == nil || bad.Status != "failed" || !strings.Contains(bad.Error, "integrity") {
		t.Fatalf("bad doc=%+v", bad)
	}
	if n := countLines(t, filepath.Join(out, DetailJSONLName)); n != 1 {
		t.Fatalf("detail lines=%d", n)
	}
}

func TestRunFilesFailFast(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	paths := []string{
		writeInput(t, in, "a_bad.txt", protokoll2024),
		writeInput(t, in, "b_good.txt", protokoll2023),
	}
	svc := testService(t, nil, config.Config{Workers: 1, FailFast: true})
	svc.WithIngester(failingIngester{next: svc.Ingester()})

	_, err := svc.RunFiles(context.Background(), paths, out, nil)
	var integrity *tops.IntegrityError
	if !errors.As(err, &integrity) || integrity.Number != 4 {
		t.Fatalf("err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(out, ErrorsJSONLName)); err != nil {
		t.Fatalf("errors.jsonl: %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, TrackerXLSXName)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("tracker should not be written: %v", err)
	}
}

func TestProcessFilesKeepsInputOrder(t *testing.T) {
	in := t.TempDir()
	paths := []string{}
	for _, name := range []string{"c.txt", "a.txt", "b.txt", "d.txt"} {
		paths = append(paths, writeInput(t, in, name, protokoll2023))
	}
	svc := testService(t, nil, config.Config{Workers: 4})
	results, err := svc.ProcessFiles(context.Background(), "trace", paths, "", nil)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	for i, r := range results {
		if r.Path != paths[i] || r.Failed() || len(r.Rows) != 1 {
			t.Fatalf("result %d: %+v", i, r)
		}
	}
}

func TestProcessDocumentLogsRunRecordFailure(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "wegtop.db")
	db, err := storage.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := raw.Exec(`DROP TABLE runs`); err != nil {
		t.Fatalf("drop runs: %v", err)
	}
	_ = raw.Close()

	var logs bytes.Buffer
	svc, err := NewProcessingService(db, config.Config{Workers: 1}, slog.New(slog.NewTextHandler(&logs, nil)))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	path := writeInput(t, t.TempDir(), "protokoll.txt", protokoll2023)
	res := svc.ProcessDocument(context.Background(), "trace-runs", path, t.TempDir(), nil)
	if res.Failed() {
		t.Fatalf("document failed: %v", res.Err)
	}
	if !strings.Contains(logs.String(), "run record failed") {
		t.Fatalf("missing warning in logs:\n%s", logs.String())
	}
}

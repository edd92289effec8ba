package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"wegtop/internal/config"
	"wegtop/internal/pipeline"
	"wegtop/internal/storage"
)

const apiKey = "test-key"

const protokoll = "Protokoll der Eigentümerversammlung vom 12.02.2024\n" +
	"TOP 1 Wirtschaftsplan\nDie Versammlung hat mehrheitlich beschlossen.\f" +
	"TOP 2 Dachsanierung\nDer Antrag wurde abgelehnt."

func testServer(t *testing.T) (*Server, *pipeline.ProcessingService) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "wegtop.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{APIKey: apiKey, MaxUploadBytes: 1 << 20, Workers: 1}
	proc, err := pipeline.NewProcessingService(db, cfg, log)
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(proc, db, log, cfg), proc
}

func do(t *testing.T, s *Server, req *http.Request, auth bool) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	if auth {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestHealthIsPublic(t *testing.T) {
	s, _ := testServer(t)
	rec, body := do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil), false)
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("code=%d body=%v", rec.Code, body)
	}
}

func TestParsePages(t *testing.T) {
	s, _ := testServer(t)
	payload := `{"source":"Protokoll vom 26.10.2021.pdf","pages":[{"text":"TOP 5 Sonstiges\nDer Antrag wurde abgelehnt."}]}`

	rec, _ := do(t, s, httptest.NewRequest(http.MethodPost, "/api/parse/pages", bytes.NewBufferString(payload)), false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code=%d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/parse/pages", bytes.NewBufferString(payload))
	req.Header.Set("Authorization", "Bearer wrong")
	if rec, _ := do(t, s, req, false); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key code=%d", rec.Code)
	}

	rec, body := do(t, s, httptest.NewRequest(http.MethodPost, "/api/parse/pages", bytes.NewBufferString(payload)), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	topsJSON, _ := body["tops"].([]any)
	if len(topsJSON) != 1 || body["meeting_date"] != "2021-10-26" || body["rejected"].(float64) != 1 {
		t.Fatalf("body=%v", body)
	}
	first := topsJSON[0].(map[string]any)
	if first["top_number"].(float64) != 5 || first["verdict"] != "rejected" || first["page_start"].(float64) != 1 {
		t.Fatalf("top=%v", first)
	}

	rec, _ = do(t, s, httptest.NewRequest(http.MethodPost, "/api/parse/pages", bytes.NewBufferString("{")), true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json code=%d", rec.Code)
	}
}

func multipartRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/parse", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestParseUpload(t *testing.T) {
	s, _ := testServer(t)
	rec, body := do(t, s, multipartRequest(t, "protokoll.txt", []byte(protokoll)), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	if body["source"] != "protokoll.txt" || body["approved"].(float64) != 1 || body["meeting_date"] != "2024-02-12" {
		t.Fatalf("body=%v", body)
	}

	rec, _ = do(t, s, multipartRequest(t, "tool.exe", []byte("MZ")), true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unsupported code=%d", rec.Code)
	}

	rec, _ = do(t, s, multipartRequest(t, "big.txt", bytes.Repeat([]byte("a"), 2<<20)), true)
	if rec.Code != http.StatusBadRequest && rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversize code=%d", rec.Code)
	}
}

func TestStoredDocuments(t *testing.T) {
	s, proc := testServer(t)
	path := filepath.Join(t.TempDir(), "a.txt")
	if err := os.WriteFile(path, []byte(protokoll), 0o644); err != nil {
		t.Fatal(err)
	}
	results, err := proc.ProcessFiles(context.Background(), "trace", []string{path}, "", nil)
	if err != nil || results[0].Failed() {
		t.Fatalf("process: %v %v", err, results[0].Err)
	}
	id := results[0].DocumentID

	rec, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents", nil), true)
	if rec.Code != http.StatusOK || body["count"].(float64) != 1 {
		t.Fatalf("list code=%d body=%v", rec.Code, body)
	}

	rec, body = do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents/"+strconv.Itoa(id)+"/tops", nil), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("tops code=%d", rec.Code)
	}
	if rows, _ := body["tops"].([]any); len(rows) != 2 {
		t.Fatalf("tops=%v", body["tops"])
	}

	if rec, _ := do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents/999/tops", nil), true); rec.Code != http.StatusNotFound {
		t.Fatalf("missing code=%d", rec.Code)
	}
	if rec, _ := do(t, s, httptest.NewRequest(http.MethodGet, "/api/documents/abc", nil), true); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id code=%d", rec.Code)
	}
}

func TestSanitizeFilename(t *testing.T) {
	for in, want := range map[string]string{
		"../../x.pdf":          "x.pdf",
		`C:\tmp\Protokoll.pdf`: "Protokoll.pdf",
		"":                     "unnamed",
	} {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q)=%q want %q", in, got, want)
		}
	}
}

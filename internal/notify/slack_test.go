package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wegtop/internal"
	"wegtop/internal/pipeline"
	"wegtop/internal/tops"
	"wegtop/internal/util"
)

func sampleResult() pipeline.DocumentResult {
	return pipeline.DocumentResult{
		Path:     "/in/protokoll_2024.pdf",
		Document: internal.Document{OCRUsed: true},
		Tracker: tops.Tracker{
			MeetingDate: "2024-02-12",
			Entries: []tops.ResolvedTop{
				{Number: 1, Label: "1", Title: "Begrüßung", Verdict: tops.VerdictUndetermined},
				{Number: 4, Label: "4", Title: "Wirtschaftsplan", Verdict: tops.VerdictApproved, Votes: tops.Votes{Yes: util.IntPtr(30), No: util.IntPtr(2)}},
				{Number: 5, Label: "5", Title: "Dach", Verdict: tops.VerdictRejected},
			},
		},
	}
}

func TestDocumentMessage(t *testing.T) {
	msg := DocumentMessage(sampleResult())
	if !strings.Contains(msg.Text, "protokoll_2024.pdf (2024-02-12): 3 TOPs, 1 beschlossen, 1 abgelehnt, 1 offen") {
		t.Fatalf("text=%q", msg.Text)
	}
	if msg.Blocks == nil || len(msg.Blocks.BlockSet) != 3 {
		t.Fatalf("blocks=%+v", msg.Blocks)
	}
	data, _ := json.Marshal(msg)
	if !strings.Contains(string(data), "TOP 4 Wirtschaftsplan (30/2/-)") {
		t.Fatalf("payload=%s", data)
	}
}

func TestNotifyDocumentPostsWebhook(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSlack(srv.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := s.NotifyDocument(context.Background(), sampleResult()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.Contains(string(body), "Wirtschaftsplan") {
		t.Fatalf("body=%s", body)
	}
	if err := s.NotifyBatch(context.Background(), pipeline.BatchSummary{Files: 2, Tops: 7, Approved: 3}); err != nil {
		t.Fatalf("batch: %v", err)
	}
	if !strings.Contains(string(body), "2 Dateien") {
		t.Fatalf("body=%s", body)
	}
}

func TestNotifyDocumentReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()
	if err := NewSlack(srv.URL, nil).NotifyDocument(context.Background(), sampleResult()); err == nil {
		t.Fatalf("expected error")
	}
	if NewSlack(" ", nil) != nil {
		t.Fatalf("expected nil notifier without webhook")
	}
}

package connectors

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"wegtop/internal"
	"wegtop/internal/storage"
)

type fakeConnector struct {
	messages []internal.FetchedMailMessage
	failures int
	calls    int
}

func (f *fakeConnector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection reset")
	}
	if len(f.messages) > max {
		return f.messages[:max], nil
	}
	return f.messages, nil
}

func testFetchService(t *testing.T, conn MailConnector) (*FetchService, *storage.DB, string) {
	t.Helper()
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "wegtop.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	rawDir := filepath.Join(tmp, "raw")
	svc := NewFetchService(db, rawDir, conn, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.delay = time.Millisecond
	return svc, db, rawDir
}

func TestFetchAndStoreRetriesAndDedupes(t *testing.T) {
	conn := &fakeConnector{
		failures: 1,
		messages: []internal.FetchedMailMessage{
			{Provider: "imap", MessageID: "<1@x>", Subject: "Protokoll 2024", Raw: []byte("Subject: a\r\n\r\nbody")},
			{Provider: "imap", MessageID: "<2@x>", Subject: "Protokoll 2023", Raw: []byte("Subject: b\r\n\r\nbody")},
		},
	}
	svc, db, rawDir := testFetchService(t, conn)

	res, err := svc.FetchAndStore(context.Background(), "INBOX", 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if conn.calls != 2 || res.Fetched != 2 || res.Stored != 2 {
		t.Fatalf("res=%+v calls=%d", res, conn.calls)
	}
	entries, _ := os.ReadDir(rawDir)
	if len(entries) != 2 {
		t.Fatalf("raw files=%d", len(entries))
	}

	if err := db.UpdateMailStatus(1, "processed"); err != nil {
		t.Fatal(err)
	}
	res, err = svc.FetchAndStore(context.Background(), "INBOX", 10)
	if err != nil || res.Known != 2 || res.Stored != 0 {
		t.Fatalf("second fetch: %+v %v", res, err)
	}
	m, _ := db.GetMailByProviderMessageID("imap", "<1@x>")
	if m == nil || m.Status != "processed" {
		t.Fatalf("status must survive refetch: %+v", m)
	}
	if v, _ := db.GetMetadata("lastMailFetch"); v == nil {
		t.Fatalf("lastMailFetch not recorded")
	}
}

func TestFetchAndStoreGivesUp(t *testing.T) {
	conn := &fakeConnector{failures: 10}
	svc, _, _ := testFetchService(t, conn)
	if _, err := svc.FetchAndStore(context.Background(), "INBOX", 10); err == nil {
		t.Fatalf("expected error")
	}
	if conn.calls != 3 {
		t.Fatalf("calls=%d", conn.calls)
	}
}

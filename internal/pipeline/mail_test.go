package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jhillyerd/enmime"

	"wegtop/internal/config"
)

func buildMail(t *testing.T, attachments map[string]string) []byte {
	t.Helper()
	b := enmime.Builder().
		From("Hausverwaltung", "verwalter@example.org").
		To("Beirat", "beirat@example.org").
		Subject("Protokoll der Eigentümerversammlung").
		Text([]byte("Anbei das Protokoll."))
	for name, content := range attachments {
		b = b.AddAttachment([]byte(content), "application/octet-stream", name)
	}
	part, err := b.Build()
	if err != nil {
		t.Fatalf("build mail: %v", err)
	}
	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		t.Fatalf("encode mail: %v", err)
	}
	return buf.Bytes()
}

func TestExtractAttachments(t *testing.T) {
	raw := buildMail(t, map[string]string{
		"Protokoll 2024.txt": protokoll2024,
		"logo.png":           "png",
	})
	dir := t.TempDir()
	paths, err := ExtractAttachments(raw, dir)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(paths) != 1 || !strings.HasSuffix(paths[0], "_Protokoll_2024.txt") {
		t.Fatalf("paths=%v", paths)
	}
	data, err := os.ReadFile(paths[0])
	if err != nil || string(data) != protokoll2024 {
		t.Fatalf("content=%q err=%v", data, err)
	}

	again, err := ExtractAttachments(raw, dir)
	if err != nil || len(again) != 1 || again[0] != paths[0] {
		t.Fatalf("second extract: %v %v", again, err)
	}
}

func TestSafeFileName(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd":      "passwd",
		`C:\Users\x\Prot.pdf`:   "Prot.pdf",
		"Protokoll (final).pdf": "Protokoll_final_.pdf",
		"":                      "attachment",
	}
	for in, want := range cases {
		if got := safeFileName(in); got != want {
			t.Errorf("safeFileName(%q)=%q want %q", in, got, want)
		}
	}
}

func TestProcessPendingMails(t *testing.T) {
	tmp := t.TempDir()
	db := openDB(t)
	cfg := config.Config{AttachmentDir: filepath.Join(tmp, "att"), OutputDir: filepath.Join(tmp, "out")}
	svc := testService(t, db, cfg)

	withAttachment := filepath.Join(tmp, "a.eml")
	if err := os.WriteFile(withAttachment, buildMail(t, map[string]string{"protokoll.txt": protokoll2024}), 0o644); err != nil {
		t.Fatal(err)
	}
	bare := filepath.Join(tmp, "b.eml")
	if err := os.WriteFile(bare, buildMail(t, nil), 0o644); err != nil {
		t.Fatal(err)
	}
	m1, err := db.UpsertMail("imap", "<1@example.org>", "Protokoll", "verwalter@example.org", "2024-02-20T08:00:00Z", "h1", withAttachment, "fetched")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.UpsertMail("imap", "<2@example.org>", "Hallo", "verwalter@example.org", "2024-02-21T08:00:00Z", "h2", bare, "fetched"); err != nil {
		t.Fatal(err)
	}

	mails, docs, err := svc.ProcessPendingMails(context.Background(), 10, "imap")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if mails != 2 || docs != 1 {
		t.Fatalf("mails=%d docs=%d", mails, docs)
	}

	processed, _ := db.ListMailsByStatus("processed", 10)
	skipped, _ := db.ListMailsByStatus("skipped", 10)
	if len(processed) != 1 || processed[0].ID != m1.ID || len(skipped) != 1 {
		t.Fatalf("processed=%+v skipped=%+v", processed, skipped)
	}

	stored, err := db.ListDocuments(10)
	if err != nil || len(stored) != 1 || stored[0].MailID == nil || *stored[0].MailID != m1.ID || stored[0].MeetingDate != "2024-02-12" {
		t.Fatalf("documents=%+v err=%v", stored, err)
	}
	topRows, _ := db.ListTops(stored[0].ID)
	if len(topRows) != 2 || !topRows[0].Approved() {
		t.Fatalf("tops=%+v", topRows)
	}
}

package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"

	"wegtop/internal"
	"wegtop/internal/ingest"
)

var unsafeFileChars = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

// MailResult is the outcome of processing one stored mail.
type MailResult struct {
	MailID      int
	Attachments []string
	Documents   []DocumentResult
}

// ExtractAttachments writes the Protokoll attachments of a raw message into
// dir, named by content hash, and returns their paths.
func ExtractAttachments(raw []byte, dir string) ([]string, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	parts := append([]*enmime.Part{}, env.Attachments...)
	parts = append(parts, env.Inlines...)

	paths := []string{}
	seen := map[string]bool{}
	for _, att := range parts {
		name := strings.TrimSpace(att.FileName)
		if name == "" {
			continue
		}
		kind, err := ingest.KindForFile(name)
		if err != nil || kind == internal.SourceCorpus {
			continue
		}
		sum := sha256.Sum256(att.Content)
		hash := hex.EncodeToString(sum[:])
		if seen[hash] {
			continue
		}
		seen[hash] = true

		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, hash[:12]+"_"+safeFileName(name))
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := os.WriteFile(path, att.Content, 0o644); err != nil {
				return nil, err
			}
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func safeFileName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = unsafeFileChars.ReplaceAllString(base, "_")
	if base == "" || base == "." || base == "_" {
		return "attachment"
	}
	return base
}

func (s *ProcessingService) ProcessPendingMails(ctx context.Context, limit int, provider string) (int, int, error) {
	if s.db == nil {
		return 0, 0, errors.New("mail processing needs a database")
	}
	pending, err := s.db.ListMailsByStatus("fetched", limit)
	if err != nil {
		return 0, 0, err
	}
	processedMails := 0
	processedDocs := 0
	for _, mail := range pending {
		if provider != "" && mail.Provider != provider {
			continue
		}
		res, err := s.ProcessMail(ctx, mail)
		if err != nil {
			return processedMails, processedDocs, err
		}
		processedMails++
		processedDocs += len(res.Documents)
	}
	return processedMails, processedDocs, nil
}

func (s *ProcessingService) ProcessByProviderMessageID(ctx context.Context, provider, messageID string) (MailResult, error) {
	mail, err := s.db.MustMailByProviderMessageID(provider, messageID)
	if err != nil {
		return MailResult{}, err
	}
	return s.ProcessMail(ctx, mail)
}

// ProcessMail extracts the attachments of a stored mail and processes them.
// A mail without Protokoll attachments is marked skipped.
func (s *ProcessingService) ProcessMail(ctx context.Context, mail internal.MailRow) (MailResult, error) {
	res := MailResult{MailID: mail.ID}
	log := s.log.With("mailId", mail.ID, "subject", mail.Subject)

	raw, err := os.ReadFile(mail.RawRef)
	if err != nil {
		return res, err
	}
	paths, err := ExtractAttachments(raw, s.cfg.AttachmentDir)
	if err != nil {
		_ = s.db.UpdateMailStatus(mail.ID, "failed")
		return res, fmt.Errorf("mail %d: %w", mail.ID, err)
	}
	res.Attachments = paths
	if len(paths) == 0 {
		log.Info("mail has no Protokoll attachments")
		return res, s.db.UpdateMailStatus(mail.ID, "skipped")
	}

	docs, err := s.ProcessFiles(ctx, uuid.NewString(), paths, filepath.Join(s.cfg.OutputDir, "corpus"), &mail.ID)
	res.Documents = docs
	if err != nil {
		_ = s.db.UpdateMailStatus(mail.ID, "failed")
		return res, err
	}

	status := "processed"
	for _, d := range docs {
		if d.Failed() {
			status = "failed"
		}
	}
	log.Info("mail processed", "attachments", len(paths), "status", status)
	return res, s.db.UpdateMailStatus(mail.ID, status)
}

// Package notify posts processing summaries to the Beirat channel.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/slack-go/slack"

	"wegtop/internal/pipeline"
	"wegtop/internal/tops"
)

// maxListedTops caps the approved TOPs listed in one message.
const maxListedTops = 15

type Slack struct {
	webhookURL string
	log        *slog.Logger
	post       func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

// NewSlack returns nil when no webhook is configured.
func NewSlack(webhookURL string, log *slog.Logger) *Slack {
	if strings.TrimSpace(webhookURL) == "" {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	return &Slack{webhookURL: webhookURL, log: log, post: slack.PostWebhookContext}
}

func (s *Slack) NotifyDocument(ctx context.Context, res pipeline.DocumentResult) error {
	msg := DocumentMessage(res)
	if err := s.post(ctx, s.webhookURL, msg); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	s.log.Debug("slack summary posted", "file", filepath.Base(res.Path))
	return nil
}

func (s *Slack) NotifyBatch(ctx context.Context, summary pipeline.BatchSummary) error {
	text := fmt.Sprintf("WEG-Protokolle verarbeitet: %d Dateien, %d fehlgeschlagen, %d TOPs, davon %d beschlossen",
		summary.Files, summary.Failed, summary.Tops, summary.Approved)
	if err := s.post(ctx, s.webhookURL, &slack.WebhookMessage{Text: text}); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}
	return nil
}

// DocumentMessage renders the summary of one processed Protokoll.
func DocumentMessage(res pipeline.DocumentResult) *slack.WebhookMessage {
	file := filepath.Base(res.Path)
	date := res.Tracker.MeetingDate
	if date == "" {
		date = "unbekanntes Datum"
	}
	headline := fmt.Sprintf("Protokoll %s (%s): %d TOPs, %d beschlossen, %d abgelehnt, %d offen",
		file, date, len(res.Tracker.Entries),
		res.Tracker.Count(tops.VerdictApproved), res.Tracker.Count(tops.VerdictRejected), res.Tracker.Count(tops.VerdictUndetermined))

	lines := []string{}
	for _, e := range res.Tracker.Entries {
		if e.Verdict != tops.VerdictApproved {
			continue
		}
		if len(lines) == maxListedTops {
			lines = append(lines, "…")
			break
		}
		line := fmt.Sprintf("• TOP %s %s", e.Label, e.Title)
		if e.Votes.Complete() {
			line += fmt.Sprintf(" (%d/%d/%s)", *e.Votes.Yes, *e.Votes.No, abstain(e.Votes))
		}
		lines = append(lines, line)
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, "*"+headline+"*", false, false), nil, nil),
	}
	if len(lines) > 0 {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, strings.Join(lines, "\n"), false, false), nil, nil))
	}
	if res.Document.OCRUsed {
		blocks = append(blocks, slack.NewContextBlock("", slack.NewTextBlockObject(slack.PlainTextType, "Text per OCR erkannt", false, false)))
	}

	return &slack.WebhookMessage{
		Text:   headline,
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}

func abstain(v tops.Votes) string {
	if v.Abstain == nil {
		return "-"
	}
	return fmt.Sprint(*v.Abstain)
}

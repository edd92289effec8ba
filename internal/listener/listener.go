// Package listener watches the inbox directory for new Protokolle and polls
// the mailbox for minutes sent by the Verwaltung.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"wegtop/internal/config"
	"wegtop/internal/connectors"
	gmailconnector "wegtop/internal/connectors/gmail"
	imapconnector "wegtop/internal/connectors/imap"
	"wegtop/internal/ingest"
	"wegtop/internal/pipeline"
	"wegtop/internal/storage"
)

// Processor is the part of the processing service the listener drives.
type Processor interface {
	ProcessFiles(ctx context.Context, traceID string, paths []string, corpusDir string, mailID *int) ([]pipeline.DocumentResult, error)
	ProcessPendingMails(ctx context.Context, limit int, provider string) (int, int, error)
	AlreadyProcessed(path string) bool
}

type Service struct {
	db   *storage.DB
	cfg  config.Config
	proc Processor
	log  *slog.Logger

	// settle is how long a file must stay unchanged before it is processed.
	settle       time.Duration
	newConnector func(ctx context.Context, provider string) (connectors.MailConnector, error)

	mu   sync.Mutex
	done map[string]string
}

func NewService(db *storage.DB, cfg config.Config, proc Processor, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		db:     db,
		cfg:    cfg,
		proc:   proc,
		log:    log,
		settle: 2 * time.Second,
		done:   map[string]string{},
	}
	s.newConnector = s.makeConnector
	return s
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if !s.cfg.ListenerWatchInbox && !s.mailEnabled() {
		return fmt.Errorf("listener has neither inbox watching nor a mail provider enabled")
	}
	var wg sync.WaitGroup
	errs := make(chan error, 2)

	if s.cfg.ListenerWatchInbox {
		if err := os.MkdirAll(s.cfg.InboxDir, 0o755); err != nil {
			return err
		}
		s.ScanInbox(ctx)
		w, err := s.OpenWatcher()
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.WatchLoop(ctx, w)
		}()
	}

	if s.mailEnabled() {
		next, err := s.Scheduler()
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.pollLoop(ctx, next)
			errs <- nil
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) mailEnabled() bool {
	p := strings.ToLower(strings.TrimSpace(s.cfg.ListenerProvider))
	return p != "" && p != "none"
}

// Scheduler returns the function computing the next mail poll. A cron
// LISTENER_SCHEDULE wins over the fixed interval.
func (s *Service) Scheduler() (func(time.Time) time.Time, error) {
	expr := strings.TrimSpace(s.cfg.ListenerSchedule)
	if expr == "" {
		interval := time.Duration(s.cfg.ListenerIntervalSec) * time.Second
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		return func(now time.Time) time.Time { return now.Add(interval) }, nil
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid LISTENER_SCHEDULE %q: %w", expr, err)
	}
	return sched.Next, nil
}

func (s *Service) pollLoop(ctx context.Context, next func(time.Time) time.Time) {
	for {
		if err := s.RunMailCycle(ctx); err != nil {
			s.log.Error("listener cycle error", "err", err)
		}

		now := time.Now()
		at := next(now)
		s.log.Info("next mail poll", "at", at.Format(time.RFC3339))
		timer := time.NewTimer(at.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunMailCycle fetches new mails and processes their attachments.
func (s *Service) RunMailCycle(ctx context.Context) error {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.ListenerProvider))
	mailConnector, err := s.newConnector(ctx, provider)
	if err != nil {
		return err
	}

	fetchService := connectors.NewFetchService(s.db, s.cfg.RawMailDir, mailConnector, s.log)
	fetchResult, err := fetchService.FetchAndStore(ctx, s.cfg.ListenerLabel, s.cfg.ListenerFetchMax)
	if err != nil {
		return err
	}

	mails, docs, err := s.proc.ProcessPendingMails(ctx, s.cfg.ListenerFetchMax, provider)
	if err != nil {
		return err
	}
	s.log.Info("listener cycle done", "provider", provider, "fetched", fetchResult.Fetched, "stored", fetchResult.Stored, "mails", mails, "documents", docs)
	return nil
}

func (s *Service) makeConnector(ctx context.Context, provider string) (connectors.MailConnector, error) {
	switch provider {
	case "gmail":
		return gmailconnector.NewConnector(ctx, s.cfg)
	case "imap":
		return imapconnector.NewConnector(s.cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}

// ScanInbox processes the supported files already lying in the inbox.
func (s *Service) ScanInbox(ctx context.Context) {
	paths, err := pipeline.CollectInputs(s.cfg.InboxDir)
	if err != nil {
		s.log.Error("inbox scan failed", "err", err)
		return
	}
	for _, p := range paths {
		s.processFile(ctx, p)
	}
}

func (s *Service) OpenWatcher() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(s.cfg.InboxDir); err != nil {
		_ = w.Close()
		return nil, err
	}
	s.log.Info("watching inbox", "dir", s.cfg.InboxDir)
	return w, nil
}

// WatchLoop consumes watcher events until ctx is cancelled. A file is
// processed once it has settled, so partially copied files are not read.
func (s *Service) WatchLoop(ctx context.Context, w *fsnotify.Watcher) error {
	defer w.Close()

	pending := map[string]time.Time{}
	tick := time.NewTicker(s.settle / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
				continue
			}
			name := filepath.Base(ev.Name)
			if strings.HasPrefix(name, ".") || !ingest.IsSupported(name) {
				continue
			}
			pending[ev.Name] = time.Now()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("watcher error", "err", err)
		case now := <-tick.C:
			for path, seen := range pending {
				if now.Sub(seen) < s.settle {
					continue
				}
				delete(pending, path)
				s.processFile(ctx, path)
			}
		}
	}
}

func (s *Service) processFile(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	fingerprint := fmt.Sprintf("%d-%d", info.Size(), info.ModTime().UnixNano())

	s.mu.Lock()
	if s.done[path] == fingerprint {
		s.mu.Unlock()
		return
	}
	s.done[path] = fingerprint
	s.mu.Unlock()

	if s.proc.AlreadyProcessed(path) {
		s.log.Debug("already processed", "file", filepath.Base(path))
		return
	}
	results, err := s.proc.ProcessFiles(ctx, uuid.NewString(), []string{path}, filepath.Join(s.cfg.OutputDir, "corpus"), nil)
	if err != nil {
		s.log.Error("inbox file failed", "file", filepath.Base(path), "err", err)
		return
	}
	for _, r := range results {
		if r.Failed() {
			s.log.Error("inbox file failed", "file", filepath.Base(path), "err", r.Err)
		}
	}
}

package connectors

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"wegtop/internal/storage"
)

type FetchService struct {
	db        *storage.DB
	connector MailConnector
	store     *MailStoreService
	log       *slog.Logger
	attempts  uint
	delay     time.Duration
}

type FetchResult struct {
	Fetched int
	Stored  int
	Known   int
}

func NewFetchService(db *storage.DB, rawMailDir string, connector MailConnector, log *slog.Logger) *FetchService {
	if log == nil {
		log = slog.Default()
	}
	return &FetchService{
		db:        db,
		connector: connector,
		store:     NewMailStoreService(db, rawMailDir),
		log:       log,
		attempts:  3,
		delay:     2 * time.Second,
	}
}

// FetchAndStore pulls up to max messages from label and stores the ones not
// seen before. Mailbox errors are retried.
func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	var res FetchResult
	err := retry.Do(
		func() error {
			messages, err := s.connector.FetchInbox(ctx, label, max)
			if err != nil {
				return err
			}
			res = FetchResult{Fetched: len(messages)}
			for _, msg := range messages {
				known, err := s.db.GetMailByProviderMessageID(msg.Provider, msg.MessageID)
				if err != nil {
					return retry.Unrecoverable(err)
				}
				if known != nil {
					res.Known++
					continue
				}
				if _, err := s.store.Store(msg); err != nil {
					return retry.Unrecoverable(err)
				}
				res.Stored++
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.log.Warn("mail fetch failed, retrying", "attempt", n+1, "err", err)
		}),
	)
	if err != nil {
		return FetchResult{}, err
	}
	if err := s.db.SetMetadata("lastMailFetch", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return res, err
	}
	s.log.Info("mail fetch done", "label", label, "fetched", res.Fetched, "stored", res.Stored, "known", res.Known)
	return res, nil
}

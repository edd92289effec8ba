// Package connectors fetches Protokoll mails from a mailbox and stores them
// for processing.
package connectors

import (
	"context"

	"wegtop/internal"
)

type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// Package notifier abstracts how a notification reaches the recipient
// (push, email, SMS). The saga only needs best-effort delivery.
package notifier

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNotConnected signals the recipient has no live delivery channel. The
// stored notification remains their source of truth.
var ErrNotConnected = errors.New("notifier: recipient not connected")

// Deliverer pushes one message to one recipient.
type Deliverer interface {
	Deliver(ctx context.Context, recipientID, title, body string) error
}

// Console logs deliveries instead of pushing them. Useful in development and
// as the default until a real channel is wired.
type Console struct {
	log *slog.Logger
}

func NewConsole(log *slog.Logger) *Console {
	if log == nil {
		log = slog.Default()
	}
	return &Console{log: log}
}

func (c *Console) Deliver(_ context.Context, recipientID, title, body string) error {
	c.log.Info("notify",
		slog.String("recipient_id", recipientID),
		slog.String("title", title),
		slog.String("body", body))
	return nil
}

package notify

import (
	"context"

	"github.com/hupe1980/intakemesh/core"
	"github.com/hupe1980/intakemesh/logging"
)

// Log writes messages to a logger instead of sending them.
type Log struct {
	Logger logging.Logger
}

// Send implements core.Notifier.
func (l Log) Send(_ context.Context, msg core.Message) error {
	logging.OrNoOp(l.Logger).Info("outbound message", "to", msg.To, "body", msg.Body, "media", len(msg.MediaURLs))
	return nil
}

// Discard drops every message.
type Discard struct{}

// Send implements core.Notifier.
func (Discard) Send(context.Context, core.Message) error { return nil }

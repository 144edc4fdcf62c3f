package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/intakemesh/core"
)

// RecordingNotifier captures sent messages. FailFirst makes the first n
// sends fail with Err.
type RecordingNotifier struct {
	mu        sync.Mutex
	messages  []core.Message
	attempts  int
	FailFirst int
	Err       error
}

// Send implements core.Notifier.
func (n *RecordingNotifier) Send(_ context.Context, msg core.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attempts++
	if n.attempts <= n.FailFirst {
		return n.Err
	}
	n.messages = append(n.messages, msg)
	return nil
}

// Messages returns a snapshot of delivered messages.
func (n *RecordingNotifier) Messages() []core.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]core.Message(nil), n.messages...)
}

// To returns the delivered messages addressed to recipient.
func (n *RecordingNotifier) To(recipient string) []core.Message {
	var out []core.Message
	for _, m := range n.Messages() {
		if m.To == recipient {
			out = append(out, m)
		}
	}
	return out
}

// Attempts returns the number of Send calls, failed ones included.
func (n *RecordingNotifier) Attempts() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.attempts
}

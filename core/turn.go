package core

import (
	"strings"
	"time"
)

// Attachment is one media reference carried by an inbound turn.
type Attachment struct {
	Ref         string `json:"ref"`
	ContentType string `json:"content_type"`
}

// Turn is one inbound message from the transport.
type Turn struct {
	// MessageID is the transport's message identifier. When present it is
	// used as the idempotency key for redelivered messages.
	MessageID   string       `json:"message_id,omitempty"`
	Identity    string       `json:"identity"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ReceivedAt  time.Time    `json:"received_at"`
}

// Body returns the trimmed text of the turn.
func (t Turn) Body() string { return strings.TrimSpace(t.Text) }

// HasMedia reports whether the turn carries attachments.
func (t Turn) HasMedia() bool { return len(t.Attachments) > 0 }

// Reply is the single outward acknowledgment produced for a turn.
type Reply struct {
	Identity string `json:"identity"`
	Text     string `json:"text"`
	// TicketID is set when the turn finalized a record.
	TicketID string `json:"ticket_id,omitempty"`
	// Delivered is true when the text was already pushed through a Notifier
	// and the transport must not send it again.
	Delivered bool `json:"delivered"`
}

package testutil

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hupe1980/intakemesh/core"
)

var messageSeq atomic.Int64

// TurnBuilder constructs inbound turns. Each built turn receives a fresh
// message id unless one is set explicitly.
type TurnBuilder struct {
	turn core.Turn
}

// NewTurn starts a turn from identity carrying text.
func NewTurn(identity, text string) *TurnBuilder {
	return &TurnBuilder{turn: core.Turn{Identity: identity, Text: text, ReceivedAt: time.Now()}}
}

// MessageID sets an explicit transport message id (chainable).
func (b *TurnBuilder) MessageID(id string) *TurnBuilder {
	b.turn.MessageID = id
	return b
}

// Attach adds attachments with the given refs (chainable).
func (b *TurnBuilder) Attach(refs ...string) *TurnBuilder {
	for _, r := range refs {
		b.turn.Attachments = append(b.turn.Attachments, core.Attachment{Ref: r, ContentType: "image/jpeg"})
	}
	return b
}

// Build returns the turn.
func (b *TurnBuilder) Build() core.Turn {
	t := b.turn
	if t.MessageID == "" {
		t.MessageID = fmt.Sprintf("SM%08d", messageSeq.Add(1))
	}
	t.Attachments = append([]core.Attachment(nil), b.turn.Attachments...)
	return t
}

package testutil

import (
	"time"

	"github.com/hupe1980/intakemesh/core"
)

// SessionBuilder helps construct sessions with fluent chaining for tests.
// Example:
//
//	sess := NewSessionBuilder("+100").At("report", "description").Answer("category", "Other").Build()
type SessionBuilder struct {
	identity string
	flowID   string
	stepKey  string
	index    int
	resume   string
	answers  map[string]string
	media    []core.MediaItem
	now      time.Time
}

// NewSessionBuilder creates a new builder for a session of the given identity.
func NewSessionBuilder(identity string) *SessionBuilder {
	return &SessionBuilder{identity: identity, answers: map[string]string{}, now: time.Now()}
}

// At positions the session at a flow step (chainable).
func (b *SessionBuilder) At(flowID, stepKey string) *SessionBuilder {
	b.flowID, b.stepKey = flowID, stepKey
	return b
}

// StepIndex sets the advance counter (chainable).
func (b *SessionBuilder) StepIndex(i int) *SessionBuilder {
	b.index = i
	return b
}

// Resume sets the media-first resume step (chainable).
func (b *SessionBuilder) Resume(stepKey string) *SessionBuilder {
	b.resume = stepKey
	return b
}

// Answer records an answer (chainable).
func (b *SessionBuilder) Answer(key, value string) *SessionBuilder {
	b.answers[key] = value
	return b
}

// Media appends media items with the given refs (chainable).
func (b *SessionBuilder) Media(refs ...string) *SessionBuilder {
	for _, r := range refs {
		b.media = append(b.media, core.MediaItem{Ref: r, ContentType: "image/jpeg", ReceivedAt: b.now})
	}
	return b
}

// Build returns the session.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.identity, b.now)
	s.FlowID = b.flowID
	s.StepKey = b.stepKey
	s.StepIndex = b.index
	s.ResumeStep = b.resume
	for k, v := range b.answers {
		s.Answers[k] = v
	}
	s.AppendMedia(b.media...)
	return s
}

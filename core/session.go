package core

import (
	"context"
	"time"
)

// Session is the dialogue state for one identity. A zero FlowID means the
// session is idle at the root menu (WELCOME).
//
// Contract:
//   - StepIndex counts advances inside the current flow instance and never
//     decreases until Reset
//   - Answers are keyed by step key
//   - Media keeps arrival order
//   - Clone performs deep copies of maps/slices for safe divergence.
type Session struct {
	Identity   string            `json:"identity"`
	FlowID     string            `json:"flow_id,omitempty"`
	StepKey    string            `json:"step_key,omitempty"`
	StepIndex  int               `json:"step_index"`
	Answers    map[string]string `json:"answers"`
	Media      []MediaItem       `json:"media"`
	ResumeStep string            `json:"resume_step,omitempty"`
	Created    time.Time         `json:"created"`
	Updated    time.Time         `json:"updated"`
}

// NewSession creates an idle session for the given identity.
func NewSession(identity string, now time.Time) *Session {
	return &Session{
		Identity: identity,
		Answers:  map[string]string{},
		Media:    []MediaItem{},
		Created:  now,
		Updated:  now,
	}
}

// Idle reports whether the session sits at the root menu.
func (s *Session) Idle() bool { return s.FlowID == "" }

// Start enters a flow at its first step, discarding any previous flow state.
func (s *Session) Start(flowID, stepKey string) {
	s.Reset()
	s.FlowID = flowID
	s.StepKey = stepKey
}

// Advance moves to the next step. The step index only grows.
func (s *Session) Advance(stepKey string) {
	s.StepKey = stepKey
	s.StepIndex++
}

// SetAnswer records the answer for a step key.
func (s *Session) SetAnswer(key, value string) {
	if s.Answers == nil {
		s.Answers = map[string]string{}
	}
	s.Answers[key] = value
}

// Answer returns the recorded answer for a step key.
func (s *Session) Answer(key string) (string, bool) {
	v, ok := s.Answers[key]
	return v, ok
}

// AppendMedia appends media items preserving their order and returns the
// cumulative count.
func (s *Session) AppendMedia(items ...MediaItem) int {
	s.Media = append(s.Media, items...)
	return len(s.Media)
}

// Reset returns the session to WELCOME, dropping answers and pending media.
func (s *Session) Reset() {
	s.FlowID = ""
	s.StepKey = ""
	s.StepIndex = 0
	s.ResumeStep = ""
	s.Answers = map[string]string{}
	s.Media = []MediaItem{}
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Answers = make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		clone.Answers[k] = v
	}
	clone.Media = make([]MediaItem, len(s.Media))
	copy(clone.Media, s.Media)
	return &clone
}

// SessionStore holds exactly one session per identity.
//
// Lock serializes turns for the same identity; turns for distinct identities
// never contend. Callers hold the lock across Get/CreateIfAbsent ... Save so
// the read-modify-write of one turn is linearized.
type SessionStore interface {
	Get(ctx context.Context, identity string) (*Session, error)
	CreateIfAbsent(ctx context.Context, identity string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Clear(ctx context.Context, identity string) error
	Lock(ctx context.Context, identity string) (unlock func(), err error)
}

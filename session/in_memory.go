package session

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/intakemesh/core"
	"github.com/hupe1980/intakemesh/internal/keylock"
	"github.com/hupe1980/intakemesh/logging"
)

// Options configures an InMemoryStore.
type Options struct {
	// TTL expires sessions idle for longer than this. Zero disables expiry.
	TTL time.Duration
	// Now is the clock; tests inject a fixed one.
	Now func() time.Time
	// Logger receives janitor diagnostics.
	Logger logging.Logger
}

// InMemoryStore is a volatile SessionStore storing sessions in a process
// local map. It is safe for concurrent access. Each returned session is
// cloned to prevent external mutation of internal state.
//
// Per-identity locks honor context cancellation while waiting.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session

	locks *keylock.Map
	opts  Options
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{
		Now:    time.Now,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &InMemoryStore{
		sessions: make(map[string]*core.Session),
		locks:    keylock.New(),
		opts:     opts,
	}
}

// Get returns a clone of the identity's session or core.ErrNotFound.
// Expired sessions are reported as absent.
func (s *InMemoryStore) Get(_ context.Context, identity string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[identity]
	if !ok || s.expired(sess, s.opts.Now()) {
		return nil, core.ErrNotFound
	}
	return sess.Clone(), nil
}

// CreateIfAbsent returns the existing session or creates an idle one.
func (s *InMemoryStore) CreateIfAbsent(_ context.Context, identity string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.Now()
	if sess, ok := s.sessions[identity]; ok && !s.expired(sess, now) {
		return sess.Clone(), nil
	}

	sess := core.NewSession(identity, now)
	s.sessions[identity] = sess
	return sess.Clone(), nil
}

// Save stores a clone of the provided session snapshot.
func (s *InMemoryStore) Save(_ context.Context, session *core.Session) error {
	clone := session.Clone()
	clone.Updated = s.opts.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Identity] = clone
	return nil
}

// Clear removes the identity's session. Clearing an absent session is a no-op.
func (s *InMemoryStore) Clear(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, identity)
	return nil
}

// Lock acquires the per-identity turn lock.
func (s *InMemoryStore) Lock(ctx context.Context, identity string) (func(), error) {
	return s.locks.Lock(ctx, identity)
}

// Len returns the number of stored sessions, expired ones included.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep drops expired sessions and returns how many were removed.
func (s *InMemoryStore) Sweep(now time.Time) int {
	if s.opts.TTL <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired sessions every interval until ctx is done.
func (s *InMemoryStore) Run(ctx context.Context, interval time.Duration) {
	if s.opts.TTL <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(s.opts.Now()); n > 0 {
				s.opts.Logger.Debug("expired sessions swept", "count", n)
			}
		}
	}
}

func (s *InMemoryStore) expired(sess *core.Session, now time.Time) bool {
	return s.opts.TTL > 0 && now.Sub(sess.Updated) > s.opts.TTL
}

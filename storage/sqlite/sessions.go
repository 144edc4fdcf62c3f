package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/intakemesh/core"
)

// Get returns the identity's session or core.ErrNotFound. Expired sessions
// are reported as absent.
func (s *Store) Get(ctx context.Context, identity string) (*core.Session, error) {
	var (
		state     string
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT state_json, updated_at FROM sessions WHERE identity = ?`, identity,
	).Scan(&state, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if s.expired(fromMillis(updatedAt)) {
		return nil, core.ErrNotFound
	}

	var sess core.Session
	if err := json.Unmarshal([]byte(state), &sess); err != nil {
		return nil, fmt.Errorf("%w: decode session: %v", core.ErrSessionCorruption, err)
	}
	if sess.Answers == nil {
		sess.Answers = map[string]string{}
	}
	return &sess, nil
}

// CreateIfAbsent returns the existing session or stores a new idle one.
func (s *Store) CreateIfAbsent(ctx context.Context, identity string) (*core.Session, error) {
	sess, err := s.Get(ctx, identity)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	sess = core.NewSession(identity, s.opts.Now())
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Save upserts the session snapshot.
func (s *Store) Save(ctx context.Context, session *core.Session) error {
	now := s.opts.Now()
	snapshot := session.Clone()
	snapshot.Updated = now

	state, err := marshalJSON(snapshot)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO sessions (identity, state_json, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(identity) DO UPDATE SET state_json = excluded.state_json, updated_at = excluded.updated_at`,
		session.Identity, state, toMillis(now),
	); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear deletes the identity's session.
func (s *Store) Clear(ctx context.Context, identity string) error {
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM sessions WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Lock acquires the per-identity turn lock. Locks are process local; run a
// single intake process per database file.
func (s *Store) Lock(ctx context.Context, identity string) (func(), error) {
	return s.locks.Lock(ctx, identity)
}

// Sweep deletes sessions idle for longer than the configured TTL.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int64, error) {
	if s.opts.SessionTTL <= 0 {
		return 0, nil
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM sessions WHERE updated_at < ?`, toMillis(now.Add(-s.opts.SessionTTL)))
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) expired(updated time.Time) bool {
	return s.opts.SessionTTL > 0 && s.opts.Now().Sub(updated) > s.opts.SessionTTL
}

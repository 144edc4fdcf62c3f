package sqlite

import (
	"context"
	"fmt"
)

// Increment atomically advances the named counter and returns the new value.
// The first call for a name returns 1.
func (s *Store) Increment(ctx context.Context, name string) (int64, error) {
	var seq int64
	err := s.sqlDB.QueryRowContext(ctx,
		`INSERT INTO counters (name, seq) VALUES (?, 1)
		 ON CONFLICT(name) DO UPDATE SET seq = seq + 1
		 RETURNING seq`,
		name,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("increment counter %s: %w", name, err)
	}
	return seq, nil
}

// SetCounter overwrites the named counter. Used to seed a sequence when
// migrating existing tickets.
func (s *Store) SetCounter(ctx context.Context, name string, value int64) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO counters (name, seq) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET seq = excluded.seq`,
		name, value,
	); err != nil {
		return fmt.Errorf("set counter %s: %w", name, err)
	}
	return nil
}

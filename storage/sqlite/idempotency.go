package sqlite

import (
	"context"
	"fmt"
	"time"
)

// MarkProcessed records a transport message id and reports whether it had
// already been recorded.
func (s *Store) MarkProcessed(ctx context.Context, key string) (bool, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_messages (message_id, processed_at) VALUES (?, ?)`,
		key, toMillis(s.opts.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("mark message processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark message processed: %w", err)
	}
	return n == 0, nil
}

// PruneProcessed forgets message ids recorded before cutoff.
func (s *Store) PruneProcessed(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM processed_messages WHERE processed_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune processed messages: %w", err)
	}
	return res.RowsAffected()
}

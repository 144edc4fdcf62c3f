package sqlite

import (
	"context"
	"time"
)

// Run sweeps expired sessions and prunes old message ids every interval
// until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Store) sweepOnce(ctx context.Context) {
	now := s.opts.Now()

	if s.opts.SessionTTL > 0 {
		n, err := s.Sweep(ctx, now)
		if err != nil {
			s.opts.Logger.Warn("session sweep failed", "error", err)
		} else if n > 0 {
			s.opts.Logger.Debug("expired sessions swept", "count", n)
		}
	}

	if s.opts.ProcessedRetention > 0 {
		n, err := s.PruneProcessed(ctx, now.Add(-s.opts.ProcessedRetention))
		if err != nil {
			s.opts.Logger.Warn("message id prune failed", "error", err)
		} else if n > 0 {
			s.opts.Logger.Debug("processed message ids pruned", "count", n)
		}
	}
}

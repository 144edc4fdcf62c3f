package notify

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/hupe1980/intakemesh/core"
	"github.com/hupe1980/intakemesh/logging"
)

// RetryOptions configures Retrying.
type RetryOptions struct {
	// MaxTries is the total number of attempts. Values below 2 become 2.
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Timeout bounds each single attempt.
	Timeout time.Duration
	Logger  logging.Logger
}

// Retrying decorates a Notifier with exponential backoff. Errors that
// declare themselves non-retryable stop the loop early.
type Retrying struct {
	next core.Notifier
	opts RetryOptions
}

// NewRetrying wraps next.
func NewRetrying(next core.Notifier, optFns ...func(o *RetryOptions)) *Retrying {
	opts := RetryOptions{
		MaxTries:        3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Timeout:         10 * time.Second,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxTries < 2 {
		opts.MaxTries = 2
	}
	return &Retrying{next: next, opts: opts}
}

type retryable interface {
	Retryable() bool
}

// Send delivers msg, retrying transient failures.
func (r *Retrying) Send(ctx context.Context, msg core.Message) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	b.MaxInterval = r.opts.MaxInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()

		err := r.next.Send(callCtx, msg)
		if err == nil {
			return struct{}{}, nil
		}

		var re retryable
		if errors.As(err, &re) && !re.Retryable() {
			return struct{}{}, backoff.Permanent(err)
		}
		r.opts.Logger.Debug("notification attempt failed", "to", msg.To, "attempt", attempt, "error", err)
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(r.opts.MaxTries))

	return err
}

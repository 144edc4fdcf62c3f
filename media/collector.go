// Package media resolves transport attachments to durable references.
package media

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/intakemesh/core"
	"github.com/hupe1980/intakemesh/logging"
)

// Options configures a Collector.
type Options struct {
	// Timeout bounds each MediaStore call.
	Timeout time.Duration
	// Parallelism bounds concurrent MediaStore calls per turn.
	Parallelism int
	Logger      logging.Logger
	Now         func() time.Time
}

// Collector re-hosts attachments through a core.MediaStore. A failed or
// timed out attachment keeps its original transport reference.
type Collector struct {
	store core.MediaStore
	opts  Options
}

// NewCollector creates a collector. A nil store keeps every original ref.
func NewCollector(store core.MediaStore, optFns ...func(o *Options)) *Collector {
	opts := Options{
		Timeout:     10 * time.Second,
		Parallelism: 4,
		Logger:      logging.NoOpLogger{},
		Now:         time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	return &Collector{store: store, opts: opts}
}

// Resolve converts attachments to media items in their arrival order.
func (c *Collector) Resolve(ctx context.Context, identity string, atts []core.Attachment) []core.MediaItem {
	now := c.opts.Now()
	items := make([]core.MediaItem, len(atts))
	for i, att := range atts {
		items[i] = core.MediaItem{Ref: att.Ref, ContentType: att.ContentType, ReceivedAt: now}
	}
	if c.store == nil || len(atts) == 0 {
		return items
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Parallelism)
	for i, att := range atts {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, c.opts.Timeout)
			defer cancel()

			start := time.Now()
			ref, err := c.store.Persist(callCtx, identity, att)
			if err != nil {
				c.opts.Logger.Warn("media persist failed, keeping original ref",
					"identity", identity, "ref", att.Ref, "duration", time.Since(start), "error", err)
				return nil
			}
			items[i].Ref = ref
			return nil
		})
	}
	_ = g.Wait()

	return items
}

// Collect resolves attachments, appends them to the session's media in
// arrival order and returns the cumulative count.
func (c *Collector) Collect(ctx context.Context, s *core.Session, atts []core.Attachment) int {
	return s.AppendMedia(c.Resolve(ctx, s.Identity, atts)...)
}

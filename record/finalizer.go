// Package record turns completed intake sessions into persisted records.
package record

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/intakemesh/core"
	"github.com/hupe1980/intakemesh/flow"
	"github.com/hupe1980/intakemesh/logging"
	"github.com/hupe1980/intakemesh/ticket"
)

// Uncategorized is the classification used when the classifier is absent
// or fails.
const Uncategorized = "Uncategorized"

// ActionCreated is the action of a record's first timeline entry.
const ActionCreated = "Created"

// Options configures a Finalizer.
type Options struct {
	Classifier      core.Classifier
	ClassifyTimeout time.Duration
	// Notifier delivers the confirmation and the admin alert. Wrap it in
	// notify.Retrying to retry transient failures.
	Notifier core.Notifier
	// AdminIdentity receives an alert for every new record when set.
	AdminIdentity string
	// IDAttempts bounds ticket draws when an id is already taken.
	IDAttempts int
	Logger     logging.Logger
	Now        func() time.Time
}

// Result is the outcome of a successful finalization.
type Result struct {
	Record core.IntakeRecord
	// Confirmation is the rendered confirmation text.
	Confirmation string
	// Delivered reports whether the confirmation was pushed to the user.
	Delivered bool
}

// Finalizer builds, numbers and persists records. It never touches the
// session store; callers clear the session only after Finalize succeeds.
type Finalizer struct {
	graph *flow.Graph
	repo  core.RecordRepository
	seq   *ticket.Sequencer
	opts  Options
}

// NewFinalizer creates a finalizer.
func NewFinalizer(graph *flow.Graph, repo core.RecordRepository, seq *ticket.Sequencer, optFns ...func(o *Options)) *Finalizer {
	opts := Options{
		ClassifyTimeout: 8 * time.Second,
		IDAttempts:      3,
		Logger:          logging.NoOpLogger{},
		Now:             time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.IDAttempts < 1 {
		opts.IDAttempts = 1
	}
	return &Finalizer{graph: graph, repo: repo, seq: seq, opts: opts}
}

// Finalize persists the session's answers as a new record of the flow's
// record type. Persistence failures wrap core.ErrPersistence and leave no
// record behind.
func (f *Finalizer) Finalize(ctx context.Context, fl *flow.Flow, s *core.Session) (Result, error) {
	if !fl.Creates() {
		return Result{}, fmt.Errorf("flow %q does not create records", fl.ID)
	}

	rec := f.Build(ctx, fl, s)

	if err := f.persist(ctx, &rec); err != nil {
		return Result{}, err
	}

	f.opts.Logger.Info("record created",
		"ticket", rec.TicketID, "record_type", rec.RecordType, "identity", rec.Identity, "media", len(rec.Media))

	res := Result{Record: rec}
	res.Confirmation = f.render(f.graph.Messages.Confirmation, rec, fmt.Sprintf("Reference ID: %s", rec.TicketID))
	res.Delivered = f.send(ctx, rec.Identity, res.Confirmation, "confirmation")

	if f.opts.AdminIdentity != "" {
		alert := f.render(f.graph.Messages.AdminAlert, rec, fmt.Sprintf("New %s: %s", rec.RecordType, rec.TicketID))
		f.send(ctx, f.opts.AdminIdentity, alert, "admin alert")
	}

	return res, nil
}

// Build assembles the record without a ticket id.
func (f *Finalizer) Build(ctx context.Context, fl *flow.Flow, s *core.Session) core.IntakeRecord {
	now := f.opts.Now()

	fields := make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		fields[k] = v
	}

	rec := core.IntakeRecord{
		RecordType:     fl.RecordType,
		FlowID:         fl.ID,
		Identity:       s.Identity,
		Category:       fl.Title,
		Classification: Uncategorized,
		Fields:         fields,
		Media:          append([]core.MediaItem(nil), s.Media...),
		Status:         fl.InitialStatus,
		Priority:       core.PriorityMedium,
		Timeline: []core.TimelineEntry{{
			Action:      ActionCreated,
			Description: fmt.Sprintf("%s submitted", fl.Title),
			Actor:       core.ActorUser,
			Timestamp:   now,
		}},
		Notes:     []core.Note{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if step, ok := fl.StepWithRole(flow.RoleCategory); ok && fields[step.Key] != "" {
		rec.Category = fields[step.Key]
	}
	for _, step := range fl.Steps {
		if step.Role == flow.RoleSubCategory && fields[step.Key] != "" {
			rec.SubCategory = fields[step.Key]
			break
		}
	}
	if step, ok := fl.StepWithRole(flow.RoleDescription); ok {
		rec.Classification = f.classify(ctx, fields[step.Key])
	}

	return rec
}

func (f *Finalizer) classify(ctx context.Context, text string) string {
	if f.opts.Classifier == nil || text == "" {
		return Uncategorized
	}

	ctx, cancel := context.WithTimeout(ctx, f.opts.ClassifyTimeout)
	defer cancel()

	label, err := f.opts.Classifier.Classify(ctx, text)
	if err != nil || label == "" {
		f.opts.Logger.Warn("classification unavailable", "error", err)
		return Uncategorized
	}
	return label
}

func (f *Finalizer) persist(ctx context.Context, rec *core.IntakeRecord) error {
	var lastErr error
	for attempt := 0; attempt < f.opts.IDAttempts; attempt++ {
		id, err := f.seq.NextID(ctx, rec.RecordType)
		if err != nil {
			return fmt.Errorf("%w: %w", core.ErrPersistence, err)
		}
		rec.TicketID = id

		err = f.repo.Create(ctx, *rec)
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, core.ErrDuplicate) {
			break
		}
		f.opts.Logger.Warn("ticket id already taken, drawing another", "ticket", id)
	}
	rec.TicketID = ""
	return fmt.Errorf("%w: %w", core.ErrPersistence, lastErr)
}

func (f *Finalizer) render(tmpl string, rec core.IntakeRecord, fallback string) string {
	if tmpl == "" {
		return fallback
	}
	out, err := flow.Render(tmpl, flow.PromptData{Record: &rec})
	if err != nil {
		f.opts.Logger.Error("render message failed", "ticket", rec.TicketID, "error", err)
		return fallback
	}
	return out
}

// send reports whether the message was delivered. Failures are logged and
// swallowed.
func (f *Finalizer) send(ctx context.Context, to, body, kind string) bool {
	if f.opts.Notifier == nil {
		return false
	}
	if err := f.opts.Notifier.Send(ctx, core.Message{To: to, Body: body}); err != nil {
		f.opts.Logger.Warn("notification failed", "kind", kind, "to", to, "error", err)
		return false
	}
	return true
}

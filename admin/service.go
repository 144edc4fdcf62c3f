// Package admin implements the administrative operations on intake records:
// listing, lookup, status/priority/assignee changes, notes and statistics.
// Status changes and new notes are pushed to the record's identity.
package admin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/intakemesh/core"
	"github.com/hupe1980/intakemesh/flow"
	"github.com/hupe1980/intakemesh/logging"
)

// Timeline actions appended by administrative changes.
const (
	ActionStatusUpdated   = "Status Updated"
	ActionNoteAdded       = "Note Added"
	ActionAssigned        = "Assigned"
	ActionPriorityUpdated = "Priority Updated"
	ActionMediaSent       = "Media Sent"
)

// DefaultPageSize bounds listings without an explicit limit.
const DefaultPageSize = 50

// Patch is a partial record update. Nil fields are left unchanged.
type Patch struct {
	Status     *core.Status   `json:"status,omitempty"`
	Note       *string        `json:"note,omitempty"`
	AssignedTo *string        `json:"assignedTo,omitempty"`
	Priority   *core.Priority `json:"priority,omitempty"`
	Actor      string         `json:"actor,omitempty"`
}

// Stats summarizes the record store.
type Stats struct {
	Total    int                 `json:"total"`
	ByStatus map[core.Status]int `json:"by_status"`
}

// Options configures a Service.
type Options struct {
	Notifier core.Notifier
	// Linker, when set, attaches temporary download links to media on Get.
	Linker MediaLinker
	// LinkTTL is the lifetime of those links.
	LinkTTL time.Duration
	// UpdateTemplate renders the user push; defaults to the graph's
	// status_update message.
	UpdateTemplate string
	Logger         logging.Logger
	Now            func() time.Time
}

// MediaLinker issues temporary download links for stored media references.
type MediaLinker interface {
	PresignGet(ctx context.Context, ref string, ttl time.Duration) (string, error)
}

// Service exposes the administrative operations.
type Service struct {
	repo core.RecordRepository
	opts Options
}

// NewService creates an admin service.
func NewService(repo core.RecordRepository, optFns ...func(o *Options)) *Service {
	opts := Options{
		LinkTTL: 15 * time.Minute,
		Logger:  logging.NoOpLogger{},
		Now:     time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Service{repo: repo, opts: opts}
}

// List returns records matching filter, newest first.
func (s *Service) List(ctx context.Context, filter core.RecordFilter) ([]core.IntakeRecord, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", core.ErrValidation, filter.Status)
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

// Get returns one record by ticket id.
func (s *Service) Get(ctx context.Context, ticketID string) (core.IntakeRecord, error) {
	rec, err := s.repo.FindByTicket(ctx, strings.ToUpper(strings.TrimSpace(ticketID)))
	if err != nil {
		return core.IntakeRecord{}, err
	}
	s.link(ctx, rec.Media)
	return rec, nil
}

func (s *Service) link(ctx context.Context, items []core.MediaItem) {
	if s.opts.Linker == nil {
		return
	}
	for i := range items {
		url, err := s.opts.Linker.PresignGet(ctx, items[i].Ref, s.opts.LinkTTL)
		if err != nil {
			s.opts.Logger.Debug("media link unavailable", "ref", items[i].Ref, "error", err)
			continue
		}
		items[i].URL = url
	}
}

// Patch applies p to the record, appends timeline entries for every change
// and notifies the record identity when the status changed or a note was
// added.
func (s *Service) Patch(ctx context.Context, ticketID string, p Patch) (core.IntakeRecord, error) {
	if err := p.validate(); err != nil {
		return core.IntakeRecord{}, err
	}

	actor := p.Actor
	if actor == "" {
		actor = core.ActorAdmin
	}

	var (
		statusChanged bool
		note          string
	)
	rec, err := s.repo.Update(ctx, strings.ToUpper(strings.TrimSpace(ticketID)), func(r *core.IntakeRecord) error {
		now := s.opts.Now()
		entry := func(action, desc string) {
			r.Timeline = append(r.Timeline, core.TimelineEntry{Action: action, Description: desc, Actor: actor, Timestamp: now})
		}

		if p.Status != nil && *p.Status != r.Status {
			entry(ActionStatusUpdated, fmt.Sprintf("Status changed from %s to %s", r.Status, *p.Status))
			r.Status = *p.Status
			statusChanged = true
		}
		if p.Priority != nil && *p.Priority != r.Priority {
			entry(ActionPriorityUpdated, fmt.Sprintf("Priority changed to %s", *p.Priority))
			r.Priority = *p.Priority
		}
		if p.AssignedTo != nil && *p.AssignedTo != r.AssignedTo {
			entry(ActionAssigned, fmt.Sprintf("Assigned to %s", *p.AssignedTo))
			r.AssignedTo = *p.AssignedTo
		}
		if p.Note != nil {
			note = strings.TrimSpace(*p.Note)
			r.Notes = append(r.Notes, core.Note{Content: note, Actor: actor, Timestamp: now})
			entry(ActionNoteAdded, note)
		}
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		return core.IntakeRecord{}, err
	}

	if statusChanged || note != "" {
		s.notify(ctx, rec, note)
	}
	return rec, nil
}

// AddNote appends a note and notifies the record identity.
func (s *Service) AddNote(ctx context.Context, ticketID, content, actor string) (core.IntakeRecord, error) {
	return s.Patch(ctx, ticketID, Patch{Note: &content, Actor: actor})
}

// SendMedia pushes media to the record identity and records it on the
// timeline. Unlike status updates the send is not best effort: a delivery
// failure is returned and nothing is recorded.
func (s *Service) SendMedia(ctx context.Context, ticketID, caption string, urls []string, actor string) (core.IntakeRecord, error) {
	if len(urls) == 0 {
		return core.IntakeRecord{}, fmt.Errorf("%w: no media urls", core.ErrValidation)
	}
	if s.opts.Notifier == nil {
		return core.IntakeRecord{}, fmt.Errorf("%w: no notifier configured", core.ErrCollaboratorUnavailable)
	}

	rec, err := s.Get(ctx, ticketID)
	if err != nil {
		return core.IntakeRecord{}, err
	}
	if err := s.opts.Notifier.Send(ctx, core.Message{To: rec.Identity, Body: caption, MediaURLs: urls}); err != nil {
		return core.IntakeRecord{}, fmt.Errorf("%w: send media: %w", core.ErrCollaboratorUnavailable, err)
	}

	if actor == "" {
		actor = core.ActorAdmin
	}
	return s.repo.Update(ctx, rec.TicketID, func(r *core.IntakeRecord) error {
		now := s.opts.Now()
		r.Timeline = append(r.Timeline, core.TimelineEntry{
			Action:      ActionMediaSent,
			Description: fmt.Sprintf("%d file(s) sent to the user", len(urls)),
			Actor:       actor,
			Timestamp:   now,
		})
		r.UpdatedAt = now
		return nil
	})
}

// Stats counts records per status.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{ByStatus: counts}
	for _, n := range counts {
		st.Total += n
	}
	return st, nil
}

func (p Patch) validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", core.ErrValidation, *p.Status)
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", core.ErrValidation, *p.Priority)
	}
	if p.Note != nil && strings.TrimSpace(*p.Note) == "" {
		return fmt.Errorf("%w: empty note", core.ErrValidation)
	}
	if p.Status == nil && p.Priority == nil && p.AssignedTo == nil && p.Note == nil {
		return fmt.Errorf("%w: empty patch", core.ErrValidation)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, rec core.IntakeRecord, note string) {
	if s.opts.Notifier == nil || rec.Identity == "" {
		return
	}

	body := fmt.Sprintf("Update on %s\n\nStatus: %s", rec.TicketID, rec.Status)
	if note != "" {
		body += "\n\n" + note
	}
	if s.opts.UpdateTemplate != "" {
		out, err := flow.Render(s.opts.UpdateTemplate, flow.PromptData{Record: &rec, Note: note})
		if err != nil {
			s.opts.Logger.Error("render status update failed", "ticket", rec.TicketID, "error", err)
		} else {
			body = out
		}
	}

	if err := s.opts.Notifier.Send(ctx, core.Message{To: rec.Identity, Body: body}); err != nil {
		s.opts.Logger.Warn("status update notification failed", "ticket", rec.TicketID, "error", err)
	}
}

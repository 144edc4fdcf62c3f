package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/intakemesh/assist"
	"github.com/hupe1980/intakemesh/core"
	"github.com/hupe1980/intakemesh/flow"
	"github.com/hupe1980/intakemesh/logging"
	"github.com/hupe1980/intakemesh/media"
	"github.com/hupe1980/intakemesh/memory"
	"github.com/hupe1980/intakemesh/record"
	"github.com/hupe1980/intakemesh/session"
	"github.com/hupe1980/intakemesh/ticket"
)

// Options configures an Engine. Every collaborator has an in-memory default
// suitable for development and tests.
type Options struct {
	// Sessions stores dialogue positions and serializes turns per identity.
	Sessions core.SessionStore

	// Idempotency de-duplicates redelivered transport messages.
	Idempotency core.IdempotencyStore

	// Collector resolves attachments to durable media references.
	Collector *media.Collector

	// Records is used for status lookups and, when Finalizer is nil, by the
	// default finalizer.
	Records core.RecordRepository

	// Sequencer recognises ticket ids and numbers new records.
	Sequencer *ticket.Sequencer

	// Finalizer persists completed record flows.
	Finalizer *record.Finalizer

	// Assistant answers chat questions.
	Assistant     core.Assistant
	AssistTimeout time.Duration

	// Notifier pushes replies when PushReplies is set.
	Notifier    core.Notifier
	PushReplies bool

	// StatusTimeline is the number of timeline entries shown by a lookup.
	StatusTimeline int

	Logger logging.Logger
	Now    func() time.Time
}

// Engine is the dialogue state machine. It is safe for concurrent use;
// turns of one identity are serialized, distinct identities run in
// parallel.
type Engine struct {
	graph *flow.Graph
	opts  Options
}

// outcome is the result of dispatching one turn.
type outcome struct {
	text      string
	ticket    string
	delivered bool
}

// New creates an engine over a validated step graph.
//
// Example:
//
//	g, _ := flow.Default()
//	e := engine.New(g, func(o *engine.Options) {
//	    o.Sessions = store
//	    o.Records = store
//	})
//	reply := e.HandleTurn(ctx, turn)
func New(graph *flow.Graph, optFns ...func(o *Options)) *Engine {
	opts := Options{
		AssistTimeout:  15 * time.Second,
		StatusTimeline: 3,
		Logger:         logging.NoOpLogger{},
		Now:            time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Sessions == nil {
		opts.Sessions = session.NewInMemoryStore()
	}
	if opts.Idempotency == nil {
		opts.Idempotency = memory.NewIdempotencyStore(0)
	}
	if opts.Collector == nil {
		opts.Collector = media.NewCollector(nil)
	}
	if opts.Records == nil {
		opts.Records = memory.NewInMemoryStore()
	}
	if opts.Sequencer == nil {
		opts.Sequencer = ticket.NewSequencer(ticket.NewMemoryCounter(), graph.RecordTypes)
	}
	if opts.Finalizer == nil {
		opts.Finalizer = record.NewFinalizer(graph, opts.Records, opts.Sequencer, func(o *record.Options) {
			o.Notifier = opts.Notifier
			o.Logger = opts.Logger
			o.Now = opts.Now
		})
	}
	if opts.Assistant == nil {
		opts.Assistant = assist.Unavailable{}
	}

	return &Engine{graph: graph, opts: opts}
}

// HandleTurn processes one inbound turn and always returns a reply.
func (e *Engine) HandleTurn(ctx context.Context, turn core.Turn) (reply core.Reply) {
	start := time.Now()
	reply = core.Reply{Identity: turn.Identity}

	var (
		flowID, step string
		turnErr      error
	)
	defer func() {
		if r := recover(); r != nil {
			turnErr = fmt.Errorf("panic: %v", r)
			e.opts.Logger.Error("turn panicked", "identity", turn.Identity, "panic", r, "stack", string(debug.Stack()))
			reply = core.Reply{Identity: turn.Identity, Text: e.graph.Messages.Apology}
		}
		e.logTurn(turn.Identity, flowID, step, time.Since(start), turnErr)
	}()

	if turn.Identity == "" {
		turnErr = errors.New("turn without identity")
		reply.Text = e.graph.Messages.Apology
		return reply
	}

	unlock, err := e.opts.Sessions.Lock(ctx, turn.Identity)
	if err != nil {
		turnErr = fmt.Errorf("lock session: %w", err)
		reply.Text = e.graph.Messages.Apology
		return reply
	}
	defer unlock()

	if turn.MessageID != "" {
		dup, err := e.opts.Idempotency.MarkProcessed(ctx, turn.MessageID)
		if err != nil {
			e.opts.Logger.Warn("idempotency check failed, processing turn", "identity", turn.Identity, "message_id", turn.MessageID, "error", err)
		} else if dup {
			e.opts.Logger.Info("duplicate message ignored", "identity", turn.Identity, "message_id", turn.MessageID)
			reply.Text = e.graph.Messages.Duplicate
			return reply
		}
	}

	s, reset, err := e.loadSession(ctx, turn.Identity)
	if err != nil {
		turnErr = fmt.Errorf("load session: %w", err)
		reply.Text = e.graph.Messages.Apology
		return reply
	}

	var out outcome
	if reset {
		out = e.say(e.graph.Menu.Prompt)
	} else {
		out, err = e.dispatch(ctx, s, turn)
	}
	flowID, step = s.FlowID, s.StepKey
	if err != nil {
		turnErr = err
		reply.Text = e.graph.Messages.Apology
		return reply
	}

	if err := e.store(ctx, s); err != nil {
		if out.ticket == "" {
			turnErr = err
			reply.Text = e.graph.Messages.Apology
			return reply
		}
		// The record exists; a stale session only means the user lands on
		// the confirm step again.
		e.opts.Logger.Error("session update after finalization failed", "identity", turn.Identity, "ticket", out.ticket, "error", err)
	}

	reply.Text = out.text
	reply.TicketID = out.ticket
	reply.Delivered = out.delivered

	if e.opts.PushReplies && !reply.Delivered && e.opts.Notifier != nil {
		if err := e.opts.Notifier.Send(ctx, core.Message{To: turn.Identity, Body: reply.Text}); err != nil {
			e.opts.Logger.Warn("reply push failed, falling back to synchronous reply", "identity", turn.Identity, "error", err)
		} else {
			reply.Delivered = true
		}
	}

	return reply
}

// store persists the session, or clears it once the turn returned to WELCOME.
func (e *Engine) store(ctx context.Context, s *core.Session) error {
	if s.Idle() {
		if err := e.opts.Sessions.Clear(ctx, s.Identity); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
		return nil
	}
	if err := e.opts.Sessions.Save(ctx, s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (e *Engine) logTurn(identity, flowID, step string, dur time.Duration, err error) {
	if l, ok := e.opts.Logger.(interface {
		LogTurn(identity, flowID, step string, dur time.Duration, err error)
	}); ok {
		l.LogTurn(identity, flowID, step, dur, err)
		return
	}
	if err != nil {
		e.opts.Logger.Error("turn failed", "identity", identity, "flow", flowID, "step", step, "duration", dur, "error", err)
		return
	}
	e.opts.Logger.Debug("turn handled", "identity", identity, "flow", flowID, "step", step, "duration", dur)
}

// loadSession returns the identity's session, creating an idle one when
// absent. A session that cannot be decoded is cleared and replaced; reset
// reports that case.
func (e *Engine) loadSession(ctx context.Context, identity string) (s *core.Session, reset bool, err error) {
	s, err = e.opts.Sessions.CreateIfAbsent(ctx, identity)
	if !errors.Is(err, core.ErrSessionCorruption) {
		return s, false, err
	}

	e.opts.Logger.Error("corrupt session reset", "identity", identity, "error", err)
	if err := e.opts.Sessions.Clear(ctx, identity); err != nil {
		return nil, false, err
	}
	s, err = e.opts.Sessions.CreateIfAbsent(ctx, identity)
	return s, err == nil, err
}

// Package intakemesh assembles the conversational intake service: the step
// graph, dialogue engine, record finalizer, admin service and HTTP
// handlers. Most applications interact with this package by:
//  1. Creating a Mesh via New(), optionally overriding the in-memory stores
//  2. Feeding inbound turns to HandleTurn, or serving Handler() over HTTP
//  3. Managing records through Admin()
//
// All defaults are safe for local development and testing; production
// deployments supply durable stores, a notifier and a structured logger.
package intakemesh

import (
	"context"
	"net/http"
	"time"

	"github.com/hupe1980/intakemesh/admin"
	"github.com/hupe1980/intakemesh/core"
	"github.com/hupe1980/intakemesh/engine"
	"github.com/hupe1980/intakemesh/flow"
	"github.com/hupe1980/intakemesh/logging"
	"github.com/hupe1980/intakemesh/media"
	"github.com/hupe1980/intakemesh/memory"
	"github.com/hupe1980/intakemesh/record"
	"github.com/hupe1980/intakemesh/server"
	"github.com/hupe1980/intakemesh/session"
	"github.com/hupe1980/intakemesh/ticket"
)

// Options configures a Mesh. Unset stores default to in-memory
// implementations.
type Options struct {
	// Graph is the dialogue definition; defaults to the embedded one.
	Graph *flow.Graph

	Sessions    core.SessionStore
	Records     core.RecordRepository
	Idempotency core.IdempotencyStore
	Counter     ticket.Counter

	// Collaborators. Nil disables the feature with its fallback.
	MediaStore core.MediaStore
	Classifier core.Classifier
	Assistant  core.Assistant
	Notifier   core.Notifier

	// AdminIdentity receives an alert for every new record.
	AdminIdentity string
	// PushReplies delivers replies through Notifier.
	PushReplies bool

	ClassifyTimeout time.Duration
	AssistTimeout   time.Duration
	MediaTimeout    time.Duration

	Logger logging.Logger
}

// Mesh is the assembled service.
type Mesh struct {
	graph  *flow.Graph
	engine *engine.Engine
	admin  *admin.Service
}

// New assembles a Mesh.
func New(optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{
		ClassifyTimeout: 8 * time.Second,
		AssistTimeout:   15 * time.Second,
		MediaTimeout:    10 * time.Second,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Graph == nil {
		g, err := flow.Default()
		if err != nil {
			return nil, err
		}
		opts.Graph = g
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewInMemoryStore()
	}
	if opts.Records == nil {
		opts.Records = memory.NewInMemoryStore()
	}
	if opts.Idempotency == nil {
		opts.Idempotency = memory.NewIdempotencyStore(0)
	}
	if opts.Counter == nil {
		opts.Counter = ticket.NewMemoryCounter()
	}

	seq := ticket.NewSequencer(opts.Counter, opts.Graph.RecordTypes)

	finalizer := record.NewFinalizer(opts.Graph, opts.Records, seq, func(o *record.Options) {
		o.Classifier = opts.Classifier
		o.ClassifyTimeout = opts.ClassifyTimeout
		o.Notifier = opts.Notifier
		o.AdminIdentity = opts.AdminIdentity
		o.Logger = opts.Logger
	})

	collector := media.NewCollector(opts.MediaStore, func(o *media.Options) {
		o.Timeout = opts.MediaTimeout
		o.Logger = opts.Logger
	})

	eng := engine.New(opts.Graph, func(o *engine.Options) {
		o.Sessions = opts.Sessions
		o.Idempotency = opts.Idempotency
		o.Collector = collector
		o.Records = opts.Records
		o.Sequencer = seq
		o.Finalizer = finalizer
		o.Assistant = opts.Assistant
		o.AssistTimeout = opts.AssistTimeout
		o.Notifier = opts.Notifier
		o.PushReplies = opts.PushReplies
		o.Logger = opts.Logger
	})

	adm := admin.NewService(opts.Records, func(o *admin.Options) {
		o.Notifier = opts.Notifier
		o.UpdateTemplate = opts.Graph.Messages.StatusUpdate
		o.Logger = opts.Logger
		if linker, ok := opts.MediaStore.(admin.MediaLinker); ok {
			o.Linker = linker
		}
	})

	return &Mesh{graph: opts.Graph, engine: eng, admin: adm}, nil
}

// HandleTurn processes one inbound turn.
func (m *Mesh) HandleTurn(ctx context.Context, turn core.Turn) core.Reply {
	return m.engine.HandleTurn(ctx, turn)
}

// Graph returns the dialogue definition in use.
func (m *Mesh) Graph() *flow.Graph { return m.graph }

// Engine returns the dialogue engine.
func (m *Mesh) Engine() *engine.Engine { return m.engine }

// Admin returns the administrative service.
func (m *Mesh) Admin() *admin.Service { return m.admin }

// Handler returns the HTTP router serving the webhook and the admin API.
func (m *Mesh) Handler(optFns ...func(o *server.Options)) http.Handler {
	return server.NewRouter(server.NewHandler(m.engine, m.admin, optFns...))
}

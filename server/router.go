// Package server exposes the dialogue engine and the admin service over
// HTTP: a Twilio-compatible webhook and a JSON admin API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/hupe1980/intakemesh/admin"
	"github.com/hupe1980/intakemesh/core"
	"github.com/hupe1980/intakemesh/logging"
)

// TurnHandler processes one inbound turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, turn core.Turn) core.Reply
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the HTTP handlers.
type Options struct {
	// AuthToken enables X-Twilio-Signature verification. WebhookURL is the
	// signed URL; when empty it is rebuilt from the request.
	AuthToken  string
	WebhookURL string
	// AdminToken requires "Authorization: Bearer <token>" on /api routes.
	AdminToken string
	// TurnTimeout bounds one webhook turn independently of the request.
	TurnTimeout  time.Duration
	MaxBodyBytes int64
	Health       Pinger
	Logger       logging.Logger
	Now          func() time.Time
}

// Handler holds the HTTP endpoints.
type Handler struct {
	turns TurnHandler
	admin *admin.Service
	opts  Options
}

// NewHandler creates the endpoint set.
func NewHandler(turns TurnHandler, adminSvc *admin.Service, optFns ...func(o *Options)) *Handler {
	opts := Options{
		TurnTimeout:  30 * time.Second,
		MaxBodyBytes: 1 << 20,
		Logger:       logging.NoOpLogger{},
		Now:          time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Handler{turns: turns, admin: adminSvc, opts: opts}
}

// NewRouter wires the endpoints onto a ServeMux.
func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /webhook", h.WebhookStatus)
	mux.HandleFunc("POST /webhook", h.Webhook)

	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("GET /api/records", h.requireAdmin(h.ListRecords))
	mux.HandleFunc("GET /api/records/{ticket}", h.requireAdmin(h.GetRecord))
	mux.HandleFunc("PATCH /api/records/{ticket}", h.requireAdmin(h.PatchRecord))
	mux.HandleFunc("POST /api/records/{ticket}/notes", h.requireAdmin(h.AddNote))
	mux.HandleFunc("POST /api/records/{ticket}/media", h.requireAdmin(h.SendMedia))
	mux.HandleFunc("GET /api/stats", h.requireAdmin(h.Stats))

	return mux
}

// Health reports liveness and, when configured, backend reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok", "timestamp": h.opts.Now().UTC()}
	if h.opts.Health != nil {
		if err := h.opts.Health.Ping(r.Context()); err != nil {
			h.opts.Logger.Error("health check failed", "error", err)
			status["status"] = "degraded"
			status["error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	writeJSON(w, http.StatusOK, status)
}

package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/hupe1980/intakemesh/admin"
	"github.com/hupe1980/intakemesh/core"
)

type recordList struct {
	Count   int                 `json:"count"`
	Records []core.IntakeRecord `json:"records"`
}

type noteRequest struct {
	Content string `json:"content"`
	Actor   string `json:"actor"`
}

type mediaRequest struct {
	Caption string   `json:"caption"`
	URLs    []string `json:"urls"`
	Actor   string   `json:"actor"`
}

// ListRecords handles GET /api/records.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.RecordFilter{
		Status:     core.Status(q.Get("status")),
		Category:   q.Get("category"),
		RecordType: core.RecordType(q.Get("type")),
		Identity:   q.Get("identity"),
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, err)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, err)
		return
	}

	recs, err := h.admin.List(r.Context(), filter)
	if err != nil {
		h.logFailure("list records", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordList{Count: len(recs), Records: recs})
}

// GetRecord handles GET /api/records/{ticket}.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.admin.Get(r.Context(), r.PathValue("ticket"))
	if err != nil {
		h.logFailure("get record", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// PatchRecord handles PATCH /api/records/{ticket}.
func (h *Handler) PatchRecord(w http.ResponseWriter, r *http.Request) {
	var p admin.Patch
	if !h.decode(w, r, &p) {
		return
	}
	rec, err := h.admin.Patch(r.Context(), r.PathValue("ticket"), p)
	if err != nil {
		h.logFailure("patch record", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// AddNote handles POST /api/records/{ticket}/notes.
func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.admin.AddNote(r.Context(), r.PathValue("ticket"), req.Content, req.Actor)
	if err != nil {
		h.logFailure("add note", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// SendMedia handles POST /api/records/{ticket}/media.
func (h *Handler) SendMedia(w http.ResponseWriter, r *http.Request) {
	var req mediaRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.admin.SendMedia(r.Context(), r.PathValue("ticket"), req.Caption, req.URLs, req.Actor)
	if err != nil {
		h.logFailure("send media", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.admin.Stats(r.Context())
	if err != nil {
		h.logFailure("stats", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.opts.AdminToken != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.opts.AdminToken)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
		}
		next(w, r)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body: " + err.Error()})
		return false
	}
	return true
}

func (h *Handler) logFailure(op string, err error) {
	if statusFor(err) >= http.StatusInternalServerError {
		h.opts.Logger.Error("admin request failed", "operation", op, "error", err)
	}
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.Join(core.ErrValidation, errors.New("invalid integer "+strconv.Quote(v)))
	}
	return n, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrCollaboratorUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

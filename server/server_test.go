package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/intakemesh/admin"
	"github.com/hupe1980/intakemesh/core"
	"github.com/hupe1980/intakemesh/engine"
	"github.com/hupe1980/intakemesh/flow"
	"github.com/hupe1980/intakemesh/internal/testutil"
	"github.com/hupe1980/intakemesh/memory"
)

type turnFunc func(ctx context.Context, turn core.Turn) core.Reply

func (f turnFunc) HandleTurn(ctx context.Context, turn core.Turn) core.Reply { return f(ctx, turn) }

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fixture struct {
	router   http.Handler
	records  *memory.InMemoryStore
	notifier *testutil.RecordingNotifier
}

func newFixture(t *testing.T, turns TurnHandler, optFns ...func(o *Options)) *fixture {
	t.Helper()
	g, err := flow.Default()
	require.NoError(t, err)

	f := &fixture{records: memory.NewInMemoryStore(), notifier: &testutil.RecordingNotifier{}}
	if turns == nil {
		turns = engine.New(g, func(o *engine.Options) { o.Records = f.records })
	}
	svc := admin.NewService(f.records, func(o *admin.Options) {
		o.Notifier = f.notifier
		o.UpdateTemplate = g.Messages.StatusUpdate
	})
	f.router = NewRouter(NewHandler(turns, svc, optFns...))

	require.NoError(t, f.records.Create(context.Background(), core.IntakeRecord{
		TicketID:   "CYB000001",
		RecordType: core.RecordTypeReport,
		Identity:   "whatsapp:+911",
		Category:   "Investment",
		Status:     core.StatusReceived,
		Priority:   core.PriorityMedium,
		CreatedAt:  time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}))
	return f
}

func (f *fixture) do(method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func postForm(f *fixture, form url.Values, header map[string]string) *httptest.ResponseRecorder {
	h := map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	for k, v := range header {
		h[k] = v
	}
	return f.do(http.MethodPost, "/webhook", form.Encode(), h)
}

func TestWebhook_RepliesWithTwiML(t *testing.T) {
	f := newFixture(t, nil)

	rec := postForm(f, url.Values{"From": {"whatsapp:+919800000001"}, "Body": {"hi"}, "MessageSid": {"SM1"}}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "<?xml"))
	assert.Contains(t, rec.Body.String(), "<Response><Message>Hello! Welcome to the CyberCrime Help Service.")
}

func TestWebhook_DeliveredReplyIsEmpty(t *testing.T) {
	var got core.Turn
	f := newFixture(t, turnFunc(func(_ context.Context, turn core.Turn) core.Reply {
		got = turn
		return core.Reply{Identity: turn.Identity, Text: "pushed", Delivered: true}
	}))

	rec := postForm(f, url.Values{
		"From":              {"whatsapp:+1"},
		"NumMedia":          {"2"},
		"MediaUrl0":         {"https://api.twilio.com/m/0"},
		"MediaContentType0": {"image/png"},
		"MediaUrl1":         {"https://api.twilio.com/m/1"},
		"MediaContentType1": {"application/pdf"},
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<Response></Response>")
	assert.NotContains(t, rec.Body.String(), "pushed")

	require.Len(t, got.Attachments, 2)
	assert.Equal(t, "application/pdf", got.Attachments[1].ContentType)
	assert.False(t, got.ReceivedAt.IsZero())
}

func TestWebhook_Signature(t *testing.T) {
	const (
		token   = "auth-token"
		hookURL = "https://intake.example.org/webhook"
	)
	f := newFixture(t, nil, func(o *Options) {
		o.AuthToken = token
		o.WebhookURL = hookURL
	})
	form := url.Values{"From": {"whatsapp:+2"}, "Body": {"menu"}, "MessageSid": {"SM2"}}

	rec := postForm(f, form, map[string]string{SignatureHeader: Sign(token, hookURL, form)})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postForm(f, form, map[string]string{SignatureHeader: Sign("other", hookURL, form)})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = postForm(f, form, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhook_SignatureWithoutConfiguredURL(t *testing.T) {
	const token = "auth-token"
	f := newFixture(t, nil, func(o *Options) { o.AuthToken = token })
	form := url.Values{"From": {"whatsapp:+3"}, "NumMedia": {"1"}, "MediaUrl0": {"https://attacker.example/x"}}

	rec := postForm(f, form, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = postForm(f, form, map[string]string{SignatureHeader: Sign(token, "https://intake.example.org/webhook", form)})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = postForm(f, form, map[string]string{
		"X-Forwarded-Proto": "https",
		"X-Forwarded-Host":  "intake.example.org",
		SignatureHeader:     Sign(token, "https://intake.example.org/webhook", form),
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postForm(f, form, map[string]string{SignatureHeader: Sign(token, "http://example.com/webhook", form)})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifySignature_ParameterOrder(t *testing.T) {
	form := url.Values{"b": {"2"}, "a": {"1"}}
	sig := Sign("t", "https://x/webhook", form)

	reordered := url.Values{"a": {"1"}, "b": {"2"}}
	assert.NoError(t, VerifySignature("t", "https://x/webhook", reordered, sig))
	assert.ErrorIs(t, VerifySignature("t", "https://x/webhook", url.Values{"a": {"1"}}, sig), ErrInvalidSignature)
	assert.ErrorIs(t, VerifySignature("t", "https://x/webhook", form, ""), ErrMissingSignature)
}

func TestParseTurn(t *testing.T) {
	_, err := ParseTurn(url.Values{"Body": {"hi"}})
	assert.Error(t, err)

	_, err = ParseTurn(url.Values{"From": {"+1"}, "NumMedia": {"x"}})
	assert.Error(t, err)

	turn, err := ParseTurn(url.Values{"From": {" +1 "}, "Body": {" hello "}, "NumMedia": {"3"}, "MediaUrl0": {"u0"}, "MediaUrl2": {"u2"}})
	require.NoError(t, err)
	assert.Equal(t, "+1", turn.Identity)
	assert.Equal(t, "hello", turn.Body())
	require.Len(t, turn.Attachments, 2)
	assert.Equal(t, "u2", turn.Attachments[1].Ref)
}

func TestWebhookStatus(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/webhook", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "active")
}

func TestAdminAPI(t *testing.T) {
	f := newFixture(t, nil)

	t.Run("list", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/records?status=Received&limit=10", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var out recordList
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, 1, out.Count)
		assert.Equal(t, "CYB000001", out.Records[0].TicketID)
	})

	t.Run("list bad paging", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/records?limit=abc", "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/records/cyb000001", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"category":"Investment"`)

		rec = f.do(http.MethodGet, "/api/records/CYB000404", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("patch", func(t *testing.T) {
		rec := f.do(http.MethodPatch, "/api/records/CYB000001", `{"status":"Under Investigation","assignedTo":"officer-3"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var out core.IntakeRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, core.StatusUnderInvestigation, out.Status)
		assert.Equal(t, "officer-3", out.AssignedTo)
		assert.Len(t, f.notifier.To("whatsapp:+911"), 1)

		rec = f.do(http.MethodPatch, "/api/records/CYB000001", `{"status":"Lost"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = f.do(http.MethodPatch, "/api/records/CYB000001", `{"colour":"red"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("note", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/records/CYB000001/notes", `{"content":"Called the bank"}`, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), "Called the bank")
	})

	t.Run("media", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/records/CYB000001/media", `{"caption":"FIR copy","urls":["https://cdn/fir.pdf"]}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(http.MethodPost, "/api/records/CYB000001/media", `{"urls":[]}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("stats", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/api/stats", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var st admin.Stats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
		assert.Equal(t, 1, st.Total)
		assert.Equal(t, 1, st.ByStatus[core.StatusUnderInvestigation])
	})
}

func TestAdminAPI_Token(t *testing.T) {
	f := newFixture(t, nil, func(o *Options) { o.AdminToken = "s3cret" })

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/stats", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/stats", "", map[string]string{"Authorization": "Bearer nope"}).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/stats", "", map[string]string{"Authorization": "Bearer s3cret"}).Code)

	// Health stays public.
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/health", "", nil).Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil, func(o *Options) {
		o.Health = pingFunc(func(context.Context) error { return errors.New("database is locked") })
	})
	rec := f.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database is locked")
}

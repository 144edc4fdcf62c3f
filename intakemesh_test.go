package intakemesh

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/intakemesh/admin"
	"github.com/hupe1980/intakemesh/assist"
	"github.com/hupe1980/intakemesh/core"
	"github.com/hupe1980/intakemesh/internal/testutil"
	"github.com/hupe1980/intakemesh/memory"
)

func TestMesh_ReportLifecycle(t *testing.T) {
	records := memory.NewInMemoryStore()
	notifier := &testutil.RecordingNotifier{}

	mesh, err := New(func(o *Options) {
		o.Records = records
		o.Notifier = notifier
		o.Classifier = assist.StaticClassifier("Phishing")
		o.AdminIdentity = "whatsapp:+910000000000"
	})
	require.NoError(t, err)

	ctx := context.Background()
	const user = "whatsapp:+919811111111"
	inputs := []string{"1", "9", "Got a fake bank link", "skip", "skip", "Meera", "9876543210", "skip", "skip", "skip", "skip"}
	for _, in := range inputs {
		mesh.HandleTurn(ctx, testutil.NewTurn(user, in).Build())
	}
	reply := mesh.HandleTurn(ctx, testutil.NewTurn(user, "yes").Build())
	require.Equal(t, "CYB000001", reply.TicketID)

	rec, err := records.FindByTicket(ctx, "CYB000001")
	require.NoError(t, err)
	assert.Equal(t, "Phishing", rec.Classification)
	assert.Equal(t, "Other", rec.Category)

	assert.Len(t, notifier.To("whatsapp:+910000000000"), 1)

	status := core.StatusResolved
	_, err = mesh.Admin().Patch(ctx, "CYB000001", admin.Patch{Status: &status})
	require.NoError(t, err)

	userMsgs := notifier.To(user)
	require.Len(t, userMsgs, 2)
	assert.Contains(t, userMsgs[1].Body, "Status: Resolved")

	reply = mesh.HandleTurn(ctx, testutil.NewTurn(user, "STATUS CYB000001").Build())
	assert.Contains(t, reply.Text, "Status: Resolved")
}

func TestMesh_Handler(t *testing.T) {
	mesh, err := New()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mesh.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, mesh.Graph())
	assert.NotNil(t, mesh.Engine())
}

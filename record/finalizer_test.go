package record

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/intakemesh/core"
	"github.com/hupe1980/intakemesh/flow"
	"github.com/hupe1980/intakemesh/internal/testutil"
	"github.com/hupe1980/intakemesh/memory"
	"github.com/hupe1980/intakemesh/ticket"
)

type mockClassifier struct{ mock.Mock }

func (m *mockClassifier) Classify(ctx context.Context, text string) (string, error) {
	args := m.Called(ctx, text)
	return args.String(0), args.Error(1)
}

type failingRepo struct {
	core.RecordRepository
	err error
}

func (r failingRepo) Create(context.Context, core.IntakeRecord) error { return r.err }

func fixture(t *testing.T) (*flow.Graph, *ticket.Sequencer, *ticket.MemoryCounter) {
	t.Helper()
	g, err := flow.Default()
	require.NoError(t, err)
	counter := ticket.NewMemoryCounter()
	return g, ticket.NewSequencer(counter, g.RecordTypes), counter
}

func reportSession() *core.Session {
	return testutil.NewSessionBuilder("whatsapp:+919876543210").
		At("report", "confirm").
		Answer("category", "Financial Fraud").
		Answer("financial_type", "upi_fraud").
		Answer("description", "I lost 5000 rupees through a fake UPI request").
		Answer("name", "Asha").
		Answer("phone", "+919876543210").
		Media("mem://a/1", "mem://a/2").
		Build()
}

func TestFinalize_PersistsAndConfirms(t *testing.T) {
	ctx := context.Background()
	g, seq, counter := fixture(t)
	counter.Set(string(core.RecordTypeReport), 6)
	repo := memory.NewInMemoryStore()
	notifier := &testutil.RecordingNotifier{}
	classifier := &mockClassifier{}
	classifier.On("Classify", mock.Anything, "I lost 5000 rupees through a fake UPI request").Return("Financial Fraud", nil)
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	f := NewFinalizer(g, repo, seq, func(o *Options) {
		o.Classifier = classifier
		o.Notifier = notifier
		o.AdminIdentity = "whatsapp:+10000000000"
		o.Now = func() time.Time { return now }
	})

	fl, _ := g.Flow("report")
	sess := reportSession()
	res, err := f.Finalize(ctx, fl, sess)
	require.NoError(t, err)

	rec := res.Record
	assert.Equal(t, "CYB000007", rec.TicketID)
	assert.Equal(t, core.StatusReceived, rec.Status)
	assert.Equal(t, core.PriorityMedium, rec.Priority)
	assert.Equal(t, "Financial Fraud", rec.Category)
	assert.Equal(t, "upi_fraud", rec.SubCategory)
	assert.Equal(t, "Financial Fraud", rec.Classification)
	assert.Equal(t, sess.Answers, rec.Fields)
	require.Len(t, rec.Media, 2)
	assert.Equal(t, "mem://a/1", rec.Media[0].Ref)
	require.Len(t, rec.Timeline, 1)
	assert.Equal(t, ActionCreated, rec.Timeline[0].Action)
	assert.Equal(t, now, rec.CreatedAt)

	stored, err := repo.FindByTicket(ctx, "CYB000007")
	require.NoError(t, err)
	assert.Equal(t, rec.Fields, stored.Fields)

	assert.True(t, res.Delivered)
	assert.Contains(t, res.Confirmation, "CYB000007")
	userMsgs := notifier.To("whatsapp:+919876543210")
	require.Len(t, userMsgs, 1)
	assert.Equal(t, res.Confirmation, userMsgs[0].Body)
	adminMsgs := notifier.To("whatsapp:+10000000000")
	require.Len(t, adminMsgs, 1)
	assert.Contains(t, adminMsgs[0].Body, "NEW REPORT FILED")

	classifier.AssertExpectations(t)
}

func TestFinalize_ClassifierFailureFallsBack(t *testing.T) {
	g, seq, _ := fixture(t)
	classifier := &mockClassifier{}
	classifier.On("Classify", mock.Anything, mock.Anything).Return("", core.ErrCollaboratorUnavailable)

	f := NewFinalizer(g, memory.NewInMemoryStore(), seq, func(o *Options) { o.Classifier = classifier })
	fl, _ := g.Flow("report")

	res, err := f.Finalize(context.Background(), fl, reportSession())
	require.NoError(t, err)
	assert.Equal(t, Uncategorized, res.Record.Classification)
	assert.Equal(t, "CYB000001", res.Record.TicketID)
	assert.False(t, res.Delivered)
}

func TestFinalize_ComplaintUsesOwnSequence(t *testing.T) {
	g, seq, _ := fixture(t)
	f := NewFinalizer(g, memory.NewInMemoryStore(), seq)

	report, _ := g.Flow("report")
	_, err := f.Finalize(context.Background(), report, reportSession())
	require.NoError(t, err)

	unfreeze, _ := g.Flow("unfreeze")
	sess := testutil.NewSessionBuilder("+1").
		At("unfreeze", "confirm").
		Answer("account_number", "123456789012").
		Answer("bank_name", "SBI").
		Build()
	res, err := f.Finalize(context.Background(), unfreeze, sess)
	require.NoError(t, err)
	assert.Equal(t, "1930OD000001", res.Record.TicketID)
	assert.Equal(t, core.StatusRegistered, res.Record.Status)
	assert.Equal(t, core.RecordTypeComplaint, res.Record.RecordType)
	assert.Equal(t, unfreeze.Title, res.Record.Category)
	assert.Equal(t, Uncategorized, res.Record.Classification)
}

func TestFinalize_PersistenceFailure(t *testing.T) {
	g, seq, _ := fixture(t)
	notifier := &testutil.RecordingNotifier{}
	boom := errors.New("disk full")
	f := NewFinalizer(g, failingRepo{err: boom}, seq, func(o *Options) { o.Notifier = notifier })
	fl, _ := g.Flow("report")

	_, err := f.Finalize(context.Background(), fl, reportSession())
	assert.ErrorIs(t, err, core.ErrPersistence)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, notifier.Messages())
}

func TestFinalize_SkipsTakenTicketIDs(t *testing.T) {
	ctx := context.Background()
	g, seq, _ := fixture(t)
	repo := memory.NewInMemoryStore()
	require.NoError(t, repo.Create(ctx, core.IntakeRecord{TicketID: "CYB000001", Identity: "+9"}))

	f := NewFinalizer(g, repo, seq)
	fl, _ := g.Flow("report")

	res, err := f.Finalize(ctx, fl, reportSession())
	require.NoError(t, err)
	assert.Equal(t, "CYB000002", res.Record.TicketID)
}

func TestFinalize_ConfirmationFailureStillPersists(t *testing.T) {
	g, seq, _ := fixture(t)
	repo := memory.NewInMemoryStore()
	notifier := &testutil.RecordingNotifier{FailFirst: 1, Err: errors.New("twilio down")}
	f := NewFinalizer(g, repo, seq, func(o *Options) {
		o.Notifier = notifier
		o.AdminIdentity = "+admin"
	})
	fl, _ := g.Flow("report")

	res, err := f.Finalize(context.Background(), fl, reportSession())
	require.NoError(t, err)
	assert.False(t, res.Delivered)
	assert.NotEmpty(t, res.Confirmation)

	// the admin alert is independent of the failed confirmation
	assert.Len(t, notifier.To("+admin"), 1)

	_, err = repo.FindByTicket(context.Background(), res.Record.TicketID)
	require.NoError(t, err)
}

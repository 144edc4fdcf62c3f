package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/intakemesh/core"
)

var (
	_ core.Notifier = (*Twilio)(nil)
	_ core.Notifier = (*Retrying)(nil)
	_ core.Notifier = Log{}
	_ core.Notifier = Discard{}
)

func TestTwilioSend(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "tok", pass)
		assert.NoError(t, r.ParseForm())
		form = r.PostForm
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1"}`))
	}))
	defer srv.Close()

	tw := &Twilio{AccountSID: "AC123", AuthToken: "tok", From: "whatsapp:+14155238886", BaseURL: srv.URL, HTTP: srv.Client()}
	err := tw.Send(context.Background(), core.Message{
		To:        "+919876543210",
		Body:      "Report received",
		MediaURLs: []string{"https://m/1", "https://m/2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "whatsapp:+919876543210", form.Get("To"))
	assert.Equal(t, "whatsapp:+14155238886", form.Get("From"))
	assert.Equal(t, "Report received", form.Get("Body"))
	assert.Equal(t, []string{"https://m/1", "https://m/2"}, form["MediaUrl"])
}

func TestTwilioSendErrors(t *testing.T) {
	tw := &Twilio{}
	assert.Error(t, tw.Send(context.Background(), core.Message{To: "+1"}))

	tw = &Twilio{AccountSID: "AC1", AuthToken: "t", From: "+1"}
	assert.Error(t, tw.Send(context.Background(), core.Message{}))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`))
	}))
	defer srv.Close()

	tw = &Twilio{AccountSID: "AC1", AuthToken: "t", From: "+1", BaseURL: srv.URL, HTTP: srv.Client()}
	err := tw.Send(context.Background(), core.Message{To: "bad"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 21211, apiErr.Code)
	assert.False(t, apiErr.Retryable())
}

func fastRetry(o *RetryOptions) {
	o.InitialInterval = time.Millisecond
	o.MaxInterval = 2 * time.Millisecond
}

func TestRetryingRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	next := core.NotifierFunc(func(context.Context, core.Message) error {
		if calls.Add(1) == 1 {
			return &APIError{Status: http.StatusServiceUnavailable}
		}
		return nil
	})

	r := NewRetrying(next, fastRetry)
	require.NoError(t, r.Send(context.Background(), core.Message{To: "+1"}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetryingAtLeastTwoAttempts(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("network down")
	next := core.NotifierFunc(func(context.Context, core.Message) error {
		calls.Add(1)
		return boom
	})

	r := NewRetrying(next, fastRetry, func(o *RetryOptions) { o.MaxTries = 1 })
	err := r.Send(context.Background(), core.Message{To: "+1"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetryingStopsOnPermanentError(t *testing.T) {
	var calls atomic.Int32
	next := core.NotifierFunc(func(context.Context, core.Message) error {
		calls.Add(1)
		return &APIError{Status: http.StatusBadRequest, Message: "bad number"}
	})

	r := NewRetrying(next, fastRetry)
	err := r.Send(context.Background(), core.Message{To: "+1"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, int32(1), calls.Load())
}

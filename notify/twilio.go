package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hupe1980/intakemesh/core"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// APIError is a non-2xx answer from the messaging API.
type APIError struct {
	Status  int    `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio api error %d (code %d): %s", e.Status, e.Code, e.Message)
}

// Retryable reports whether resending may succeed.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Twilio sends messages through the Twilio Messages REST API.
type Twilio struct {
	AccountSID string
	AuthToken  string
	// From is the sender, e.g. "whatsapp:+14155238886".
	From    string
	BaseURL string
	HTTP    *http.Client
}

// Send posts one message. Recipients without a channel prefix inherit the
// prefix of From.
func (t *Twilio) Send(ctx context.Context, msg core.Message) error {
	if t.AccountSID == "" || t.AuthToken == "" {
		return errors.New("missing twilio credentials")
	}
	if t.From == "" {
		return errors.New("missing twilio sender")
	}
	if msg.To == "" {
		return errors.New("missing recipient")
	}

	client := t.HTTP
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	baseURL := t.BaseURL
	if baseURL == "" {
		baseURL = twilioBaseURL
	}

	form := url.Values{}
	form.Set("To", t.recipient(msg.To))
	form.Set("From", t.From)
	form.Set("Body", msg.Body)
	for _, m := range msg.MediaURLs {
		form.Add("MediaUrl", m)
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", strings.TrimRight(baseURL, "/"), url.PathEscape(t.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(t.AccountSID, t.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil
	}

	apiErr := &APIError{Status: res.StatusCode}
	if err := json.NewDecoder(io.LimitReader(res.Body, 64<<10)).Decode(apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = http.StatusText(res.StatusCode)
	}
	apiErr.Status = res.StatusCode
	return apiErr
}

func (t *Twilio) recipient(to string) string {
	if strings.Contains(to, ":") {
		return to
	}
	if channel, _, ok := strings.Cut(t.From, ":"); ok {
		return channel + ":" + to
	}
	return to
}

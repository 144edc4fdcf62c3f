package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/hupe1980/intakemesh/core"
)

// SignatureHeader carries the Twilio request signature.
const SignatureHeader = "X-Twilio-Signature"

var (
	ErrMissingSignature = errors.New("missing twilio signature")
	ErrInvalidSignature = errors.New("invalid twilio signature")
)

// maxMedia bounds NumMedia; Twilio delivers at most ten attachments.
const maxMedia = 10

type twiml struct {
	XMLName  xml.Name `xml:"Response"`
	Messages []string `xml:"Message"`
}

// WebhookStatus answers the provider's reachability probe.
func (h *Handler) WebhookStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("intake webhook active"))
}

// Webhook handles an inbound Twilio message and answers with TwiML.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid form body"})
		return
	}

	if h.opts.AuthToken != "" {
		signedURL := h.opts.WebhookURL
		if signedURL == "" {
			signedURL = requestURL(r)
		}
		if err := VerifySignature(h.opts.AuthToken, signedURL, r.PostForm, r.Header.Get(SignatureHeader)); err != nil {
			h.opts.Logger.Warn("webhook rejected", "error", err, "remote", r.RemoteAddr)
			writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
			return
		}
	}

	turn, err := ParseTurn(r.PostForm)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	turn.ReceivedAt = h.opts.Now()

	// A turn that started must finish even if the provider hangs up.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.opts.TurnTimeout)
	defer cancel()

	reply := h.turns.HandleTurn(ctx, turn)
	writeTwiML(w, reply)
}

// requestURL rebuilds the public URL of r, honoring proxy headers.
func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return scheme + "://" + host + r.URL.RequestURI()
}

// ParseTurn converts Twilio webhook form fields into a turn.
func ParseTurn(form url.Values) (core.Turn, error) {
	turn := core.Turn{
		MessageID: form.Get("MessageSid"),
		Identity:  strings.TrimSpace(form.Get("From")),
		Text:      form.Get("Body"),
	}
	if turn.Identity == "" {
		return core.Turn{}, errors.New("missing From")
	}

	n := 0
	if v := form.Get("NumMedia"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			return core.Turn{}, fmt.Errorf("invalid NumMedia %q", v)
		}
		n = min(parsed, maxMedia)
	}
	for i := 0; i < n; i++ {
		ref := form.Get(fmt.Sprintf("MediaUrl%d", i))
		if ref == "" {
			continue
		}
		turn.Attachments = append(turn.Attachments, core.Attachment{
			Ref:         ref,
			ContentType: form.Get(fmt.Sprintf("MediaContentType%d", i)),
		})
	}
	return turn, nil
}

// VerifySignature checks a Twilio X-Twilio-Signature: base64 HMAC-SHA1 over
// the webhook URL followed by the sorted POST parameters.
func VerifySignature(authToken, webhookURL string, form url.Values, signature string) error {
	if signature == "" {
		return ErrMissingSignature
	}
	expected := Sign(authToken, webhookURL, form)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign computes the Twilio signature for a request.
func Sign(authToken, webhookURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(webhookURL)
	for _, k := range keys {
		for _, v := range form[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	_, _ = mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func writeTwiML(w http.ResponseWriter, reply core.Reply) {
	var resp twiml
	if !reply.Delivered && reply.Text != "" {
		resp.Messages = []string{reply.Text}
	}
	out, err := xml.Marshal(resp)
	if err != nil {
		http.Error(w, "encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(out)
}

package core

import "context"

// Classifier maps free text to a category label. Best effort: callers fall
// back to a default label on error.
type Classifier interface {
	Classify(ctx context.Context, text string) (string, error)
}

// Assistant answers a free-form safety question. Best effort.
type Assistant interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Message is one outbound notification.
type Message struct {
	To        string   `json:"to"`
	Body      string   `json:"body"`
	MediaURLs []string `json:"media_urls,omitempty"`
}

// Notifier delivers outbound messages to an identity.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, msg Message) error

// Send implements Notifier.
func (f NotifierFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

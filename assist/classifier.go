package assist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/intakemesh/core"
	"github.com/hupe1980/intakemesh/logging"
	"github.com/hupe1980/intakemesh/model"
)

// Uncategorized is the classification used when no label can be produced.
const Uncategorized = "Uncategorized"

// DefaultLabels are the incident classes the classifier chooses from.
var DefaultLabels = []string{
	"Phishing", "Scam", "Financial Fraud", "Account Takeover",
	"Doxing", "Harassment", "Malware", "Other",
}

// ClassifierOptions configures a Classifier.
type ClassifierOptions struct {
	Labels  []string
	Timeout time.Duration
	Logger  logging.Logger
}

// Classifier maps report descriptions to one of a fixed label set using a
// language model.
type Classifier struct {
	model model.Model
	opts  ClassifierOptions
}

// NewClassifier creates a model backed classifier.
func NewClassifier(m model.Model, optFns ...func(o *ClassifierOptions)) *Classifier {
	opts := ClassifierOptions{
		Labels:  DefaultLabels,
		Timeout: 8 * time.Second,
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Classifier{model: m, opts: opts}
}

// Classify returns the label for text. Answers outside the label set map to
// Uncategorized; model failures wrap core.ErrCollaboratorUnavailable.
func (c *Classifier) Classify(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return Uncategorized, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	instructions := fmt.Sprintf(
		"Classify the following cyber incident into one of: %s.\nReturn only the category.",
		strings.Join(c.opts.Labels, ", "),
	)

	start := time.Now()
	resp, err := c.model.Generate(ctx, model.Request{
		Instructions: instructions,
		Messages:     []model.Message{{Role: model.RoleUser, Text: strings.TrimSpace(text)}},
		MaxTokens:    16,
	})
	if err != nil {
		c.opts.Logger.Warn("classifier call failed", "model", c.model.Info().Name, "duration", time.Since(start), "error", err)
		return "", fmt.Errorf("%w: classify: %v", core.ErrCollaboratorUnavailable, err)
	}

	return c.normalize(resp.Text), nil
}

// normalize keeps the first line up to the first period or comma and maps it
// onto the label set, case-insensitively.
func (c *Classifier) normalize(out string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	if i := strings.IndexAny(line, ".,"); i >= 0 {
		line = line[:i]
	}
	line = strings.Trim(strings.TrimSpace(line), `"'*`)
	for _, label := range c.opts.Labels {
		if strings.EqualFold(label, line) {
			return label
		}
	}
	return Uncategorized
}

// StaticClassifier always returns the same label. Used when no model is
// configured.
type StaticClassifier string

// Classify implements core.Classifier.
func (s StaticClassifier) Classify(context.Context, string) (string, error) {
	return string(s), nil
}

package assist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/intakemesh/core"
	"github.com/hupe1980/intakemesh/logging"
	"github.com/hupe1980/intakemesh/model"
)

// DefaultInstructions is the system prompt of the safety assistant.
const DefaultInstructions = `You are a helpful assistant for a cyber crime reporting helpline. You:
- provide cyber safety awareness and prevention tips
- explain common cyber crimes such as phishing, online fraud, identity theft and cyberbullying
- guide victims on how to report, including the 1930 helpline and cybercrime.gov.in
- offer reassurance, and never give legal advice.
Keep answers short enough for a chat message and actionable.`

// AssistantOptions configures an Assistant.
type AssistantOptions struct {
	Instructions string
	Timeout      time.Duration
	// MaxChars truncates long answers to fit one chat message.
	MaxChars int
	Logger   logging.Logger
}

// Assistant answers safety questions with a language model.
type Assistant struct {
	model model.Model
	opts  AssistantOptions
}

// NewAssistant creates a model backed assistant.
func NewAssistant(m model.Model, optFns ...func(o *AssistantOptions)) *Assistant {
	opts := AssistantOptions{
		Instructions: DefaultInstructions,
		Timeout:      15 * time.Second,
		MaxChars:     1500,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Assistant{model: m, opts: opts}
}

// Answer returns the model's answer to question.
func (a *Assistant) Answer(ctx context.Context, question string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := a.model.Generate(ctx, model.UserRequest(a.opts.Instructions, question))
	if err != nil {
		a.opts.Logger.Warn("assistant call failed", "model", a.model.Info().Name, "duration", time.Since(start), "error", err)
		return "", fmt.Errorf("%w: answer: %v", core.ErrCollaboratorUnavailable, err)
	}

	answer := strings.TrimSpace(resp.Text)
	if answer == "" {
		return "", fmt.Errorf("%w: empty answer", core.ErrCollaboratorUnavailable)
	}
	if a.opts.MaxChars > 0 && len([]rune(answer)) > a.opts.MaxChars {
		answer = string([]rune(answer)[:a.opts.MaxChars-3]) + "..."
	}
	return answer, nil
}

// ErrAssistantDisabled is returned by Unavailable.
var ErrAssistantDisabled = errors.New("assistant disabled")

// Unavailable is the Assistant used when no model is configured; callers
// reply with their fallback text.
type Unavailable struct{}

// Answer implements core.Assistant.
func (Unavailable) Answer(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: %w", core.ErrCollaboratorUnavailable, ErrAssistantDisabled)
}

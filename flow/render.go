package flow

import (
	"fmt"
	"strings"

	"github.com/hupe1980/intakemesh/core"
	"github.com/hupe1980/intakemesh/internal/util"
)

// PromptData is the template context for prompts and messages.
type PromptData struct {
	Answers    map[string]string
	Checklist  []string
	MediaCount int
	Summary    string
	Info       string
	Ticket     string
	Record     *core.IntakeRecord
	Note       string
	Timeline   []core.TimelineEntry
}

// Render renders a prompt or message template.
func Render(text string, data PromptData) (string, error) {
	return util.RenderTemplate(text, data)
}

// PromptData builds the template context for the session's current position.
func (f *Flow) PromptData(s *core.Session) PromptData {
	data := PromptData{
		Answers:    s.Answers,
		MediaCount: len(s.Media),
	}

	for _, step := range f.Steps {
		if step.Kind != KindChoice {
			continue
		}
		v, _ := s.Answer(step.Key)
		opt, ok := step.Option(v)
		if !ok {
			continue
		}
		if len(opt.Checklist) > 0 {
			data.Checklist = opt.Checklist
		}
		if opt.Info != "" {
			data.Info = opt.Info
		}
	}

	data.Summary = f.Summary(s)

	return data
}

// Summary lists the answers collected so far in step order.
func (f *Flow) Summary(s *core.Session) string {
	var b strings.Builder
	for _, step := range f.Steps {
		switch step.Kind {
		case KindConfirm, KindLookup, KindAsk:
			continue
		case KindMedia:
			if len(s.Media) > 0 {
				fmt.Fprintf(&b, "%s: %d file(s)\n", labelOf(step), len(s.Media))
			}
			continue
		}
		v, _ := s.Answer(step.Key)
		if v == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", labelOf(step), v)
	}
	return strings.TrimRight(b.String(), "\n")
}

func labelOf(s *Step) string {
	if s.Label != "" {
		return s.Label
	}
	return s.Key
}

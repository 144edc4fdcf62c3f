package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/hupe1980/intakemesh/core"
	"github.com/hupe1980/intakemesh/flow"
)

// Keyword sets, compared after flow.Normalize.
var (
	resetCommands = map[string]bool{"menu": true, "cancel": true, "reset": true, "restart": true}
	greetings     = map[string]bool{"hi": true, "hello": true, "hey": true, "hola": true, "namaste": true, "start": true}
	skipWords     = map[string]bool{"skip": true, "none": true}
	doneWords     = map[string]bool{"done": true, "submit": true, "finish": true, "finished": true}
	yesWords      = map[string]bool{"yes": true, "y": true, "confirm": true, "submit": true}
	noWords       = map[string]bool{"no": true, "n": true, "cancel": true}
)

const helpCommand = "help"

func (e *Engine) dispatch(ctx context.Context, s *core.Session, turn core.Turn) (outcome, error) {
	body := turn.Body()
	cmd := flow.Normalize(body)

	if resetCommands[cmd] {
		active := !s.Idle()
		s.Reset()
		if cmd == "cancel" && active {
			return e.say(e.graph.Messages.Cancelled, e.graph.Menu.Prompt), nil
		}
		return e.say(e.graph.Menu.Prompt), nil
	}

	if s.Idle() {
		return e.welcome(ctx, s, turn)
	}

	fl, step, err := e.graph.Step(s.FlowID, s.StepKey)
	if err != nil {
		e.opts.Logger.Error("session reset", "identity", s.Identity, "flow", s.FlowID, "step", s.StepKey, "error", err)
		s.Reset()
		return e.say(e.graph.Menu.Prompt), nil
	}

	if cmd == helpCommand {
		return e.say(e.helpText(), e.prompt(fl, step, s)), nil
	}

	return e.handleStep(ctx, s, fl, step, turn)
}

// welcome handles input at the root state. Attachments are never dropped
// silently: they start intake, join the started flow, or are reported as
// ignored.
func (e *Engine) welcome(ctx context.Context, s *core.Session, turn core.Turn) (outcome, error) {
	body := turn.Body()
	cmd := flow.Normalize(body)

	switch {
	case body == "" && !turn.HasMedia():
		return e.say(e.graph.Menu.Prompt), nil
	case greetings[cmd]:
		if turn.HasMedia() {
			if out, ok := e.mediaFirst(ctx, s, turn); ok {
				return out, nil
			}
		}
		return e.ignoredMedia(turn, e.say(e.graph.Menu.Prompt)), nil
	}

	if id, ok := oneShotStatus(body); ok {
		out, err := e.lookup(ctx, id)
		return e.ignoredMedia(turn, out), err
	}

	if entry, ok := e.graph.MatchMenu(body); ok {
		if entry.Reply != "" {
			return e.ignoredMedia(turn, e.say(entry.Reply)), nil
		}
		fl, ok := e.graph.Flow(entry.Flow)
		if !ok {
			return outcome{}, errors.New("menu entry references unknown flow " + entry.Flow)
		}
		s.Start(fl.ID, fl.Start)
		first, _ := fl.Step(fl.Start)
		if turn.HasMedia() {
			if _, ok := fl.MediaStep(); ok {
				e.opts.Collector.Collect(ctx, s, turn.Attachments)
				return e.say(e.render(e.graph.Messages.MediaReceived, fl.PromptData(s)), e.prompt(fl, first, s)), nil
			}
		}
		return e.ignoredMedia(turn, e.say(e.prompt(fl, first, s))), nil
	}

	if turn.HasMedia() {
		if out, ok := e.mediaFirst(ctx, s, turn); ok {
			return out, nil
		}
	}

	return e.ignoredMedia(turn, e.say(e.graph.Messages.UnknownCommand, e.graph.Menu.Prompt)), nil
}

// ignoredMedia prefixes out with the media-ignored notice when the turn
// carried attachments that were not collected.
func (e *Engine) ignoredMedia(turn core.Turn, out outcome) outcome {
	if !turn.HasMedia() {
		return out
	}
	out.text = e.say(e.graph.Messages.MediaIgnored, out.text).text
	return out
}

// mediaFirst starts the media flow at its media step, remembering the flow
// start so field collection resumes there.
func (e *Engine) mediaFirst(ctx context.Context, s *core.Session, turn core.Turn) (outcome, bool) {
	fl, ok := e.graph.Flow(e.graph.MediaFlow)
	if !ok {
		return outcome{}, false
	}
	step, ok := fl.MediaStep()
	if !ok {
		return outcome{}, false
	}

	s.Start(fl.ID, step.Key)
	s.ResumeStep = fl.Start
	e.opts.Collector.Collect(ctx, s, turn.Attachments)

	return e.say(e.render(e.graph.Messages.MediaReceived, fl.PromptData(s))), true
}

func (e *Engine) handleStep(ctx context.Context, s *core.Session, fl *flow.Flow, step *flow.Step, turn core.Turn) (outcome, error) {
	// Evidence sent ahead of the media step is kept.
	if turn.HasMedia() && step.Kind != flow.KindMedia {
		if _, ok := fl.MediaStep(); ok {
			e.opts.Collector.Collect(ctx, s, turn.Attachments)
			if turn.Body() == "" {
				return e.say(e.render(e.graph.Messages.MediaReceived, fl.PromptData(s)), e.prompt(fl, step, s)), nil
			}
		}
	}

	switch step.Kind {
	case flow.KindChoice:
		return e.choice(s, fl, step, turn)
	case flow.KindText:
		return e.text(s, fl, step, turn)
	case flow.KindMedia:
		return e.media(ctx, s, fl, step, turn)
	case flow.KindConfirm:
		return e.confirm(ctx, s, fl, step, turn)
	case flow.KindLookup:
		return e.lookupStep(ctx, s, fl, step, turn)
	case flow.KindAsk:
		return e.ask(ctx, s, fl, step, turn)
	default:
		e.opts.Logger.Error("session reset", "identity", s.Identity, "flow", fl.ID, "step", step.Key, "kind", step.Kind)
		s.Reset()
		return e.say(e.graph.Menu.Prompt), nil
	}
}

func (e *Engine) choice(s *core.Session, fl *flow.Flow, step *flow.Step, turn core.Turn) (outcome, error) {
	opt, ok := step.Match(turn.Body())
	if !ok {
		return e.say(e.graph.Messages.InvalidChoice, e.prompt(fl, step, s)), nil
	}
	s.SetAnswer(step.Key, opt.Value)
	return e.advance(s, fl, step.NextFor(&opt), opt.Info)
}

func (e *Engine) text(s *core.Session, fl *flow.Flow, step *flow.Step, turn core.Turn) (outcome, error) {
	body := turn.Body()
	cmd := flow.Normalize(body)

	switch {
	case skipWords[cmd] && step.Optional:
		s.SetAnswer(step.Key, "")
		return e.advance(s, fl, step.Next, "")
	case body == "", skipWords[cmd]:
		return e.say(e.graph.Messages.Required, e.prompt(fl, step, s)), nil
	}

	if err := step.Validate(body); err != nil {
		var verr *flow.ValidationError
		if errors.As(err, &verr) {
			return e.say(verr.Message), nil
		}
		return outcome{}, err
	}

	s.SetAnswer(step.Key, body)
	return e.advance(s, fl, step.Next, "")
}

func (e *Engine) media(ctx context.Context, s *core.Session, fl *flow.Flow, step *flow.Step, turn core.Turn) (outcome, error) {
	cmd := flow.Normalize(turn.Body())

	if turn.HasMedia() {
		e.opts.Collector.Collect(ctx, s, turn.Attachments)
		if !doneWords[cmd] {
			return e.say(e.render(e.graph.Messages.MediaReceived, fl.PromptData(s))), nil
		}
	}

	switch {
	case doneWords[cmd], skipWords[cmd]:
		if s.ResumeStep != "" {
			return e.resume(s, fl)
		}
		return e.advance(s, fl, step.Next, "")
	case cmd == "":
		return e.say(e.graph.Messages.MediaHint), nil
	case s.ResumeStep != "":
		// Media-first intake: the text answers the flow's first step.
		if _, err := e.resume(s, fl); err != nil {
			return outcome{}, err
		}
		next, _ := fl.Step(s.StepKey)
		return e.handleStep(ctx, s, fl, next, core.Turn{Identity: turn.Identity, Text: turn.Text})
	default:
		return e.say(e.graph.Messages.MediaHint), nil
	}
}

// resume moves a media-first session to its remembered step.
func (e *Engine) resume(s *core.Session, fl *flow.Flow) (outcome, error) {
	key := s.ResumeStep
	s.ResumeStep = ""
	return e.advance(s, fl, key, "")
}

func (e *Engine) confirm(ctx context.Context, s *core.Session, fl *flow.Flow, step *flow.Step, turn core.Turn) (outcome, error) {
	cmd := flow.Normalize(turn.Body())

	switch {
	case noWords[cmd]:
		s.Reset()
		return e.say(e.graph.Messages.Cancelled, e.graph.Menu.Prompt), nil
	case !yesWords[cmd]:
		return e.say(e.graph.Messages.ConfirmHint), nil
	}

	res, err := e.opts.Finalizer.Finalize(ctx, fl, s)
	if err != nil {
		if errors.Is(err, core.ErrPersistence) {
			e.opts.Logger.Error("record not persisted, session kept", "identity", s.Identity, "flow", fl.ID, "error", err)
			return e.say(e.graph.Messages.PersistenceFailed), nil
		}
		return outcome{}, err
	}

	s.Reset()
	return outcome{text: res.Confirmation, ticket: res.Record.TicketID, delivered: res.Delivered}, nil
}

func (e *Engine) lookupStep(ctx context.Context, s *core.Session, fl *flow.Flow, step *flow.Step, turn core.Turn) (outcome, error) {
	body := turn.Body()
	if body == "" {
		return e.say(e.prompt(fl, step, s)), nil
	}
	if id, ok := oneShotStatus(body); ok {
		body = id
	}
	s.Reset()
	return e.lookup(ctx, body)
}

// lookup renders the status of a record. The session stays at WELCOME.
func (e *Engine) lookup(ctx context.Context, id string) (outcome, error) {
	id = strings.ToUpper(strings.Join(strings.Fields(id), ""))
	notFound := e.say(e.render(e.graph.Messages.NotFound, flow.PromptData{Ticket: id}))

	if !e.opts.Sequencer.LooksLikeTicket(id) {
		return notFound, nil
	}

	rec, err := e.opts.Records.FindByTicket(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return notFound, nil
	}
	if err != nil {
		return outcome{}, err
	}

	data := flow.PromptData{Ticket: id, Record: &rec, Timeline: rec.RecentTimeline(e.opts.StatusTimeline)}
	if n, ok := rec.LatestNote(); ok {
		data.Note = n.Content
	}
	return e.say(e.render(e.graph.Messages.Status, data)), nil
}

func (e *Engine) ask(ctx context.Context, s *core.Session, fl *flow.Flow, step *flow.Step, turn core.Turn) (outcome, error) {
	question := turn.Body()
	if question == "" {
		return e.say(e.prompt(fl, step, s)), nil
	}
	s.Reset()

	ctx, cancel := context.WithTimeout(ctx, e.opts.AssistTimeout)
	defer cancel()

	answer, err := e.opts.Assistant.Answer(ctx, question)
	if err != nil || strings.TrimSpace(answer) == "" {
		e.opts.Logger.Warn("assistant unavailable", "identity", s.Identity, "error", err)
		return e.say(e.graph.Messages.AssistantFallback, e.graph.Messages.Done), nil
	}
	return e.say(answer, e.graph.Messages.Done), nil
}

// advance moves to next, or ends an informational flow when next is empty.
func (e *Engine) advance(s *core.Session, fl *flow.Flow, next, info string) (outcome, error) {
	if next == "" {
		s.Reset()
		return e.say(info, e.graph.Messages.Done), nil
	}
	step, ok := fl.Step(next)
	if !ok {
		return outcome{}, errors.New("unknown successor " + next + " in flow " + fl.ID)
	}
	s.Advance(next)
	return e.say(e.prompt(fl, step, s)), nil
}

func (e *Engine) prompt(fl *flow.Flow, step *flow.Step, s *core.Session) string {
	return e.render(step.Prompt, fl.PromptData(s))
}

func (e *Engine) render(text string, data flow.PromptData) string {
	out, err := flow.Render(text, data)
	if err != nil {
		e.opts.Logger.Error("render failed", "error", err)
		return text
	}
	return out
}

// helpText returns the reply of the menu entry answering HELP, else the
// root menu.
func (e *Engine) helpText() string {
	if entry, ok := e.graph.MatchMenu(helpCommand); ok && entry.Reply != "" {
		return entry.Reply
	}
	return e.graph.Menu.Prompt
}

// say joins non-empty message parts with a blank line.
func (e *Engine) say(parts ...string) outcome {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return outcome{text: strings.Join(kept, "\n\n")}
}

// oneShotStatus parses "STATUS <ticket>".
func oneShotStatus(body string) (string, bool) {
	fields := strings.Fields(body)
	if len(fields) < 2 || flow.Normalize(fields[0]) != "status" {
		return "", false
	}
	return strings.Join(fields[1:], ""), true
}

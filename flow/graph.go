package flow

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/hupe1980/intakemesh/core"
	"github.com/hupe1980/intakemesh/ticket"
)

// StepKind selects how the engine evaluates input at a step.
type StepKind string

const (
	// KindChoice is a fixed-choice selection matched against option aliases.
	KindChoice StepKind = "choice"
	// KindText captures free text, optionally validated.
	KindText StepKind = "text"
	// KindMedia accumulates attachments until a completion keyword.
	KindMedia StepKind = "media"
	// KindConfirm is the terminal yes/no step of a record flow.
	KindConfirm StepKind = "confirm"
	// KindLookup reads a ticket id and shows the record status.
	KindLookup StepKind = "lookup"
	// KindAsk forwards a question to the assistant collaborator.
	KindAsk StepKind = "ask"
)

// Role marks steps whose answers become record metadata.
type Role string

const (
	RoleCategory    Role = "category"
	RoleSubCategory Role = "subcategory"
	RoleDescription Role = "description"
)

// Option is one allowed answer of a choice step.
type Option struct {
	Value   string   `yaml:"value"`
	Aliases []string `yaml:"aliases"`
	// Next overrides the step successor when this option is chosen (branch resolver).
	Next string `yaml:"next,omitempty"`
	// Checklist lists documents requested later in the flow's media step.
	Checklist []string `yaml:"checklist,omitempty"`
	// Info is guidance text shown with the following prompt.
	Info string `yaml:"info,omitempty"`
}

// Step is one prompt/validate/advance unit.
type Step struct {
	Key       string         `yaml:"key"`
	Kind      StepKind       `yaml:"kind"`
	Label     string         `yaml:"label"`
	Prompt    string         `yaml:"prompt"`
	Optional  bool           `yaml:"optional,omitempty"`
	Role      Role           `yaml:"role,omitempty"`
	Validator *ValidatorSpec `yaml:"validator,omitempty"`
	Options   []Option       `yaml:"options,omitempty"`
	Next      string         `yaml:"next,omitempty"`

	check   Validator
	aliases map[string]int
}

// Terminal reports whether the step is the confirm step of a record flow.
func (s *Step) Terminal() bool { return s.Kind == KindConfirm }

// Match resolves input against the option alias set. Option values match too.
func (s *Step) Match(input string) (Option, bool) {
	i, ok := s.aliases[Normalize(input)]
	if !ok {
		return Option{}, false
	}
	return s.Options[i], true
}

// Option returns the option whose value equals v.
func (s *Step) Option(v string) (Option, bool) {
	for _, o := range s.Options {
		if o.Value == v {
			return o, true
		}
	}
	return Option{}, false
}

// Validate checks free text against the step validator. Failures wrap
// core.ErrValidation and carry the user facing message.
func (s *Step) Validate(input string) error {
	if s.check == nil || s.check(input) {
		return nil
	}
	msg := "invalid input"
	if s.Validator != nil && s.Validator.Message != "" {
		msg = s.Validator.Message
	}
	return &ValidationError{Step: s.Key, Message: msg}
}

// NextFor returns the successor for an answer: the chosen option's Next when
// set, else the step's Next. Empty means the flow ends after this step.
func (s *Step) NextFor(opt *Option) string {
	if opt != nil && opt.Next != "" {
		return opt.Next
	}
	return s.Next
}

// Flow is a named, ordered sequence of steps realizing one user intent.
type Flow struct {
	ID            string          `yaml:"id"`
	Title         string          `yaml:"title"`
	RecordType    core.RecordType `yaml:"record_type,omitempty"`
	InitialStatus core.Status     `yaml:"initial_status,omitempty"`
	Start         string          `yaml:"start"`
	Steps         []*Step         `yaml:"steps"`

	index map[string]*Step
}

// Step looks up a step by key.
func (f *Flow) Step(key string) (*Step, bool) {
	s, ok := f.index[key]
	return s, ok
}

// Creates reports whether completing the flow persists a record.
func (f *Flow) Creates() bool { return f.RecordType != "" }

// StepWithRole returns the first step carrying role.
func (f *Flow) StepWithRole(role Role) (*Step, bool) {
	for _, s := range f.Steps {
		if s.Role == role {
			return s, true
		}
	}
	return nil, false
}

// MediaStep returns the flow's media accumulation step.
func (f *Flow) MediaStep() (*Step, bool) {
	for _, s := range f.Steps {
		if s.Kind == KindMedia {
			return s, true
		}
	}
	return nil, false
}

// Reachable enumerates the steps reachable from Start through step and option
// successors.
func (f *Flow) Reachable() map[string]bool {
	seen := map[string]bool{}
	queue := []string{f.Start}
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		if key == "" || seen[key] {
			continue
		}
		s, ok := f.index[key]
		if !ok {
			continue
		}
		seen[key] = true
		queue = append(queue, s.Next)
		for _, o := range s.Options {
			queue = append(queue, o.Next)
		}
	}
	return seen
}

// MenuEntry maps an alias set to a flow or to a static informational reply.
type MenuEntry struct {
	Flow    string   `yaml:"flow,omitempty"`
	Reply   string   `yaml:"reply,omitempty"`
	Aliases []string `yaml:"aliases"`
}

// Menu is the root (WELCOME / SELECT_FLOW) alias table.
type Menu struct {
	Prompt  string      `yaml:"prompt"`
	Entries []MenuEntry `yaml:"entries"`
}

// Messages are the canned reply texts. Several are templates rendered with
// PromptData.
type Messages struct {
	InvalidChoice     string `yaml:"invalid_choice"`
	UnknownCommand    string `yaml:"unknown_command"`
	Required          string `yaml:"required"`
	Cancelled         string `yaml:"cancelled"`
	Apology           string `yaml:"apology"`
	Duplicate         string `yaml:"duplicate"`
	PersistenceFailed string `yaml:"persistence_failed"`
	MediaReceived     string `yaml:"media_received"`
	MediaHint         string `yaml:"media_hint"`
	MediaIgnored      string `yaml:"media_ignored"`
	ConfirmHint       string `yaml:"confirm_hint"`
	NotFound          string `yaml:"not_found"`
	AssistantFallback string `yaml:"assistant_fallback"`
	Confirmation      string `yaml:"confirmation"`
	AdminAlert        string `yaml:"admin_alert"`
	Status            string `yaml:"status"`
	StatusUpdate      string `yaml:"status_update"`
	Done              string `yaml:"done"`
}

// Graph is the complete, validated dialogue definition.
type Graph struct {
	RecordTypes map[core.RecordType]ticket.Scheme `yaml:"record_types"`
	MediaFlow   string                            `yaml:"media_flow"`
	Menu        Menu                              `yaml:"menu"`
	Messages    Messages                          `yaml:"messages"`
	Flows       []*Flow                           `yaml:"flows"`

	flows map[string]*Flow
	menu  map[string]int
}

// Flow looks up a flow by id.
func (g *Graph) Flow(id string) (*Flow, bool) {
	f, ok := g.flows[id]
	return f, ok
}

// Step resolves a (flow, step) position. An unknown position wraps
// core.ErrSessionCorruption.
func (g *Graph) Step(flowID, key string) (*Flow, *Step, error) {
	f, ok := g.flows[flowID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown flow %q", core.ErrSessionCorruption, flowID)
	}
	s, ok := f.index[key]
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown step %q in flow %q", core.ErrSessionCorruption, key, flowID)
	}
	return f, s, nil
}

// MatchMenu resolves root menu input.
func (g *Graph) MatchMenu(input string) (MenuEntry, bool) {
	i, ok := g.menu[Normalize(input)]
	if !ok {
		return MenuEntry{}, false
	}
	return g.Menu.Entries[i], true
}

// Normalize case-folds and collapses whitespace so aliases match regardless
// of capitalization or spacing.
func Normalize(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

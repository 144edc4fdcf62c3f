package flow

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/intakemesh/internal/util"
)

//go:embed definitions/intake.yaml
var defaultDefinition []byte

// Default returns the built-in intake graph.
func Default() (*Graph, error) {
	return Load(bytes.NewReader(defaultDefinition))
}

// LoadFile reads and validates a graph definition from path.
func LoadFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open flow definition: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Load decodes a YAML graph definition and validates it.
func Load(r io.Reader) (*Graph, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var g Graph
	if err := dec.Decode(&g); err != nil {
		return nil, fmt.Errorf("decode flow definition: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}

	return &g, nil
}

// Validate indexes the graph and checks its structure. It is called by Load
// and must be called on graphs built in code before use.
func (g *Graph) Validate() error {
	var errs []error

	g.flows = make(map[string]*Flow, len(g.Flows))
	for _, f := range g.Flows {
		if f.ID == "" {
			errs = append(errs, errors.New("flow without id"))
			continue
		}
		if _, dup := g.flows[f.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate flow %q", f.ID))
			continue
		}
		g.flows[f.ID] = f
		errs = append(errs, g.validateFlow(f)...)
	}

	g.menu = make(map[string]int)
	for i, e := range g.Menu.Entries {
		if (e.Flow == "") == (e.Reply == "") {
			errs = append(errs, fmt.Errorf("menu entry %d: exactly one of flow or reply is required", i))
		}
		if e.Flow != "" {
			if _, ok := g.flows[e.Flow]; !ok {
				errs = append(errs, fmt.Errorf("menu entry %d: unknown flow %q", i, e.Flow))
			}
		}
		for _, a := range e.Aliases {
			key := Normalize(a)
			if prev, dup := g.menu[key]; dup && prev != i {
				errs = append(errs, fmt.Errorf("menu alias %q is ambiguous", a))
				continue
			}
			g.menu[key] = i
		}
	}

	if g.MediaFlow != "" {
		f, ok := g.flows[g.MediaFlow]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("media flow %q not found", g.MediaFlow))
		case !f.Creates():
			errs = append(errs, fmt.Errorf("media flow %q does not create a record", g.MediaFlow))
		default:
			if _, ok := f.MediaStep(); !ok {
				errs = append(errs, fmt.Errorf("media flow %q has no media step", g.MediaFlow))
			}
		}
	}

	for name, tmpl := range g.messageTemplates() {
		if err := util.ParseTemplate(tmpl); err != nil {
			errs = append(errs, fmt.Errorf("message %s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

func (g *Graph) validateFlow(f *Flow) []error {
	var errs []error

	if f.Creates() {
		if _, ok := g.RecordTypes[f.RecordType]; !ok {
			errs = append(errs, fmt.Errorf("flow %q: record type %q has no ticket scheme", f.ID, f.RecordType))
		}
		if f.InitialStatus == "" || !f.InitialStatus.Valid() {
			errs = append(errs, fmt.Errorf("flow %q: invalid initial status %q", f.ID, f.InitialStatus))
		}
	}

	f.index = make(map[string]*Step, len(f.Steps))
	for _, s := range f.Steps {
		if _, dup := f.index[s.Key]; dup {
			errs = append(errs, fmt.Errorf("flow %q: duplicate step %q", f.ID, s.Key))
			continue
		}
		f.index[s.Key] = s

		check, err := compileValidator(s.Validator)
		if err != nil {
			errs = append(errs, fmt.Errorf("flow %q step %q: %w", f.ID, s.Key, err))
		}
		s.check = check

		if err := util.ParseTemplate(s.Prompt); err != nil {
			errs = append(errs, fmt.Errorf("flow %q step %q prompt: %w", f.ID, s.Key, err))
		}

		switch s.Kind {
		case KindChoice:
			if len(s.Options) == 0 {
				errs = append(errs, fmt.Errorf("flow %q step %q: choice without options", f.ID, s.Key))
			}
		case KindText, KindMedia, KindLookup, KindAsk:
		case KindConfirm:
			if !f.Creates() {
				errs = append(errs, fmt.Errorf("flow %q step %q: confirm step in a flow without record type", f.ID, s.Key))
			}
		default:
			errs = append(errs, fmt.Errorf("flow %q step %q: unknown kind %q", f.ID, s.Key, s.Kind))
		}

		s.aliases = make(map[string]int)
		for i, o := range s.Options {
			for _, a := range append([]string{o.Value}, o.Aliases...) {
				key := Normalize(a)
				if prev, dup := s.aliases[key]; dup && prev != i {
					errs = append(errs, fmt.Errorf("flow %q step %q: alias %q is ambiguous", f.ID, s.Key, a))
					continue
				}
				s.aliases[key] = i
			}
		}
	}

	if _, ok := f.index[f.Start]; !ok {
		errs = append(errs, fmt.Errorf("flow %q: start step %q not found", f.ID, f.Start))
		return errs
	}

	for _, s := range f.Steps {
		succ := []string{s.Next}
		for _, o := range s.Options {
			succ = append(succ, o.Next)
		}
		for _, next := range succ {
			if next == "" {
				continue
			}
			if _, ok := f.index[next]; !ok {
				errs = append(errs, fmt.Errorf("flow %q step %q: successor %q not found", f.ID, s.Key, next))
			}
		}
		if s.Next == "" && f.Creates() && s.Kind != KindConfirm && !allOptionsBranch(s) {
			errs = append(errs, fmt.Errorf("flow %q step %q: record flow must end in a confirm step", f.ID, s.Key))
		}
		if s.Kind == KindConfirm && s.Next != "" {
			errs = append(errs, fmt.Errorf("flow %q step %q: confirm step must be terminal", f.ID, s.Key))
		}
	}

	reachable := f.Reachable()
	for _, s := range f.Steps {
		if !reachable[s.Key] {
			errs = append(errs, fmt.Errorf("flow %q: step %q is unreachable", f.ID, s.Key))
		}
	}

	return errs
}

func allOptionsBranch(s *Step) bool {
	if len(s.Options) == 0 {
		return false
	}
	for _, o := range s.Options {
		if o.Next == "" {
			return false
		}
	}
	return true
}

func (g *Graph) messageTemplates() map[string]string {
	m := g.Messages
	return map[string]string{
		"menu":           g.Menu.Prompt,
		"media_received": m.MediaReceived,
		"not_found":      m.NotFound,
		"confirmation":   m.Confirmation,
		"admin_alert":    m.AdminAlert,
		"status":         m.Status,
		"status_update":  m.StatusUpdate,
	}
}

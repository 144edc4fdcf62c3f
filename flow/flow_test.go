package flow

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/intakemesh/core"
)

func mustDefault(t *testing.T) *Graph {
	t.Helper()
	g, err := Default()
	require.NoError(t, err)
	return g
}

func TestDefaultGraphLoads(t *testing.T) {
	g := mustDefault(t)

	for _, id := range []string{"report", "status", "awareness", "chat", "unfreeze"} {
		_, ok := g.Flow(id)
		assert.True(t, ok, id)
	}

	report, _ := g.Flow("report")
	assert.Equal(t, core.RecordTypeReport, report.RecordType)
	assert.Equal(t, core.StatusReceived, report.InitialStatus)

	unfreeze, _ := g.Flow("unfreeze")
	assert.Equal(t, core.StatusRegistered, unfreeze.InitialStatus)
	assert.Equal(t, "1930OD", g.RecordTypes[core.RecordTypeComplaint].Prefix)
}

func TestEveryStepReachable(t *testing.T) {
	g := mustDefault(t)
	for _, f := range g.Flows {
		reachable := f.Reachable()
		for _, s := range f.Steps {
			assert.Truef(t, reachable[s.Key], "flow %s step %s", f.ID, s.Key)
		}
	}
}

func TestMatchMenu(t *testing.T) {
	g := mustDefault(t)

	tests := []struct {
		input string
		flow  string
		reply bool
	}{
		{"1", "report", false},
		{"  REPORT ", "report", false},
		{"Status", "status", false},
		{"7", "unfreeze", false},
		{"contact", "", true},
		{"help", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			e, ok := g.MatchMenu(tt.input)
			require.True(t, ok)
			assert.Equal(t, tt.flow, e.Flow)
			assert.Equal(t, tt.reply, e.Reply != "")
		})
	}

	_, ok := g.MatchMenu("42")
	assert.False(t, ok)
}

func TestChoiceBranching(t *testing.T) {
	g := mustDefault(t)
	_, step, err := g.Step("report", "category")
	require.NoError(t, err)

	opt, ok := step.Match("1")
	require.True(t, ok)
	assert.Equal(t, "Financial Fraud", opt.Value)
	assert.Equal(t, "financial_type", step.NextFor(&opt))

	opt, ok = step.Match("e-commerce")
	require.True(t, ok)
	assert.Equal(t, "description", step.NextFor(&opt))

	_, ok = step.Match("10")
	assert.False(t, ok)
}

func TestStepUnknownPosition(t *testing.T) {
	g := mustDefault(t)

	_, _, err := g.Step("report", "nope")
	assert.ErrorIs(t, err, core.ErrSessionCorruption)

	_, _, err = g.Step("nope", "category")
	assert.ErrorIs(t, err, core.ErrSessionCorruption)
}

func TestBuiltinValidators(t *testing.T) {
	g := mustDefault(t)

	tests := []struct {
		flow, step, input string
		ok                bool
	}{
		{"report", "phone", "+919876543210", true},
		{"report", "phone", "98765 43210", true},
		{"report", "phone", "12ab", false},
		{"report", "pin_code", "560001", true},
		{"report", "pin_code", "05600", false},
		{"report", "email", "a@example.com", true},
		{"report", "email", "not-an-email", false},
		{"report", "amount", "2,500", true},
		{"report", "amount", "lots", false},
		{"report", "amount", "Rs. 1,250.50", true},
		{"report", "amount", "₹700", true},
		{"report", "amount", "Inf", false},
		{"report", "amount", "1e400", false},
		{"report", "amount", "0x1p3", false},
		{"report", "amount", "-50", false},
		{"report", "amount", "12.345", false},
		{"report", "incident_date", "15-08-2024", true},
		{"report", "incident_date", "yesterday", false},
		{"unfreeze", "account_number", "123456789012", true},
		{"unfreeze", "account_number", "12345", false},
		{"unfreeze", "ifsc_code", "sbin0001234", true},
		{"unfreeze", "ifsc_code", "SBIN1234", false},
	}
	for _, tt := range tests {
		t.Run(tt.step+"/"+tt.input, func(t *testing.T) {
			_, step, err := g.Step(tt.flow, tt.step)
			require.NoError(t, err)

			err = step.Validate(tt.input)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, core.ErrValidation)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.NotEmpty(t, ve.Message)
		})
	}
}

func TestValidateRejectsBrokenGraphs(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "dangling successor",
			yaml: `
flows:
  - id: f
    start: a
    steps:
      - {key: a, kind: text, prompt: "A", next: missing}
`,
			want: `successor "missing" not found`,
		},
		{
			name: "record flow without confirm",
			yaml: `
record_types:
  report: {prefix: CYB, width: 6}
flows:
  - id: f
    record_type: report
    initial_status: Received
    start: a
    steps:
      - {key: a, kind: text, prompt: "A"}
`,
			want: "must end in a confirm step",
		},
		{
			name: "unreachable step",
			yaml: `
flows:
  - id: f
    start: a
    steps:
      - {key: a, kind: text, prompt: "A"}
      - {key: b, kind: text, prompt: "B"}
`,
			want: `step "b" is unreachable`,
		},
		{
			name: "bad template",
			yaml: `
flows:
  - id: f
    start: a
    steps:
      - {key: a, kind: text, prompt: "{{.Broken"}
`,
			want: "prompt",
		},
		{
			name: "unknown validator",
			yaml: `
flows:
  - id: f
    start: a
    steps:
      - {key: a, kind: text, prompt: "A", validator: {name: zodiac}}
`,
			want: `unknown validator "zodiac"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPromptDataCarriesChecklistAndSummary(t *testing.T) {
	g := mustDefault(t)
	f, _ := g.Flow("report")

	s := core.NewSession("+100", time.Now())
	s.Start("report", "category")
	s.SetAnswer("category", "Financial Fraud")
	s.SetAnswer("financial_type", "upi_fraud")
	s.SetAnswer("description", "lost money")
	s.AppendMedia(core.MediaItem{Ref: "https://m/1", ContentType: "image/jpeg"})

	data := f.PromptData(s)
	assert.Contains(t, data.Checklist, "Bank statement")
	assert.Equal(t, 1, data.MediaCount)
	assert.Contains(t, data.Summary, "Category: Financial Fraud")
	assert.Contains(t, data.Summary, "Description: lost money")
	assert.Contains(t, data.Summary, "Evidence: 1 file(s)")

	_, evidence, err := g.Step("report", "evidence")
	require.NoError(t, err)
	out, err := Render(evidence.Prompt, data)
	require.NoError(t, err)
	assert.Contains(t, out, "- Bank statement")
}

func TestRenderStatusMessage(t *testing.T) {
	g := mustDefault(t)
	rec := &core.IntakeRecord{
		TicketID:  "CYB000007",
		Category:  "Other",
		Status:    core.StatusReceived,
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	out, err := Render(g.Messages.Status, PromptData{Record: rec, Note: "We are on it"})
	require.NoError(t, err)
	assert.Contains(t, out, "Report ID: CYB000007")
	assert.Contains(t, out, "Status: Received")
	assert.Contains(t, out, "We are on it")
}

package cleanup

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/juju/errors"

	"github.com/tabletdrivercleanup/tdc/internal/console"
	"github.com/tabletdrivercleanup/tdc/internal/identifiers"
	"github.com/tabletdrivercleanup/tdc/internal/matcher"
)

type widget struct {
	Name   string
	Vendor string
}

func (w widget) String() string { return w.Name }

type widgetCriterion struct {
	FriendlyName string  `json:"friendly_name"`
	Name         *string `json:"name"`
	Vendor       *string `json:"vendor"`
}

func (c widgetCriterion) Matches(m *matcher.Cache, w widget) bool {
	name, vendor := w.Name, w.Vendor
	return m.MatchField(&name, c.Name) && m.MatchField(&vendor, c.Vendor)
}

func (c widgetCriterion) Validate() error {
	if c.FriendlyName == "" {
		return errors.NotValidf("empty friendly_name")
	}
	return nil
}

func (c widgetCriterion) Constraints() string {
	return strings.Join(matcher.Present(c.Name, c.Vendor), ", ")
}

func (c widgetCriterion) String() string { return c.FriendlyName }

type uninstallCall struct {
	object    string
	criterion string
}

type fakeModule struct {
	objects      []widget
	enumerateErr error
	uninstallErr map[string]error
	reboot       bool
	calls        []uninstallCall
}

func (f *fakeModule) Metadata() Metadata {
	return Metadata{Name: "Widget Cleanup", CLIName: "widget-cleanup", Noun: "widgets", Identifier: "widget_identifiers.json"}
}

func (f *fakeModule) Enumerate(context.Context) ([]widget, error) {
	return f.objects, f.enumerateErr
}

func (f *fakeModule) Uninstall(_ context.Context, w widget, c widgetCriterion, _ *Env, result *RunResult) error {
	f.calls = append(f.calls, uninstallCall{object: w.Name, criterion: c.FriendlyName})
	if err := f.uninstallErr[w.Name]; err != nil {
		return err
	}
	if f.reboot {
		result.RequireReboot()
	}
	return nil
}

type staticResolver struct {
	content string
	err     error
}

func (r staticResolver) Resolve(_ context.Context, id string) (*identifiers.Resource, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &identifiers.Resource{Identifier: id, Source: identifiers.SourceEmbedded, Content: []byte(r.content)}, nil
}

type scriptedPrompter struct {
	answers  []console.Answer
	messages []string
}

func (p *scriptedPrompter) PromptYesNo(_ context.Context, msg string) (console.Answer, error) {
	p.messages = append(p.messages, msg)
	if len(p.answers) == 0 {
		return console.Cancel, errors.New("no more answers")
	}
	a := p.answers[0]
	p.answers = p.answers[1:]
	return a, nil
}

func newEnv(criteria string, state State, p Prompter) (*Env, *bytes.Buffer) {
	var out bytes.Buffer
	return &Env{
		State:    state,
		Resolver: staticResolver{content: criteria},
		Matcher:  matcher.NewCache(),
		Prompter: p,
		Out:      &out,
		Err:      &out,
	}, &out
}

var widgets = []widget{
	{Name: "Alpha Tablet", Vendor: "Acme"},
	{Name: "Beta Pen", Vendor: "Bolt"},
	{Name: "Gamma Mouse", Vendor: "Acme"},
}

func TestRunVacuousCriterionMatchesEverything(t *testing.T) {
	m := &fakeModule{objects: widgets}
	env, _ := newEnv(`[{"friendly_name":"All"}]`, State{}, nil)

	if _, err := Run[widget, widgetCriterion](context.Background(), m, env); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(m.calls) != len(widgets) {
		t.Fatalf("uninstall calls = %d, want %d", len(m.calls), len(widgets))
	}
}

func TestRunFirstMatchWins(t *testing.T) {
	m := &fakeModule{objects: widgets[:1]}
	env, _ := newEnv(`[
		{"friendly_name":"First","vendor":"acme"},
		{"friendly_name":"Second","name":"alpha"}
	]`, State{}, nil)

	if _, err := Run[widget, widgetCriterion](context.Background(), m, env); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(m.calls) != 1 || m.calls[0].criterion != "First" {
		t.Fatalf("calls = %+v, want one call with First", m.calls)
	}
}

func TestRunNonMatchingPatternSkipsAll(t *testing.T) {
	m := &fakeModule{objects: widgets}
	env, out := newEnv(`[{"friendly_name":"Nope","vendor":"Zenith"}]`, State{}, nil)

	if _, err := Run[widget, widgetCriterion](context.Background(), m, env); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(m.calls) != 0 {
		t.Fatalf("unexpected calls %+v", m.calls)
	}
	if !strings.Contains(out.String(), "No widgets to uninstall is found.") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunDryRunNeverUninstalls(t *testing.T) {
	m := &fakeModule{objects: widgets[:1], reboot: true}
	p := &scriptedPrompter{}
	env, out := newEnv(`[{"friendly_name":"Alpha"}]`, State{Interactive: true, DryRun: true}, p)

	res, err := Run[widget, widgetCriterion](context.Background(), m, env)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(m.calls) != 0 {
		t.Fatalf("dry run made %d uninstall calls", len(m.calls))
	}
	if res.RebootRequired {
		t.Fatal("dry run must not require reboot")
	}
	if len(p.messages) != 0 {
		t.Fatal("dry run must not prompt")
	}
	if !strings.Contains(out.String(), "Uninstalling 'Alpha'...") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunInteractiveAnswers(t *testing.T) {
	tests := []struct {
		name      string
		answers   []console.Answer
		wantCalls int
		wantErr   error
		wantOut   string
	}{
		{"all yes", []console.Answer{console.Yes, console.Yes, console.Yes}, 3, nil, "Uninstalling 'All'..."},
		{"no skips", []console.Answer{console.No, console.Yes, console.No}, 1, nil, "Skipping 'All'..."},
		{"cancel stops", []console.Answer{console.Yes, console.Cancel, console.Yes}, 1, ErrAborted, "Aborting..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeModule{objects: widgets}
			p := &scriptedPrompter{answers: tt.answers}
			env, out := newEnv(`[{"friendly_name":"All"}]`, State{Interactive: true}, p)

			_, err := Run[widget, widgetCriterion](context.Background(), m, env)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Run: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(m.calls) != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", len(m.calls), tt.wantCalls)
			}
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Fatalf("output %q does not contain %q", out.String(), tt.wantOut)
			}
		})
	}
}

func TestRunCancelDoesNotPromptAgain(t *testing.T) {
	m := &fakeModule{objects: widgets}
	p := &scriptedPrompter{answers: []console.Answer{console.Cancel, console.Yes, console.Yes}}
	env, _ := newEnv(`[{"friendly_name":"All"}]`, State{Interactive: true}, p)

	if _, err := Run[widget, widgetCriterion](context.Background(), m, env); !errors.Is(err, ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
	if len(p.messages) != 1 || p.messages[0] != "Uninstall 'All'?" {
		t.Fatalf("prompts = %q", p.messages)
	}
}

func TestRunUninstallFailureContinues(t *testing.T) {
	m := &fakeModule{
		objects: widgets,
		uninstallErr: map[string]error{
			"Alpha Tablet": errors.WithType(errors.New("access denied"), ErrUninstallFailed),
			"Beta Pen":     errors.Annotate(ErrAlreadyUninstalled, "uninstaller missing"),
		},
		reboot: true,
	}
	env, out := newEnv(`[{"friendly_name":"All"}]`, State{}, nil)

	res, err := Run[widget, widgetCriterion](context.Background(), m, env)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(m.calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(m.calls))
	}
	if !res.RebootRequired {
		t.Fatal("successful uninstall should have required reboot")
	}
	got := console.Plain(out.String())
	if !strings.Contains(got, "Failed to uninstall 'All': access denied") {
		t.Fatalf("missing failure report in %q", got)
	}
	if !strings.Contains(got, "'All' is already uninstalled") {
		t.Fatalf("missing already-uninstalled notice in %q", got)
	}
}

func TestRunFatalErrors(t *testing.T) {
	tests := []struct {
		name     string
		criteria string
		resolve  error
		enumErr  error
		want     error
	}{
		{"unknown field", `[{"friendly_name":"A","colour":"red"}]`, nil, nil, ErrCriteriaParse},
		{"missing friendly name", `[{"vendor":"acme"}]`, nil, nil, ErrCriteriaParse},
		{"trailing data", `[] []`, nil, nil, ErrCriteriaParse},
		{"not an array", `{"friendly_name":"A"}`, nil, nil, ErrCriteriaParse},
		{"resolution", "", errors.NotFoundf("widget_identifiers.json"), nil, ErrResolution},
		{"enumeration", `[]`, nil, errors.New("access denied"), ErrEnumeration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeModule{objects: widgets, enumerateErr: tt.enumErr}
			env, _ := newEnv(tt.criteria, State{}, nil)
			env.Resolver = staticResolver{content: tt.criteria, err: tt.resolve}

			_, err := Run[widget, widgetCriterion](context.Background(), m, env)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if !Fatal(err) {
				t.Fatalf("Fatal(%v) = false", err)
			}
			if len(m.calls) != 0 {
				t.Fatal("no uninstall expected after a fatal error")
			}
		})
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	m := &fakeModule{objects: widgets}
	env, _ := newEnv(`[{"friendly_name":"All"}]`, State{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Run[widget, widgetCriterion](ctx, m, env); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(m.calls) != 0 {
		t.Fatal("no uninstall expected")
	}
}

func TestBindListCriteria(t *testing.T) {
	r := Bind[widget, widgetCriterion](&fakeModule{})
	env, _ := newEnv(`[{"friendly_name":"A","vendor":"acme"},{"friendly_name":"B"}]`, State{}, nil)

	source, list, err := r.ListCriteria(context.Background(), env)
	if err != nil {
		t.Fatalf("ListCriteria: %v", err)
	}
	if source != identifiers.SourceEmbedded {
		t.Fatalf("source = %s", source)
	}
	if len(list) != 2 || list[0].Name != "A" || list[0].Constraints != "acme" || list[1].Constraints != "" {
		t.Fatalf("list = %+v", list)
	}
	if r.Metadata().Noun != "widgets" {
		t.Fatal("metadata not forwarded")
	}
}

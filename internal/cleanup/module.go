// Package cleanup runs cleanup modules: it loads a module's uninstall
// criteria, matches them against the live objects the module enumerates,
// confirms with the operator and uninstalls.
package cleanup

import (
	"context"
	"io"

	"github.com/tabletdrivercleanup/tdc/internal/console"
	"github.com/tabletdrivercleanup/tdc/internal/identifiers"
	"github.com/tabletdrivercleanup/tdc/internal/matcher"
)

// Metadata describes a module to the operator and to the CLI.
type Metadata struct {
	// Name is the display name, e.g. "Device Cleanup".
	Name string
	// CLIName is used to build the --no-<cli name> flag.
	CLIName string
	// Help completes the sentence "Do not ...".
	Help string
	// Noun is the plural object name, e.g. "devices".
	Noun string
	// Identifier is the file name of the module's identifier list.
	Identifier string
}

// Criterion is an authored rule selecting objects of type O.
type Criterion[O any] interface {
	// Matches reports whether obj satisfies every constraint present in the
	// criterion. Absent constraints always hold.
	Matches(m *matcher.Cache, obj O) bool
	// Validate checks required fields after decoding.
	Validate() error
	// Constraints summarizes the present constraints for listings.
	Constraints() string
	// String returns the friendly name.
	String() string
}

// Module is implemented by each kind of cleanup.
type Module[O any, C Criterion[O]] interface {
	Metadata() Metadata
	Enumerate(ctx context.Context) ([]O, error)
	Uninstall(ctx context.Context, obj O, crit C, env *Env, result *RunResult) error
}

// State is the session-wide mode.
type State struct {
	Interactive bool
	DryRun      bool
}

// Resolver supplies identifier lists.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (*identifiers.Resource, error)
}

// Prompter asks the operator to confirm an uninstall.
type Prompter interface {
	PromptYesNo(ctx context.Context, message string) (console.Answer, error)
}

// Env carries the collaborators shared by every module run.
type Env struct {
	State    State
	Resolver Resolver
	Matcher  *matcher.Cache
	Prompter Prompter
	// Keys is used by uninstall actions that wait for the operator.
	Keys console.KeyReader
	Out  io.Writer
	Err  io.Writer
}

// RunResult is the outcome of one module run.
type RunResult struct {
	RebootRequired bool
}

// RequireReboot records that an uninstall needs a reboot to complete.
func (r *RunResult) RequireReboot() {
	r.RebootRequired = true
}

// Listing is one criterion as shown by the identifiers command.
type Listing struct {
	Name        string
	Constraints string
}

// Runner is a Module bound to its object and criterion types, so modules of
// different kinds can be kept in one list.
type Runner interface {
	Metadata() Metadata
	Run(ctx context.Context, env *Env) (RunResult, error)
	ListCriteria(ctx context.Context, env *Env) (identifiers.Source, []Listing, error)
}

// Bind returns the Runner for m.
func Bind[O any, C Criterion[O]](m Module[O, C]) Runner {
	return &boundModule[O, C]{module: m}
}

type boundModule[O any, C Criterion[O]] struct {
	module Module[O, C]
}

func (b *boundModule[O, C]) Metadata() Metadata {
	return b.module.Metadata()
}

func (b *boundModule[O, C]) Run(ctx context.Context, env *Env) (RunResult, error) {
	return Run(ctx, b.module, env)
}

func (b *boundModule[O, C]) ListCriteria(ctx context.Context, env *Env) (identifiers.Source, []Listing, error) {
	criteria, source, err := LoadCriteria[O, C](ctx, env.Resolver, b.module.Metadata().Identifier)
	if err != nil {
		return source, nil, err
	}
	out := make([]Listing, 0, len(criteria))
	for _, c := range criteria {
		out = append(out, Listing{Name: c.String(), Constraints: c.Constraints()})
	}
	return source, out, nil
}

package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/juju/errors"

	"github.com/tabletdrivercleanup/tdc/internal/console"
	"github.com/tabletdrivercleanup/tdc/internal/identifiers"
	"github.com/tabletdrivercleanup/tdc/internal/logging"
	"github.com/tabletdrivercleanup/tdc/internal/matcher"
)

var log = logging.L("cleanup")

// Run performs one pass of module m: every enumerated object matched by a
// criterion is confirmed (interactive sessions only) and uninstalled.
//
// Failures to uninstall a single object are reported and the pass goes on.
// Run fails only when the criteria cannot be loaded or the objects cannot be
// enumerated, or with ErrAborted when the operator cancels.
func Run[O any, C Criterion[O]](ctx context.Context, m Module[O, C], env *Env) (RunResult, error) {
	var result RunResult
	meta := m.Metadata()
	mlog := logging.WithModule(log, meta.Name)

	criteria, source, err := LoadCriteria[O, C](ctx, env.Resolver, meta.Identifier)
	if err != nil {
		return result, errors.Annotatef(err, "module %q", meta.Name)
	}
	mlog.Info("criteria loaded", "count", len(criteria), "source", source)

	objects, err := m.Enumerate(ctx)
	if err != nil {
		return result, errors.WithType(
			errors.Annotatef(err, "module %q: cannot enumerate %s", meta.Name, meta.Noun),
			ErrEnumeration)
	}
	mlog.Info("objects enumerated", "count", len(objects))

	found := false
	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return result, errors.Trace(err)
		}

		crit, ok := firstMatch(env.Matcher, criteria, obj)
		if !ok {
			continue
		}
		found = true
		olog := mlog.With(logging.KeyObject, fmt.Sprint(obj), logging.KeyCriterion, crit.String())

		if env.State.Interactive && !env.State.DryRun {
			answer, err := env.Prompter.PromptYesNo(ctx, fmt.Sprintf("Uninstall '%s'?", crit))
			if err != nil {
				return result, errors.Annotatef(err, "cannot confirm uninstall of '%s'", crit)
			}
			switch answer {
			case console.No:
				fmt.Fprintf(env.Out, "Skipping '%s'...\n", crit)
				olog.Info("skipped by operator")
				continue
			case console.Cancel:
				fmt.Fprintln(env.Out, "Aborting...")
				olog.Info("aborted by operator")
				return result, ErrAborted
			}
		}

		fmt.Fprintf(env.Out, "Uninstalling '%s'...\n", crit)
		if env.State.DryRun {
			olog.Info("dry run, uninstall skipped")
			continue
		}

		err := m.Uninstall(ctx, obj, crit, env, &result)
		switch {
		case err == nil:
			olog.Info("uninstalled", "rebootRequired", result.RebootRequired)
		case errors.Is(err, ErrAlreadyUninstalled):
			fmt.Fprintf(env.Out, "'%s' is already uninstalled\n", crit)
			olog.Info("already uninstalled", logging.Err(err))
		default:
			fmt.Fprintf(env.Err, "%s '%s': %v\n", console.Error("Failed to uninstall"), crit, err)
			olog.Error("uninstall failed", logging.Err(err))
		}
	}

	if !found {
		fmt.Fprintf(env.Out, "No %s to uninstall is found.\n", meta.Noun)
	}

	return result, nil
}

// firstMatch returns the first criterion, in authored order, matching obj.
func firstMatch[O any, C Criterion[O]](m *matcher.Cache, criteria []C, obj O) (C, bool) {
	for _, c := range criteria {
		if c.Matches(m, obj) {
			return c, true
		}
	}
	var zero C
	return zero, false
}

// LoadCriteria resolves identifier and strictly decodes it as a list of C.
func LoadCriteria[O any, C Criterion[O]](ctx context.Context, r Resolver, identifier string) ([]C, identifiers.Source, error) {
	res, err := r.Resolve(ctx, identifier)
	if err != nil {
		return nil, 0, errors.WithType(err, ErrResolution)
	}

	criteria, err := DecodeCriteria[O, C](res.Content)
	if err != nil {
		return nil, res.Source, errors.WithType(
			errors.Annotatef(err, "cannot parse %s (%s)", identifier, res.Source),
			ErrCriteriaParse)
	}
	return criteria, res.Source, nil
}

// DecodeCriteria decodes a JSON array of criteria. Unknown fields, trailing
// data and criteria failing Validate are rejected.
func DecodeCriteria[O any, C Criterion[O]](data []byte) ([]C, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var criteria []C
	if err := dec.Decode(&criteria); err != nil {
		return nil, errors.Trace(err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after criteria list")
	}

	for i, c := range criteria {
		if err := c.Validate(); err != nil {
			return nil, errors.Annotatef(err, "criterion %d", i)
		}
	}
	return criteria, nil
}

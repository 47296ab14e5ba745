package main

import (
	"context"
	"fmt"
	"io"

	"github.com/juju/errors"

	"github.com/tabletdrivercleanup/tdc/internal/cleanup"
	"github.com/tabletdrivercleanup/tdc/internal/console"
	"github.com/tabletdrivercleanup/tdc/internal/dump"
	"github.com/tabletdrivercleanup/tdc/internal/logging"
)

var log = logging.L("main")

const (
	exitOK      = 0
	exitFailure = 1
)

// app drives one session against the enabled modules.
type app struct {
	state       cleanup.State
	keys        console.KeyReader
	out, errOut io.Writer

	requireElevation func(dryRun bool) error
	reboot           func(ctx context.Context) error
}

// pause waits for any key in interactive sessions.
func (a *app) pause(ctx context.Context, message string) {
	if !a.state.Interactive || a.keys == nil {
		return
	}
	if _, err := console.WaitForKey(ctx, a.keys, a.out, message); err != nil {
		log.Debug("key wait ended", logging.Err(err))
	}
	fmt.Fprintln(a.out)
}

// cleanup runs every module in order and returns the process exit code.
func (a *app) cleanup(ctx context.Context, runners []cleanup.Runner, env *cleanup.Env) int {
	if err := a.requireElevation(a.state.DryRun); err != nil {
		fmt.Fprintln(a.errOut, err)
		log.Error("not elevated", logging.Err(err))
		a.pause(ctx, "Press any key to exit...")
		return exitFailure
	}

	if a.state.DryRun {
		fmt.Fprintln(a.out, console.Warn("Running in dry run mode. No changes will be made."))
	}

	rebootRequired := false
	for _, r := range runners {
		meta := r.Metadata()
		fmt.Fprintf(a.out, "\nRunning '%s'...\n", meta.Name)
		mlog := logging.WithModule(log, meta.Name)

		result, err := r.Run(ctx, env)
		if errors.Is(err, cleanup.ErrAborted) {
			mlog.Info("run aborted by user")
			return exitOK
		}
		if err != nil {
			mlog.Error("module failed", logging.Err(err))
			fmt.Fprintf(a.errOut, "\n%s\n%v\n", console.Error("Error!"), err)
			fmt.Fprintf(a.errOut, "\nErrors were encountered while running '%s'. Aborting!\n", meta.Name)
			a.pause(ctx, "Press any key to exit...")
			return exitFailure
		}
		mlog.Info("module finished", "rebootRequired", result.RebootRequired)
		rebootRequired = rebootRequired || result.RebootRequired
	}

	if rebootRequired {
		return a.offerReboot(ctx)
	}

	a.pause(ctx, "\nCleanup complete. Press any key to exit... ")
	return exitOK
}

func (a *app) offerReboot(ctx context.Context) int {
	if !a.state.Interactive || a.keys == nil {
		log.Info("reboot required, left to the operator")
		return exitOK
	}

	fmt.Fprintln(a.out, "\nReboot is required to complete the cleanup.")
	key, err := console.WaitForKey(ctx, a.keys, a.out, "Press any key to reboot now, or press 'q' to cancel reboot... ")
	fmt.Fprintln(a.out)
	if err != nil || (key.Code == console.KeyRune && (key.Rune == 'q' || key.Rune == 'Q')) {
		fmt.Fprintln(a.out, "Reboot cancelled.")
		return exitOK
	}

	log.Info("rebooting")
	if err := a.reboot(ctx); err != nil {
		log.Error("reboot failed", logging.Err(err))
		fmt.Fprintf(a.errOut, "%s %v\n", console.Error("Failed to reboot:"), err)
		return exitFailure
	}
	return exitOK
}

// dump writes every source into dir and returns the process exit code.
func (a *app) dump(ctx context.Context, dir string, workers int, sources []dump.Source) int {
	fmt.Fprintf(a.out, "\nDumping into %s...\n", dir)

	code := exitOK
	for _, res := range dump.Run(ctx, dir, workers, sources) {
		if res.Err != nil {
			log.Error("dump failed", logging.KeyModule, res.Metadata.Name, logging.Err(res.Err))
			fmt.Fprintf(a.errOut, "%s %v\n\n", console.Error("Error!"), res.Err)
			code = exitFailure
			continue
		}
		fmt.Fprintln(a.out, res.Message())
	}
	return code
}

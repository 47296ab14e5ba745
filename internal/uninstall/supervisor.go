package uninstall

import (
	"context"
	"io/fs"
	"os/exec"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"golang.org/x/sync/errgroup"

	"github.com/tabletdrivercleanup/tdc/internal/cleanup"
	"github.com/tabletdrivercleanup/tdc/internal/console"
	"github.com/tabletdrivercleanup/tdc/internal/logging"
)

var log = logging.L("uninstall")

const (
	DefaultGracePeriod  = 500 * time.Millisecond
	DefaultPollInterval = 20 * time.Millisecond

	waitMessage = "Complete the uninstall process. If this message is not gone after uninstall is complete, then press any key to continue... "
)

// Supervisor runs Normal and Deferred uninstallers.
type Supervisor struct {
	launcher Launcher
	table    ProcessTable
	waiter   ProcessWaiter
	clock    clock.Clock
	grace    time.Duration
	interval time.Duration
}

// Option configures a Supervisor.
type Option func(*Supervisor)

func WithLauncher(l Launcher) Option         { return func(s *Supervisor) { s.launcher = l } }
func WithProcessTable(t ProcessTable) Option { return func(s *Supervisor) { s.table = t } }
func WithWaiter(w ProcessWaiter) Option      { return func(s *Supervisor) { s.waiter = w } }
func WithClock(c clock.Clock) Option         { return func(s *Supervisor) { s.clock = c } }

// WithGracePeriod sets how long a Deferred uninstaller is given to start
// its delegate before the process table is scanned.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Supervisor) { s.grace = d }
}

// WithPollInterval sets how often the delegate is checked for exit.
func WithPollInterval(d time.Duration) Option {
	return func(s *Supervisor) { s.interval = d }
}

func NewSupervisor(opts ...Option) *Supervisor {
	s := &Supervisor{
		launcher: ExecLauncher{},
		table:    SystemProcessTable{},
		clock:    clock.WallClock,
		grace:    DefaultGracePeriod,
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.waiter == nil {
		s.waiter = NewHandleWaiter(s.clock, s.interval)
	}
	return s
}

// Execute runs commandLine with method and waits for the removal to finish.
//
// In interactive sessions the operator may press any key to stop waiting,
// which counts as success. Output printed while the uninstaller runs is
// erased before Execute returns.
//
// A missing uninstaller yields cleanup.ErrAlreadyUninstalled. Other
// failures are typed cleanup.ErrUninstallFailed.
func (s *Supervisor) Execute(ctx context.Context, commandLine string, method Method, env *cleanup.Env) error {
	guard := console.TempPrint(env.Out)
	defer guard.Close()

	if !env.State.Interactive || env.Keys == nil {
		return s.run(ctx, commandLine, method)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	actionDone := make(chan error, 1)
	keyDone := make(chan error, 1)
	go func() {
		actionDone <- s.run(ctx, commandLine, method)
	}()
	go func() {
		_, err := console.WaitForKey(ctx, env.Keys, env.Out, waitMessage)
		keyDone <- err
	}()

	select {
	case err := <-actionDone:
		cancel()
		<-keyDone
		return err
	case err := <-keyDone:
		if err == nil {
			log.Info("operator confirmed completion, waits cancelled", "command", commandLine)
			cancel()
			<-actionDone
			return nil
		}
		if ctx.Err() == nil {
			log.Warn("cannot read operator key, waiting for uninstaller only", logging.Err(err))
		}
		return <-actionDone
	}
}

func (s *Supervisor) run(ctx context.Context, commandLine string, method Method) error {
	program, args, err := ParseCommandLine(commandLine)
	if err != nil {
		return errors.WithType(err, cleanup.ErrUninstallFailed)
	}

	proc, err := s.launcher.Launch(program, args)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, exec.ErrNotFound) {
			return errors.WithType(errors.Annotatef(err, "uninstaller %s", program), cleanup.ErrAlreadyUninstalled)
		}
		return errors.WithType(errors.Annotatef(err, "cannot launch %s", program), cleanup.ErrUninstallFailed)
	}
	plog := log.With("program", program, "pid", proc.Pid(), "method", method.String())
	plog.Info("uninstaller started")

	switch method {
	case Normal:
		err = waitMain(ctx, proc)
	case Deferred:
		err = s.deferred(ctx, proc, program)
	default:
		err = errors.NotSupportedf("uninstall method %s", method)
	}
	if err != nil {
		return errors.WithType(err, cleanup.ErrUninstallFailed)
	}
	plog.Info("uninstaller finished")
	return nil
}

func (s *Supervisor) deferred(ctx context.Context, proc Process, program string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(s.grace):
	}

	delegate, err := findDelegate(ctx, s.table, proc.Pid(), programDir(program))
	if err != nil {
		log.Warn("cannot scan for delegate process", "pid", proc.Pid(), logging.Err(err))
	}
	if delegate == nil {
		log.Info("no delegate process found", "pid", proc.Pid())
		return waitMain(ctx, proc)
	}
	log.Info("waiting on delegate process", "pid", proc.Pid(), "delegatePid", delegate.Pid, "cmdline", delegate.Cmdline)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return waitMain(gctx, proc)
	})
	g.Go(func() error {
		if err := s.waiter.Wait(gctx, delegate.Pid); err != nil {
			return errors.WithType(errors.Annotatef(err, "failed to wait for uninstaller's delegated process %d", delegate.Pid), cleanup.ErrWaitFailed)
		}
		return nil
	})
	return g.Wait()
}

func waitMain(ctx context.Context, proc Process) error {
	if err := proc.Wait(ctx); err != nil {
		return errors.WithType(errors.Annotatef(err, "failed to wait for main uninstaller process %d", proc.Pid()), cleanup.ErrWaitFailed)
	}
	return nil
}

package uninstall

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/shirou/gopsutil/v3/process"
)

// Process is a launched uninstaller.
type Process interface {
	Pid() int32
	// Wait blocks until the process exits or ctx is done. A non-zero exit
	// status is not an error.
	Wait(ctx context.Context) error
}

// Launcher starts uninstallers.
type Launcher interface {
	Launch(program string, args []string) (Process, error)
}

// ProcessInfo is one row of the live process table.
type ProcessInfo struct {
	Pid     int32
	Ppid    int32
	Cmdline string
}

// ProcessTable lists the direct children of a process.
type ProcessTable interface {
	Children(ctx context.Context, ppid int32) ([]ProcessInfo, error)
}

// ProcessWaiter waits for a process that was not started by us to exit.
type ProcessWaiter interface {
	Wait(ctx context.Context, pid int32) error
}

// ExecLauncher starts uninstallers with os/exec. The uninstaller keeps
// running when a wait on it is cancelled.
type ExecLauncher struct{}

func (ExecLauncher) Launch(program string, args []string) (Process, error) {
	cmd := exec.Command(program, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *execProcess) Pid() int32 {
	return int32(p.cmd.Process.Pid)
}

func (p *execProcess) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
	}
	var exitErr *exec.ExitError
	if errors.As(p.err, &exitErr) {
		log.Warn("uninstaller exited with non-zero status",
			"program", p.cmd.Path, "exitCode", exitErr.ExitCode())
		return nil
	}
	return errors.Trace(p.err)
}

// SystemProcessTable reads the process table through gopsutil.
type SystemProcessTable struct{}

func (SystemProcessTable) Children(ctx context.Context, ppid int32) ([]ProcessInfo, error) {
	parent, err := process.NewProcessWithContext(ctx, ppid)
	if errors.Is(err, process.ErrorProcessNotRunning) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "cannot open process %d", ppid)
	}

	procs, err := parent.ChildrenWithContext(ctx)
	if noChildren(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Annotatef(err, "cannot list children of process %d", ppid)
	}

	children := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		// Processes that exit or deny access mid-scan are skipped.
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil {
			continue
		}
		children = append(children, ProcessInfo{Pid: p.Pid, Ppid: ppid, Cmdline: cmdline})
	}
	return children, nil
}

// noChildren reports whether err only says that the process has no
// children. On unix the lookup shells out to pgrep, which exits 1 when
// nothing matches.
func noChildren(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, process.ErrorNoChildren) {
		return true
	}
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == 1
}

// findDelegate returns the first child of ppid whose command line mentions
// dir. A child that merely happens to reference dir is indistinguishable
// from a real delegate.
func findDelegate(ctx context.Context, table ProcessTable, ppid int32, dir string) (*ProcessInfo, error) {
	children, err := table.Children(ctx, ppid)
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return nil, nil
	}
	for _, c := range children {
		if strings.Contains(c.Cmdline, dir) {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

// poll calls check every interval until it reports done, fails, or ctx is
// done. ctx is only observed between checks.
func poll(ctx context.Context, clk clock.Clock, interval time.Duration, check func() (bool, error)) error {
	for {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.After(interval):
		}
	}
}

//go:build windows

package uninstall

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"golang.org/x/sys/windows"
)

// HandleWaiter waits on a process handle opened with SYNCHRONIZE access.
// The handle is polled with a zero timeout so the wait can be cancelled.
type HandleWaiter struct {
	clock    clock.Clock
	interval time.Duration
}

func NewHandleWaiter(clk clock.Clock, interval time.Duration) *HandleWaiter {
	return &HandleWaiter{clock: clk, interval: interval}
}

func (w *HandleWaiter) Wait(ctx context.Context, pid int32) error {
	h, err := windows.OpenProcess(windows.SYNCHRONIZE, false, uint32(pid))
	if err != nil {
		// The process has already exited.
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return nil
		}
		return errors.Annotatef(err, "cannot open process %d", pid)
	}
	defer windows.CloseHandle(h)

	return poll(ctx, w.clock, w.interval, func() (bool, error) {
		event, err := windows.WaitForSingleObject(h, 0)
		switch event {
		case windows.WAIT_OBJECT_0, windows.WAIT_ABANDONED:
			return true, nil
		case uint32(windows.WAIT_TIMEOUT):
			return false, nil
		default:
			if err == nil {
				err = errors.Errorf("unexpected wait result %#x", event)
			}
			return false, errors.Annotatef(err, "wait on process %d", pid)
		}
	})
}

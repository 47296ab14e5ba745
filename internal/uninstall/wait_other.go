//go:build !windows

package uninstall

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/shirou/gopsutil/v3/process"
)

// HandleWaiter polls the process table until pid is gone.
type HandleWaiter struct {
	clock    clock.Clock
	interval time.Duration
}

func NewHandleWaiter(clk clock.Clock, interval time.Duration) *HandleWaiter {
	return &HandleWaiter{clock: clk, interval: interval}
}

func (w *HandleWaiter) Wait(ctx context.Context, pid int32) error {
	return poll(ctx, w.clock, w.interval, func() (bool, error) {
		exists, err := process.PidExistsWithContext(ctx, pid)
		if err != nil {
			return false, errors.Annotatef(err, "wait on process %d", pid)
		}
		return !exists, nil
	})
}

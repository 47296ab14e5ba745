// Package workerpool runs independent tasks on a fixed number of goroutines.
package workerpool

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/juju/errors"

	"github.com/tabletdrivercleanup/tdc/internal/logging"
)

var log = logging.L("workerpool")

// ErrStopped is returned by Submit once the pool no longer accepts tasks.
const ErrStopped = errors.ConstError("worker pool stopped")

// Task is a unit of work. ctx is cancelled when the pool shuts down.
type Task func(ctx context.Context)

// Pool is a bounded goroutine pool with a fixed-size task queue.
type Pool struct {
	queue chan Task
	wg    sync.WaitGroup
	// mu is held shared while a task is enqueued and exclusively while
	// the pool stops accepting or closes the queue.
	mu        sync.RWMutex
	accepting atomic.Bool
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a pool with workers goroutines and a task queue of queueSize.
func New(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:  make(chan Task, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	p.accepting.Store(true)

	for i := 0; i < workers; i++ {
		go p.worker()
	}
	log.Debug("worker pool started", "workers", workers, "queueSize", queueSize)
	return p
}

// Context is cancelled once Shutdown returns.
func (p *Pool) Context() context.Context {
	return p.ctx
}

// Submit enqueues a task without blocking. It fails with ErrStopped after
// Shutdown and with a QuotaLimitExceeded error when the queue is full.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.accepting.Load() {
		return ErrStopped
	}

	// Add before enqueueing so Shutdown cannot miss the task.
	p.wg.Add(1)
	select {
	case p.queue <- task:
		return nil
	default:
		p.wg.Done()
		log.Warn("worker pool queue full, task rejected")
		return errors.QuotaLimitExceededf("worker pool queue")
	}
}

// Shutdown stops accepting tasks and waits for queued and running ones to
// finish, or for ctx to be done. Workers exit and the pool context is
// cancelled either way.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.accepting.Store(false)
	p.mu.Unlock()
	defer p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		log.Debug("worker pool drained")
	case <-ctx.Done():
		log.Warn("worker pool drain timed out")
		err = ctx.Err()
	}

	p.closeOnce.Do(func() {
		p.mu.Lock()
		close(p.queue)
		p.mu.Unlock()
	})
	return err
}

func (p *Pool) worker() {
	for task := range p.queue {
		p.runTask(task)
	}
}

// runTask executes a single task with panic recovery.
func (p *Pool) runTask(task Task) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	task(p.ctx)
}

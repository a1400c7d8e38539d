// Package workerpool provides the fixed goroutine pool on which plugin
// handlers execute. Dispatch at the boundary is synchronous, so Do blocks
// the caller until its task completes, but running tasks on pool workers
// keeps handler panics contained and bounds handler parallelism to the
// configured worker count.
package workerpool

import (
	"context"
	"sync"
	"time"

	derrors "github.com/gobridge-dev/gobridge/domain/errors"
)

// Task is a unit of work executed on a pool worker.
type Task func(ctx context.Context) ([]byte, error)

type result struct {
	data []byte
	err  error
}

type job struct {
	ctx  context.Context
	fn   Task
	done chan result
}

// Pool is a fixed set of worker goroutines. Workers never die: panics in
// tasks are recovered and returned as handler errors.
//
// Submission is lock-free: Do and Close coordinate through the shutdown
// channel, so a caller queued behind busy workers can never block Close
// from stopping intake and applying its deadline.
type Pool struct {
	jobs      chan job
	shutdown  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New starts a pool with the given number of workers. A non-positive
// count is coerced to 1.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{jobs: make(chan job), shutdown: make(chan struct{})}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case j := <-p.jobs:
			j.done <- runTask(j.ctx, j.fn)
		case <-p.shutdown:
			return
		}
	}
}

// runTask executes fn, converting a panic into a handler error so the
// worker goroutine survives.
func runTask(ctx context.Context, fn Task) (res result) {
	defer func() {
		if r := recover(); r != nil {
			res = result{err: derrors.HandlerPanic(r)}
		}
	}()
	data, err := fn(ctx)
	return result{data: data, err: err}
}

// Do submits fn and blocks until it completes or ctx is done. When ctx
// expires after submission the task is abandoned: the worker still runs
// it to completion, but the result is discarded. A Do call still waiting
// for a worker when the pool closes fails with the closed-pool error
// instead of blocking shutdown.
func (p *Pool) Do(ctx context.Context, fn Task) ([]byte, error) {
	j := job{ctx: ctx, fn: fn, done: make(chan result, 1)}

	select {
	case p.jobs <- j:
	case <-p.shutdown:
		return nil, derrors.New(derrors.CodeInvalidState, "worker pool is closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-j.done:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops intake immediately and waits up to timeout for workers to
// finish their current tasks. Stragglers past the deadline are abandoned,
// not killed; their workers exit once the task returns. Close is
// idempotent.
func (p *Pool) Close(timeout time.Duration) error {
	p.closeOnce.Do(func() { close(p.shutdown) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return derrors.New(derrors.CodeShutdown, "worker pool drain timed out")
	}
}

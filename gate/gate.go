// Package gate provides the concurrency gate that admission-controls
// plugin request dispatch. Admission never blocks: a request either takes
// a permit immediately or is shed, and shedding is counted so hosts can
// observe pressure.
package gate

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// Gate bounds the number of in-flight operations. A limit of 0 means
// unlimited: every acquire succeeds and nothing is ever rejected.
//
// All methods are safe for concurrent use.
type Gate struct {
	sem      *semaphore.Weighted // nil when unlimited
	limit    int
	inFlight atomic.Int64
	rejected atomic.Uint64
}

// New creates a Gate admitting at most maxConcurrentOps simultaneous
// operations, or unlimited when maxConcurrentOps is 0.
func New(maxConcurrentOps int) *Gate {
	g := &Gate{limit: maxConcurrentOps}
	if maxConcurrentOps > 0 {
		g.sem = semaphore.NewWeighted(int64(maxConcurrentOps))
	}
	return g
}

// TryAcquire takes a permit without blocking. When the gate is full it
// increments the rejection counter and returns false; the caller must
// shed the request. Every successful acquire must be paired with exactly
// one Release.
func (g *Gate) TryAcquire() bool {
	if g.sem != nil && !g.sem.TryAcquire(1) {
		g.rejected.Add(1)
		return false
	}
	g.inFlight.Add(1)
	return true
}

// Release returns a permit taken by a successful TryAcquire.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	if g.sem != nil {
		g.sem.Release(1)
	}
}

// Limit returns the configured cap; 0 means unlimited.
func (g *Gate) Limit() int {
	return g.limit
}

// InFlight returns the number of permits currently held.
func (g *Gate) InFlight() int64 {
	return g.inFlight.Load()
}

// Rejected returns the number of acquisitions refused since the gate was
// created. The counter is monotonic and never reset.
func (g *Gate) Rejected() uint64 {
	return g.rejected.Load()
}

// Drain blocks until no permits are held or ctx is done. It does not stop
// new acquisitions; callers gate those separately (the runtime flips the
// lifecycle state to Stopping before draining).
func (g *Gate) Drain(ctx context.Context) error {
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, int64(g.limit)); err != nil {
			return err
		}
		g.sem.Release(int64(g.limit))
		return nil
	}

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		if g.inFlight.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

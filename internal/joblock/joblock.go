package joblock

import (
    "context"
    "errors"
    "sync"
    "time"
)

// ErrTimeout is returned when the lock was not acquired within the bound.
// Callers treat it as retryable: the job goes back to the queue instead of
// failing.
var ErrTimeout = errors.New("joblock: acquire timed out")

// Guard serializes result commits per job id. Two workers finishing pages of
// the same job must not interleave their read-modify-write of the job result.
type Guard struct {
    timeout time.Duration

    mu    sync.Mutex
    locks map[string]*entry
}

type entry struct {
    ch   chan struct{} // capacity 1, holding the token means holding the lock
    refs int
}

func New(timeout time.Duration) *Guard {
    if timeout <= 0 { timeout = 30 * time.Second }
    return &Guard{timeout: timeout, locks: map[string]*entry{}}
}

// Acquire blocks until the job's lock is held, the bound elapses, or ctx is
// done. On success it returns a release function; release must always be
// called, typically deferred immediately.
func (g *Guard) Acquire(ctx context.Context, jobID string) (func(), error) {
    g.mu.Lock()
    e, ok := g.locks[jobID]
    if !ok {
        e = &entry{ch: make(chan struct{}, 1)}
        g.locks[jobID] = e
    }
    e.refs++
    g.mu.Unlock()

    timer := time.NewTimer(g.timeout)
    defer timer.Stop()

    select {
    case e.ch <- struct{}{}:
        return func() { g.release(jobID, e) }, nil
    case <-timer.C:
        g.drop(jobID, e)
        return nil, ErrTimeout
    case <-ctx.Done():
        g.drop(jobID, e)
        return nil, ctx.Err()
    }
}

func (g *Guard) release(jobID string, e *entry) {
    <-e.ch
    g.drop(jobID, e)
}

// drop decrements the entry's refcount and prunes it from the map once no
// goroutine references it, so finished jobs do not leak entries.
func (g *Guard) drop(jobID string, e *entry) {
    g.mu.Lock()
    e.refs--
    if e.refs <= 0 {
        delete(g.locks, jobID)
    }
    g.mu.Unlock()
}

// Len reports the live entry count, for metrics.
func (g *Guard) Len() int {
    g.mu.Lock()
    defer g.mu.Unlock()
    return len(g.locks)
}

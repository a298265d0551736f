// Package scheduler abstracts timer-driven work so retry backoff and
// periodic loops are deterministic under test.
package scheduler

import (
	"context"
	"sync"
	"time"
)

// Cancel stops a pending callback. Calling it after the callback ran is a
// no-op.
type Cancel func()

// Scheduler schedules future work.
type Scheduler interface {
	// After runs fn once after d elapses.
	After(d time.Duration, fn func()) Cancel
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the production Scheduler over time.Timer.
type Real struct{}

// New creates the production scheduler.
func New() *Real { return &Real{} }

// After implements Scheduler.
func (*Real) After(d time.Duration, fn func()) Cancel {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Sleep implements Scheduler.
func (*Real) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fake is a manually advanced Scheduler for tests. Nothing fires until
// Advance moves the clock.
type Fake struct {
	mu      sync.Mutex
	now     time.Duration
	pending []*fakeTimer
	nextID  int
}

type fakeTimer struct {
	id       int
	deadline time.Duration
	fn       func()
	done     chan struct{}
}

// NewFake creates a fake scheduler with the clock at zero.
func NewFake() *Fake { return &Fake{} }

// After implements Scheduler.
func (f *Fake) After(d time.Duration, fn func()) Cancel {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	t := &fakeTimer{id: f.nextID, deadline: f.now + d, fn: fn}
	f.pending = append(f.pending, t)

	timerID := t.id
	return func() { f.cancel(timerID) }
}

// Sleep implements Scheduler. It blocks until Advance passes the deadline or
// ctx is done.
func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	done := make(chan struct{})

	f.mu.Lock()
	f.nextID++
	t := &fakeTimer{id: f.nextID, deadline: f.now + d, done: done}
	f.pending = append(f.pending, t)
	timerID := t.id
	f.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		f.cancel(timerID)
		return ctx.Err()
	}
}

func (f *Fake) cancel(timerID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.pending {
		if t.id == timerID {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			return
		}
	}
}

// Advance moves the clock forward and fires every timer whose deadline has
// passed, in deadline order. Callbacks run on the caller's goroutine.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now += d

	var fired []*fakeTimer
	var remaining []*fakeTimer
	for _, t := range f.pending {
		if t.deadline <= f.now {
			fired = append(fired, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	f.pending = remaining
	f.mu.Unlock()

	for i := range fired {
		for j := i + 1; j < len(fired); j++ {
			if fired[j].deadline < fired[i].deadline {
				fired[i], fired[j] = fired[j], fired[i]
			}
		}
	}
	for _, t := range fired {
		if t.done != nil {
			close(t.done)
		}
		if t.fn != nil {
			t.fn()
		}
	}
}

// PendingCount reports how many timers are waiting. Useful for asserting a
// retry was scheduled without advancing the clock.
func (f *Fake) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Package feedback implements the Feedback Inbox (C4): a per-job
// single-slot rendezvous the orchestrator suspends on while a HITL
// checkpoint is open, per the design note in spec.md §9 — a blocking
// rendezvous with timeout, not an exception or ambient coroutine.
package feedback

import (
	"sync"
	"time"
)

// Value is what a publish delivers to the waiting stage.
type Value struct {
	Text string
	Skip bool
}

// slot is one job's mailbox. Reset and PublishFeedback both hold mu while
// touching pending/waiting, so a reset always happens-before (or after) a
// concurrent publish rather than racing it — the ordering guarantee
// spec.md §4.2 requires falls out of that serialization.
type slot struct {
	mu      sync.Mutex
	pending *Value
	waiting chan Value
}

// Inbox holds one slot per job that currently has an open checkpoint.
// Slots are created lazily on first use and left in place for the life of
// the job; spec.md §3 only requires them to exist "for the duration of one
// orchestration", so a process restart losing in-flight slots is expected
// (see SPEC_FULL.md §6.2).
type Inbox struct {
	mu    sync.Mutex
	slots map[int64]*slot
}

func New() *Inbox {
	return &Inbox{slots: make(map[int64]*slot)}
}

func (in *Inbox) slotFor(jobID int64) *slot {
	in.mu.Lock()
	defer in.mu.Unlock()
	s, ok := in.slots[jobID]
	if !ok {
		s = &slot{}
		in.slots[jobID] = s
	}
	return s
}

// Reset discards any pending value and detaches any stale waiter, so a
// publish left over from a prior stage's interrupt cannot satisfy the
// next Await. Called at stage entry, before Await, per spec.md §4.2.
func (in *Inbox) Reset(jobID int64) {
	s := in.slotFor(jobID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.waiting = nil
}

// PublishFeedback stores exactly one pending value. If a waiter is already
// blocked in Await it is woken directly; otherwise the value is held until
// the next Await call for this job. A second publish before consumption
// replaces the first (last-writer-wins, acceptable per spec.md §4.2 since
// the UI only sends one response per interrupt).
func (in *Inbox) PublishFeedback(jobID int64, value Value) {
	s := in.slotFor(jobID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.waiting != nil {
		select {
		case s.waiting <- value:
			s.waiting = nil
			return
		default:
			// a value is already in flight to the waiter; fall through and
			// hold this one as pending instead (still last-writer-wins).
		}
	}
	v := value
	s.pending = &v
}

// AwaitFeedback blocks until a value is published for jobID or timeout
// elapses, returning {Skip: true} on timeout per spec.md §4.2. Only one
// waiter per job is meaningful; the orchestrator never runs two stages of
// the same job concurrently (invariant I6), so this is never contended in
// practice.
func (in *Inbox) AwaitFeedback(jobID int64, timeout time.Duration) Value {
	s := in.slotFor(jobID)

	s.mu.Lock()
	if s.pending != nil {
		v := *s.pending
		s.pending = nil
		s.mu.Unlock()
		return v
	}
	ch := make(chan Value, 1)
	s.waiting = ch
	s.mu.Unlock()

	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		s.mu.Lock()
		if s.waiting == ch {
			s.waiting = nil
		}
		s.mu.Unlock()
		return Value{Skip: true}
	}
}

// Close drops a job's slot once the orchestration finishes, so a
// long-running process doesn't accumulate one slot per completed job
// forever.
func (in *Inbox) Close(jobID int64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	delete(in.slots, jobID)
}

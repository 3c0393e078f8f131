// Package delegation implements sub-agent delegation orchestration: an
// initiator agent hands a task to another agent in its workflow, which
// executes asynchronously in its own conversation. The initiator then
// checks, extends, or cancels that work without blocking its own turn.
package delegation

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Delegation is one outstanding unit of delegated work. Identity fields
// are immutable after creation; the attempt state (task, cancel handle,
// done channel, settled flag) is guarded by mu and owned by the engine.
type Delegation struct {
	ID             string
	ConversationID string
	DelegatorID    string
	DelegateID     string
	DelegateName   string
	WorkflowID     string
	StartedAt      time.Time

	mu        sync.Mutex
	gen       uint64
	task      string
	cancel    func()
	done      chan struct{}
	settled   bool
	settledAt time.Time
	lastErr   string
}

var delegationSeq atomic.Uint64

// newDelegationID generates a process-unique, roughly time-ordered id.
func newDelegationID() string {
	return fmt.Sprintf("del-%d-%d", time.Now().UnixMilli(), delegationSeq.Add(1))
}

// beginAttempt arms the delegation for a fresh execution attempt. The
// previous cancel handle and done channel are replaced, never reused.
// The returned generation ties the attempt's eventual settle call to
// this arming, so a superseded attempt cannot settle its successor.
func (d *Delegation) beginAttempt(task string, cancel func(), done chan struct{}) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	d.task = task
	d.cancel = cancel
	d.done = done
	d.settled = false
	d.lastErr = ""
	return d.gen
}

// settle marks attempt gen finished. errMsg is empty on success. A
// settle from a superseded attempt is ignored.
func (d *Delegation) settle(gen uint64, errMsg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.gen {
		return
	}
	d.settled = true
	d.settledAt = time.Now()
	d.lastErr = errMsg
}

// abort cancels the in-flight attempt, if any.
func (d *Delegation) abort() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Settled reports whether the current attempt has finished.
func (d *Delegation) Settled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settled
}

// Done returns the settlement channel for the current attempt. It is
// closed when the attempt settles; a later continue swaps in a new one.
func (d *Delegation) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

// Task returns the most recent request text sent to the delegate.
func (d *Delegation) Task() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.task
}

// LastError returns the failure message from the most recent attempt,
// or "" if it succeeded or is still running.
func (d *Delegation) LastError() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// expired reports whether the delegation has settled and outlived the
// retention window.
func (d *Delegation) expired(retention time.Duration, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settled && now.Sub(d.settledAt) > retention
}

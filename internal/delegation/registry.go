package delegation

import (
	"sync"
	"time"
)

// procRegistry is the process-wide delegation table. It is created once
// at process start and never reset, so in-flight delegations survive
// reconfiguration of the packages that reference them.
var procRegistry = newRegistry()

// registry maps delegation id to entry. All map access goes through the
// mutex; start's duplicate-check-then-insert is a single critical
// section so two concurrent starts cannot both pass the check.
type registry struct {
	mu      sync.Mutex
	entries map[string]*Delegation
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*Delegation)}
}

// insert adds d unless a non-settled delegation already exists between
// the same delegator and delegate. Returns the conflicting entry if so.
func (r *registry) insert(d *Delegation) (conflict *Delegation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.DelegatorID == d.DelegatorID && e.DelegateID == d.DelegateID && !e.Settled() {
			return e
		}
	}
	r.entries[d.ID] = d
	return nil
}

// active returns the non-settled delegation between delegator and
// delegate, if one exists.
func (r *registry) active(delegatorID, delegateID string) *Delegation {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.DelegatorID == delegatorID && e.DelegateID == delegateID && !e.Settled() {
			return e
		}
	}
	return nil
}

func (r *registry) get(id string) *Delegation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id]
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// listByDelegator snapshots the delegator's entries. As a side effect
// it evicts the delegator's settled entries older than retention; other
// delegators' entries are never touched by this call.
func (r *registry) listByDelegator(delegatorID string, retention time.Duration) []*Delegation {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var out []*Delegation
	for id, e := range r.entries {
		if e.DelegatorID != delegatorID {
			continue
		}
		if e.expired(retention, now) {
			delete(r.entries, id)
			continue
		}
		out = append(out, e)
	}
	return out
}

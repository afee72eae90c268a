// Package notify tracks per-item completion events. Every item id
// handed to a client gets a one-shot event created before the id
// escapes, so a wait can never race the item's creation. Events are
// garbage-collected a bounded time after signaling; a wait on an
// unknown id therefore reports the item as already completed.
package notify

import (
	"context"
	"sync"
	"time"
)

// DefaultCleanupDelay bounds how long a signaled event stays around
// for late waiters.
const DefaultCleanupDelay = 60 * time.Second

// Registry maps item ids to one-shot completion events.
type Registry struct {
	mu     sync.Mutex
	events map[string]chan struct{}
	timers map[string]*time.Timer
	closed bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		events: make(map[string]chan struct{}),
		timers: make(map[string]*time.Timer),
	}
}

// Create registers an event for id. Must be called before id is
// returned to any client. Creating an existing id is a no-op.
func (r *Registry) Create(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if _, ok := r.events[id]; !ok {
		r.events[id] = make(chan struct{})
	}
}

// Signal fires the event for id. Idempotent; unknown ids are ignored.
func (r *Registry) Signal(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.events[id]
	if !ok {
		return
	}
	select {
	case <-ch:
		// already signaled
	default:
		close(ch)
	}
}

// Wait blocks until the event for id fires, the timeout elapses, or
// ctx is done. An unknown id means the event was already signaled and
// cleaned up (or never existed); either way the caller's item is not
// coming back, so Wait reports completed.
func (r *Registry) Wait(ctx context.Context, id string, timeout time.Duration) bool {
	r.mu.Lock()
	ch, ok := r.events[id]
	r.mu.Unlock()

	if !ok {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Cleanup drops the event for id after the delay, bounding memory for
// items nobody waits on. Call after Signal.
func (r *Registry) Cleanup(id string, after time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if t, ok := r.timers[id]; ok {
		t.Stop()
	}
	r.timers[id] = time.AfterFunc(after, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.events, id)
		delete(r.timers, id)
	})
}

// Len returns the number of live events.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Close stops all pending cleanup timers and drops every event.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	for id := range r.events {
		delete(r.events, id)
	}
}

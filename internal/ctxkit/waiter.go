// Package ctxkit provides a small waiter/abort-handle primitive for a state
// machine that needs to wake a set of blocked callers atomically under a
// lock (spec.md §5, "Coroutine
// waiters": an AbortHandle pair per waiter; wait(waiter, snapshot) awaits
// abort and returns the post-hoc state so callers never observe a pending
// state post-wake). Grounded on the session package's own ad hoc
// chan-Result waiter list (internal/session/session.go), generalized here.
// No other package in the module imports it; session keeps its own list.
package ctxkit

import (
	"context"
	"sync"
)

// WaiterSet is a set of blocked callers waiting on some external state
// transition, guarded by an external lock (the owner's own mutex). It is
// intentionally not safe to use concurrently with itself; callers must
// already hold the lock that protects the state being waited on.
type WaiterSet[T any] struct {
	waiters []chan T
}

// Add registers a new waiter and returns the channel it will receive on.
// Must be called with the owner's lock held.
func (w *WaiterSet[T]) Add() <-chan T {
	ch := make(chan T, 1)
	w.waiters = append(w.waiters, ch)
	return ch
}

// WakeAll delivers value to every registered waiter and clears the set.
// Must be called with the owner's lock held (or after releasing it, so long
// as no new waiters can be observed mid-wake by the caller's own protocol).
func (w *WaiterSet[T]) WakeAll(value T) {
	for _, ch := range w.waiters {
		ch <- value
	}
	w.waiters = nil
}

// Len reports the number of currently registered waiters.
func (w *WaiterSet[T]) Len() int {
	return len(w.waiters)
}

// Wait blocks on ch until it fires or ctx ends. It never observes a
// pending/in-progress state: the value on ch is always a post-hoc snapshot
// taken by the wakeup side under lock.
func Wait[T any](ctx context.Context, ch <-chan T) (T, error) {
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Broadcast is a simple one-shot condition variable usable without a
// generic payload: Done() closes once; every waiter blocked in Wait wakes.
// Used where the "value" delivered on wake is irrelevant and the state
// itself should be re-read by the waiter after waking (e.g. a cache ready
// signal shared by many readers).
type Broadcast struct {
	mu   sync.Mutex
	ch   chan struct{}
	done bool
}

// NewBroadcast returns a Broadcast ready to be waited on.
func NewBroadcast() *Broadcast {
	return &Broadcast{ch: make(chan struct{})}
}

// Fire closes the broadcast channel, waking every current and future Wait
// call. Idempotent.
func (b *Broadcast) Fire() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.done = true
	close(b.ch)
}

// Wait blocks until Fire is called or ctx ends.
func (b *Broadcast) Wait(ctx context.Context) error {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package event provides a one-shot signal that is delivered to at most one
// consumer.
package event

import "sync/atomic"

// Event carries a payload that can be consumed exactly once. Later consumers
// observe nothing, so re-subscribing after a consumer has handled the event
// does not repeat its side effects.
type Event[T any] struct {
	payload  T
	consumed atomic.Bool
}

// New returns an unconsumed Event holding payload.
func New[T any](payload T) *Event[T] {
	return &Event[T]{payload: payload}
}

// Consume returns the payload and true on the first call, and the zero value
// and false on every call after that. A nil Event has nothing to consume.
func (e *Event[T]) Consume() (T, bool) {
	if e == nil || !e.consumed.CompareAndSwap(false, true) {
		var zero T
		return zero, false
	}
	return e.payload, true
}

// Peek returns the payload regardless of whether it was consumed.
func (e *Event[T]) Peek() T {
	if e == nil {
		var zero T
		return zero
	}
	return e.payload
}

// Consumed reports whether the payload has been handed out.
func (e *Event[T]) Consumed() bool {
	return e != nil && e.consumed.Load()
}

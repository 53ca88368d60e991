// Package handler provides handler registrations and the priority-ordered
// registry that resolves which handlers receive an event.
package handler

import (
	"context"
	"time"

	"github.com/domulab/pulse/event"
)

// Wildcard is the reserved event type matching every emitted event.
const Wildcard = "*"

// Func is a synchronous handler. It must not block; blocking work belongs
// in an AsyncFunc, which the sync-only emit path knows to skip.
type Func func(e event.Event)

// AsyncFunc is an asynchronous handler. The full emit path awaits its
// completion before the next handler in priority order runs.
type AsyncFunc func(ctx context.Context, e event.Event) error

// Filter decides whether a handler runs for a given event. A handler whose
// filter returns false is skipped and, for once-handlers, not consumed.
type Filter func(e event.Event) bool

// Entry is a single handler registration. Two registrations with the same
// event type and callback are distinct entities with distinct IDs;
// duplicate subscription is legal and produces duplicate invocation.
type Entry struct {
	// ID uniquely identifies this registration. Caller-opaque.
	ID string

	// EventType is the subscribed type, or Wildcard for all events.
	EventType string

	// Priority orders invocation: higher runs earlier. Ties are broken by
	// registration order, earliest first.
	Priority int

	// Once marks the registration one-shot: the bus claims (removes) it
	// at its first unfiltered invocation, so it runs at most once even
	// across concurrent emits. A filtered-out invocation does not
	// consume it.
	Once bool

	// Filter, when set, gates invocation per event.
	Filter Filter

	// Timeout, when positive, bounds a single invocation. Enforced by the
	// bus via context deadline on async handlers.
	Timeout time.Duration

	fn      Func
	asyncFn AsyncFunc
}

// IsAsync reports whether this registration holds an async handler.
func (e *Entry) IsAsync() bool { return e.asyncFn != nil }

// Invoke calls the underlying handler. Synchronous handlers ignore the
// context and always return nil.
func (e *Entry) Invoke(ctx context.Context, evt event.Event) error {
	if e.asyncFn != nil {
		return e.asyncFn(ctx, evt)
	}
	e.fn(evt)
	return nil
}

// Option configures a registration at subscribe time.
type Option func(*Entry)

// WithPriority sets the invocation priority (default 0, higher earlier).
func WithPriority(p int) Option {
	return func(e *Entry) { e.Priority = p }
}

// Once marks the registration as one-shot: consumed at its first
// unfiltered invocation.
func Once() Option {
	return func(e *Entry) { e.Once = true }
}

// WithFilter gates invocation on a per-event predicate.
func WithFilter(f Filter) Option {
	return func(e *Entry) { e.Filter = f }
}

// WithTimeout bounds a single async invocation with a context deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Entry) { e.Timeout = d }
}

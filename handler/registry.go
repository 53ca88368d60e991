package handler

import (
	"fmt"
	"sort"

	"github.com/domulab/pulse/id"
)

// Registry maps event types to priority-ordered handler lists, with a
// dedicated list for wildcard registrations. The split keeps the common
// case (no wildcard subscribers) cheap while still letting wildcard and
// specific handlers interleave correctly by priority at resolve time.
//
// Registry is not safe for concurrent use on its own. The bus serializes
// all registry access under its single mutual-exclusion domain.
type Registry struct {
	byType   map[string][]*Entry
	wildcard []*Entry
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string][]*Entry)}
}

// Subscribe registers a synchronous handler and returns its registration
// ID. It never fails; a nil handler is a programming error and panics.
func (r *Registry) Subscribe(eventType string, fn Func, opts ...Option) string {
	if fn == nil {
		panic("handler: nil handler func")
	}
	return r.insert(&Entry{EventType: eventType, fn: fn}, opts)
}

// SubscribeAsync registers an asynchronous handler and returns its
// registration ID.
func (r *Registry) SubscribeAsync(eventType string, fn AsyncFunc, opts ...Option) string {
	if fn == nil {
		panic("handler: nil async handler func")
	}
	return r.insert(&Entry{EventType: eventType, asyncFn: fn}, opts)
}

func (r *Registry) insert(e *Entry, opts []Option) string {
	for _, opt := range opts {
		opt(e)
	}
	e.ID = id.NewSubscriptionID().String()

	if e.EventType == Wildcard {
		r.wildcard = append(r.wildcard, e)
		sortEntries(r.wildcard)
	} else {
		r.byType[e.EventType] = append(r.byType[e.EventType], e)
		sortEntries(r.byType[e.EventType])
	}
	return e.ID
}

// Unsubscribe removes the registration with the given ID. Returns false
// when no registration matches; an unknown ID is a no-op, never an error.
func (r *Registry) Unsubscribe(subscriptionID string) bool {
	for eventType, entries := range r.byType {
		for i, e := range entries {
			if e.ID == subscriptionID {
				r.byType[eventType] = append(entries[:i:i], entries[i+1:]...)
				return true
			}
		}
	}
	for i, e := range r.wildcard {
		if e.ID == subscriptionID {
			r.wildcard = append(r.wildcard[:i:i], r.wildcard[i+1:]...)
			return true
		}
	}
	return false
}

// Resolve returns the handlers for an event type: the specific list merged
// with the wildcard list, re-sorted by priority descending with stable
// tie-break. The returned slice is a fresh copy; callers may iterate it
// while the registry mutates.
func (r *Registry) Resolve(eventType string) []*Entry {
	specific := r.byType[eventType]
	merged := make([]*Entry, 0, len(specific)+len(r.wildcard))
	merged = append(merged, specific...)
	merged = append(merged, r.wildcard...)
	sortEntries(merged)
	return merged
}

// Clear removes all registrations.
func (r *Registry) Clear() {
	r.byType = make(map[string][]*Entry)
	r.wildcard = nil
}

// Count returns the number of registrations for an event type. An empty
// string counts everything; Wildcard counts only the wildcard list.
func (r *Registry) Count(eventType string) int {
	switch eventType {
	case "":
		total := len(r.wildcard)
		for _, entries := range r.byType {
			total += len(entries)
		}
		return total
	case Wildcard:
		return len(r.wildcard)
	default:
		return len(r.byType[eventType])
	}
}

// String implements fmt.Stringer for debug logging.
func (r *Registry) String() string {
	return fmt.Sprintf("handler.Registry{types: %d, wildcard: %d}", len(r.byType), len(r.wildcard))
}

// sortEntries orders by priority descending. The sort is stable, so equal
// priorities keep their insertion order.
func sortEntries(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Priority > entries[j].Priority
	})
}

package event

import "sync"

// Decoder revives a typed event from a wire record. Returning an error
// makes the caller fall back to a Generic event.
type Decoder func(Record) (Event, error)

// Registry maps event type names to decoders. It is bus-instance-scoped
// state, not a process-wide global, so independent bus instances stay
// isolated and testable. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	decoders map[string]Decoder
}

// NewRegistry creates an empty decoder registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[string]Decoder)}
}

// Register installs a decoder for an event type, replacing any previous
// decoder for the same type.
func (r *Registry) Register(eventType string, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[eventType] = d
}

// Decode turns a wire record into an Event. A registered decoder is tried
// first; on a missing decoder or a decode error the record degrades to a
// Generic event rather than failing.
func (r *Registry) Decode(rec Record) Event {
	r.mu.RLock()
	d := r.decoders[rec.Type]
	r.mu.RUnlock()

	if d != nil {
		if e, err := d(rec); err == nil && e != nil {
			return e
		}
	}
	return FromRecord(rec)
}

// Package event defines the event capability contract, the wire record
// written to the durable log, and the generic event implementation used
// when no typed event is registered.
package event

import (
	"time"

	"github.com/domulab/pulse/id"
)

// Event is the capability contract the bus depends on. Any value exposing
// a type name, a unique ID, a creation timestamp, and a serializable
// payload can move through the bus; the dispatch core never depends on a
// concrete implementation.
type Event interface {
	// EventType returns the event type identifier (e.g., "device.light.on").
	EventType() string

	// EventID returns the unique identifier for this event instance.
	EventID() string

	// Timestamp returns the creation time as Unix seconds.
	Timestamp() float64

	// Payload returns the serializable data carried by the event.
	Payload() map[string]any
}

// Record is the unit persisted to the durable log and propagated across
// processes: one JSON object per line. Origin is stamped by the bus at
// emit time and identifies the writing process for loop suppression;
// it is never set by the event's creator.
type Record struct {
	Type      string         `json:"event_type"`
	Data      map[string]any `json:"data"`
	ID        string         `json:"id"`
	Timestamp float64        `json:"timestamp"`
	Origin    string         `json:"origin_process,omitempty"`
}

// Time converts the record's Unix-seconds timestamp to a time.Time.
func (r Record) Time() time.Time {
	sec := int64(r.Timestamp)
	nsec := int64((r.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// ToRecord converts any Event into its wire record. Origin is left empty;
// the bus stamps it during emit.
func ToRecord(e Event) Record {
	return Record{
		Type:      e.EventType(),
		Data:      e.Payload(),
		ID:        e.EventID(),
		Timestamp: e.Timestamp(),
	}
}

// Generic is a name-plus-data event for cases that don't need a typed
// event implementation. It is what bare-name emits are wrapped in and
// what externally-observed records decode to when no decoder is
// registered.
type Generic struct {
	Type string
	Data map[string]any

	id string
	ts float64
}

// NewGeneric creates a generic event with a fresh ID and the current time.
func NewGeneric(eventType string, data map[string]any) *Generic {
	if data == nil {
		data = map[string]any{}
	}
	return &Generic{
		Type: eventType,
		Data: data,
		id:   id.NewEventID().String(),
		ts:   now(),
	}
}

// FromRecord revives a generic event from a wire record, preserving the
// record's ID and timestamp. Missing fields are filled in the same way
// NewGeneric fills them.
func FromRecord(rec Record) *Generic {
	g := &Generic{
		Type: rec.Type,
		Data: rec.Data,
		id:   rec.ID,
		ts:   rec.Timestamp,
	}
	if g.Data == nil {
		g.Data = map[string]any{}
	}
	if g.id == "" {
		g.id = id.NewEventID().String()
	}
	if g.ts == 0 {
		g.ts = now()
	}
	return g
}

// EventType returns the event type identifier.
func (g *Generic) EventType() string { return g.Type }

// EventID returns the unique event instance ID.
func (g *Generic) EventID() string { return g.id }

// Timestamp returns the creation time as Unix seconds.
func (g *Generic) Timestamp() float64 { return g.ts }

// Payload returns the event data.
func (g *Generic) Payload() map[string]any { return g.Data }

func now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

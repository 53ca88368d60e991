// Package pulse provides an in-process publish/subscribe event bus with
// durable, cross-process event propagation over a shared append-only log.
//
// Pulse is designed as a library, not a service. Producers emit named
// events; subscribers register callbacks keyed by event type (or the "*"
// wildcard) with priority ordering, one-shot semantics, and predicate
// filtering. Events can additionally be appended to a write-ahead log so
// that a newly started process replays prior history and sibling
// processes sharing the same log file observe each other's events.
//
// # Quick Start
//
//	bus, err := pulse.New(
//	    pulse.WithWAL("events.jsonl"),
//	    pulse.WithHistoryLimit(1000),
//	)
//	if err != nil { ... }
//	if err := bus.Open(); err != nil { ... }
//	defer bus.Close()
//
//	bus.Subscribe("device.light.on", func(e event.Event) {
//	    fmt.Println("light on:", e.Payload())
//	})
//	bus.EmitName(ctx, "device.light.on", map[string]any{"brightness": 100})
//
// # Architecture
//
// Each subsystem lives in its own subpackage: event (capability contract
// and wire records), handler (priority-ordered registry), wal (durable
// log), watcher (cross-process tailing), middleware (delivery wrappers),
// backoff (watcher retry delays).
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package pulse

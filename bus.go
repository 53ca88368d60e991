package pulse

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/domulab/pulse/event"
	"github.com/domulab/pulse/handler"
	"github.com/domulab/pulse/id"
	"github.com/domulab/pulse/middleware"
	"github.com/domulab/pulse/wal"
)

// Bus is the central dispatch engine: it stamps and records emitted
// events, resolves handlers through the registry, and invokes them in
// priority order with error isolation.
//
// The history buffer, the handler registry, and the log handle share one
// mutual-exclusion domain. Handler invocation happens outside that
// critical section, so a slow handler never stalls concurrent
// subscribe/unsubscribe calls; it does serialize each emit's own
// record-and-persist step against other emits.
type Bus struct {
	cfg     Config
	logger  *slog.Logger
	errorCb ErrorCallback
	mws     []middleware.Middleware
	chain   middleware.Middleware

	mu       sync.Mutex
	registry *handler.Registry
	history  *historyBuffer
	log      *wal.Log
	watcher  syncWatcher
	opened   bool

	events *event.Registry
}

// New creates a Bus with the given options. The durable log (if
// configured) is not opened until Open.
func New(opts ...Option) (*Bus, error) {
	b := &Bus{
		cfg:      DefaultConfig(),
		logger:   slog.Default(),
		registry: handler.NewRegistry(),
		events:   event.NewRegistry(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	if b.cfg.ProcessID == "" {
		// Per-instance rather than per-OS-process identity: two bus
		// instances in one process must not suppress each other's
		// records when sharing a log.
		b.cfg.ProcessID = id.NewProcessID().String()
	}
	b.history = newHistoryBuffer(b.cfg.HistoryLimit)
	if b.cfg.WALPath != "" {
		b.log = wal.New(b.cfg.WALPath,
			wal.WithMaxEvents(b.cfg.MaxEvents),
			wal.WithFsync(b.cfg.Fsync),
			wal.WithLogger(b.logger),
		)
	}
	if len(b.mws) > 0 {
		b.chain = middleware.Chain(b.mws...)
	}
	return b, nil
}

// Logger returns the bus's logger.
func (b *Bus) Logger() *slog.Logger { return b.logger }

// ProcessID returns this bus's process identity as stamped on records.
func (b *Bus) ProcessID() string { return b.cfg.ProcessID }

// Config returns a copy of the bus's configuration.
func (b *Bus) Config() Config { return b.cfg }

// WAL returns the durable log, or nil when persistence is disabled.
func (b *Bus) WAL() *wal.Log { return b.log }

// Open opens the durable log (if configured) and replays its records
// into the history buffer. Safe to call on an already-open bus.
func (b *Bus) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.opened {
		return nil
	}
	if b.log != nil {
		if err := b.log.Open(); err != nil {
			return err
		}
		recs, err := b.log.Load()
		if err != nil {
			// Release the handle on the error path too.
			b.log.Close() //nolint:errcheck // load error takes precedence
			return err
		}
		for _, rec := range recs {
			b.history.append(rec)
		}
	}
	b.opened = true
	return nil
}

// Close stops cross-process sync if running and releases the log handle.
// Safe to call multiple times and on every exit path.
func (b *Bus) Close() error {
	b.StopSync()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = false
	if b.log != nil {
		return b.log.Close()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Subscription
// ──────────────────────────────────────────────────

// Subscribe registers a synchronous handler for an event type ("*" for
// all events) and returns its registration ID.
func (b *Bus) Subscribe(eventType string, fn handler.Func, opts ...handler.Option) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registry.Subscribe(eventType, fn, opts...)
}

// SubscribeAsync registers an asynchronous handler for an event type and
// returns its registration ID. The full emit path awaits its completion
// before the next handler runs; the sync-only path skips it.
func (b *Bus) SubscribeAsync(eventType string, fn handler.AsyncFunc, opts ...handler.Option) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registry.SubscribeAsync(eventType, fn, opts...)
}

// Unsubscribe removes a registration by ID. Returns false for an unknown
// ID, leaving all other registrations untouched.
func (b *Bus) Unsubscribe(subscriptionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registry.Unsubscribe(subscriptionID)
}

// ClearHandlers removes all registrations.
func (b *Bus) ClearHandlers() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registry.Clear()
}

// HandlerCount counts registrations: all of them for an empty event type,
// only the wildcard list for "*".
func (b *Bus) HandlerCount(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registry.Count(eventType)
}

// RegisterEventType installs a decoder used on the external-event path to
// revive typed events observed from sibling processes. Registry state is
// scoped to this bus instance.
func (b *Bus) RegisterEventType(eventType string, d event.Decoder) {
	b.events.Register(eventType, d)
}

// ──────────────────────────────────────────────────
// Emit
// ──────────────────────────────────────────────────

// Emit dispatches an event through the full path: the record is stamped
// with this process's identity, appended to history and the durable log,
// and handlers run in priority order — async handlers awaited
// sequentially, so priority order is completion order. Handler faults are
// isolated; only log I/O faults are returned.
func (b *Bus) Emit(ctx context.Context, e event.Event) error {
	if e == nil {
		return fmt.Errorf("pulse: emit nil event")
	}
	return b.dispatch(ctx, e, false)
}

// EmitName wraps a bare event name and data into a generic event and
// emits it through the full path.
func (b *Bus) EmitName(ctx context.Context, eventType string, data map[string]any) error {
	return b.Emit(ctx, event.NewGeneric(eventType, data))
}

// EmitSync dispatches an event through the sync-only path: asynchronous
// handlers are skipped entirely (neither invoked nor once-consumed).
func (b *Bus) EmitSync(e event.Event) error {
	if e == nil {
		return fmt.Errorf("pulse: emit nil event")
	}
	return b.dispatch(context.Background(), e, true)
}

// EmitSyncName wraps a bare event name and data into a generic event and
// emits it through the sync-only path.
func (b *Bus) EmitSyncName(eventType string, data map[string]any) error {
	return b.EmitSync(event.NewGeneric(eventType, data))
}

func (b *Bus) dispatch(ctx context.Context, e event.Event, syncOnly bool) error {
	rec := event.ToRecord(e)
	rec.Origin = b.cfg.ProcessID

	// Record-and-persist under a single critical section so concurrent
	// emits never interleave a half-written history/log pair. Resolution
	// is computed fresh each emit: registries mutate between emits.
	b.mu.Lock()
	b.history.append(rec)
	if b.log != nil {
		if err := b.log.Append(rec); err != nil {
			b.mu.Unlock()
			return err
		}
	}
	entries := b.registry.Resolve(rec.Type)
	b.mu.Unlock()

	b.run(ctx, e, entries, syncOnly)
	return nil
}

// dispatchExternal delivers a record observed from another process:
// appended to local history so it shows up in History, but never
// re-persisted — it already exists in the log, written by its origin.
// External events get the same ordered-await guarantee as local emits.
func (b *Bus) dispatchExternal(rec event.Record) {
	if rec.Type == "" {
		return
	}
	e := b.events.Decode(rec)

	b.mu.Lock()
	b.history.append(rec)
	entries := b.registry.Resolve(rec.Type)
	b.mu.Unlock()

	b.run(context.Background(), e, entries, false)
}

// run invokes the resolved handlers in order, honoring filters, sync-only
// skipping, once-claiming, and error isolation. The entries slice is a
// snapshot, so unsubscribing a claimed once-entry never mutates the list
// being iterated.
func (b *Bus) run(ctx context.Context, e event.Event, entries []*handler.Entry, syncOnly bool) {
	for _, entry := range entries {
		if syncOnly && entry.IsAsync() {
			continue
		}
		if entry.Filter != nil && !entry.Filter(e) {
			// A filtered-out once-handler is not consumed.
			continue
		}
		if entry.Once {
			// Claim before invoking: concurrent emits may both hold this
			// entry in their snapshots, and only the emit that wins the
			// unsubscribe invokes it.
			b.mu.Lock()
			claimed := b.registry.Unsubscribe(entry.ID)
			b.mu.Unlock()
			if !claimed {
				continue
			}
		}

		if err := b.invoke(ctx, e, entry); err != nil {
			if b.errorCb != nil {
				b.errorCb(err, e, entry)
			} else {
				b.logger.Debug("handler fault absorbed",
					slog.String("event_type", e.EventType()),
					slog.String("subscription_id", entry.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// invoke runs one handler through the middleware chain with panic
// isolation at the outermost boundary: a panicking handler (or
// middleware) degrades to a handler fault, never an aborted emit.
func (b *Bus) invoke(ctx context.Context, e event.Event, entry *handler.Entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pulse: handler panic on %s: %v", e.EventType(), r)
		}
	}()

	if entry.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, entry.Timeout)
		defer cancel()
	}

	terminal := func(ctx context.Context) error {
		return entry.Invoke(ctx, e)
	}
	if b.chain != nil {
		d := &middleware.Delivery{Event: e, Entry: entry}
		return b.chain(ctx, d, terminal)
	}
	return terminal(ctx)
}

// ──────────────────────────────────────────────────
// History
// ──────────────────────────────────────────────────

// History returns buffered records oldest first, filtered by exact event
// type (empty for all) and truncated to the last limit entries (zero for
// all). The buffer itself is never mutated by a query.
func (b *Bus) History(eventType string, limit int) []event.Record {
	b.mu.Lock()
	recs := b.history.snapshot()
	b.mu.Unlock()

	if eventType != "" {
		filtered := recs[:0]
		for _, rec := range recs {
			if rec.Type == eventType {
				filtered = append(filtered, rec)
			}
		}
		recs = filtered
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return recs
}

// ClearHistory empties the in-memory history buffer. The durable log is
// unaffected.
func (b *Bus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history.clear()
}

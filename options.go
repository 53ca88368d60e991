package pulse

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/domulab/pulse/event"
	"github.com/domulab/pulse/handler"
	"github.com/domulab/pulse/middleware"
)

// Option configures a Bus.
type Option func(*Bus) error

// ErrorCallback is invoked when a handler fails: it receives the failure,
// the event being processed, and the failing registration. Handler faults
// never abort an emit or affect sibling handlers; without a callback they
// are absorbed silently.
type ErrorCallback func(err error, e event.Event, entry *handler.Entry)

// WithHistoryLimit sets the in-memory history buffer capacity.
func WithHistoryLimit(n int) Option {
	return func(b *Bus) error {
		if n <= 0 {
			return fmt.Errorf("pulse: history limit must be positive, got %d", n)
		}
		b.cfg.HistoryLimit = n
		return nil
	}
}

// WithWAL enables durable persistence to the given log file path.
func WithWAL(path string) Option {
	return func(b *Bus) error {
		b.cfg.WALPath = path
		return nil
	}
}

// WithMaxEvents bounds how many records the durable log loads and keeps
// on compaction.
func WithMaxEvents(n int) Option {
	return func(b *Bus) error {
		if n <= 0 {
			return fmt.Errorf("pulse: max events must be positive, got %d", n)
		}
		b.cfg.MaxEvents = n
		return nil
	}
}

// WithFsync controls whether log appends block on stable storage.
// Enabled by default; disabling trades crash durability for emit latency.
func WithFsync(enabled bool) Option {
	return func(b *Bus) error {
		b.cfg.Fsync = enabled
		return nil
	}
}

// WithPollInterval sets the default watcher poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(b *Bus) error {
		if d <= 0 {
			return fmt.Errorf("pulse: poll interval must be positive, got %v", d)
		}
		b.cfg.PollInterval = d
		return nil
	}
}

// WithProcessID sets this bus's process identity, stamped on every
// locally-emitted record for cross-process loop suppression.
func WithProcessID(processID string) Option {
	return func(b *Bus) error {
		if processID == "" {
			return fmt.Errorf("pulse: process id must not be empty")
		}
		b.cfg.ProcessID = processID
		return nil
	}
}

// WithNotifySync selects the fsnotify-based watcher for cross-process
// sync instead of the polling default.
func WithNotifySync() Option {
	return func(b *Bus) error {
		b.cfg.NotifySync = true
		return nil
	}
}

// WithErrorCallback forwards handler faults to cb instead of absorbing
// them silently.
func WithErrorCallback(cb ErrorCallback) Option {
	return func(b *Bus) error {
		b.errorCb = cb
		return nil
	}
}

// WithLogger sets the structured logger for the bus and its subsystems.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) error {
		b.logger = logger
		return nil
	}
}

// WithMiddleware wraps every handler invocation with the given middleware
// chain, outermost first.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(b *Bus) error {
		b.mws = append(b.mws, mws...)
		return nil
	}
}

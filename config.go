package pulse

import "time"

// Config holds configuration for the Bus.
type Config struct {
	// HistoryLimit is the maximum number of records kept in the
	// in-memory history buffer; oldest records are evicted on overflow.
	HistoryLimit int

	// WALPath is the durable log file path. Empty disables persistence
	// and cross-process sync.
	WALPath string

	// MaxEvents bounds how many records the durable log loads and keeps
	// on compaction.
	MaxEvents int

	// Fsync forces each log append to stable storage before returning.
	Fsync bool

	// PollInterval is the default delay between watcher poll cycles.
	PollInterval time.Duration

	// ProcessID identifies this process in log records so the watcher
	// can suppress its own writes. Defaults to a fresh process TypeID.
	ProcessID string

	// NotifySync selects the fsnotify-based watcher instead of the
	// polling watcher for cross-process sync.
	NotifySync bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HistoryLimit: 1000,
		MaxEvents:    10000,
		Fsync:        true,
		PollInterval: 100 * time.Millisecond,
	}
}

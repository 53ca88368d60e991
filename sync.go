package pulse

import (
	"time"

	"github.com/domulab/pulse/event"
	"github.com/domulab/pulse/watcher"
)

// syncWatcher is the contract both watcher kinds satisfy.
type syncWatcher interface {
	Start() error
	Stop()
	Running() bool
}

// StartSync starts watching the durable log for records appended by
// sibling processes; matching records are dispatched to local handlers
// without re-persistence. Requires a configured WAL path. A non-positive
// pollInterval falls back to the configured default. Calling StartSync
// while syncing is a no-op; restarting after StopSync resets the
// watcher's remembered offset to the current file size.
func (b *Bus) StartSync(pollInterval time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.WALPath == "" {
		return ErrNoWAL
	}
	if b.watcher != nil && b.watcher.Running() {
		return nil
	}
	if pollInterval <= 0 {
		pollInterval = b.cfg.PollInterval
	}

	deliver := func(rec event.Record) { b.dispatchExternal(rec) }
	if b.cfg.NotifySync {
		b.watcher = watcher.NewNotifier(b.cfg.WALPath, b.cfg.ProcessID, deliver,
			watcher.WithNotifierLogger(b.logger),
		)
	} else {
		b.watcher = watcher.NewPoller(b.cfg.WALPath, b.cfg.ProcessID, deliver,
			watcher.WithInterval(pollInterval),
			watcher.WithLogger(b.logger),
		)
	}
	return b.watcher.Start()
}

// StopSync stops the watcher and waits for its loop to finish: no
// external delivery fires after StopSync returns. Idempotent.
func (b *Bus) StopSync() {
	b.mu.Lock()
	w := b.watcher
	b.watcher = nil
	b.mu.Unlock()

	// Stop outside the critical section: an in-flight delivery needs the
	// bus lock to complete, and Stop waits for it.
	if w != nil {
		w.Stop()
	}
}

// IsSyncing reports whether cross-process sync is active.
func (b *Bus) IsSyncing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.watcher != nil && b.watcher.Running()
}

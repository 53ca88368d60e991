package watcher

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Notifier watches the log file through OS file-change notification
// instead of polling. It keeps the Poller's offset-tracking and
// loop-suppression contract: only bytes past the remembered offset are
// read, and records originating from the local process are suppressed.
//
// The watch is registered on the log's parent directory so that events
// keep arriving when the log file is created, cleared, or compacted while
// watching; a shrink resets the remembered offset to the new end of file.
type Notifier struct {
	tail

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	fsw     *fsnotify.Watcher
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithNotifierLogger sets the structured logger for the notifier.
func WithNotifierLogger(logger *slog.Logger) NotifierOption {
	return func(n *Notifier) { n.logger = logger }
}

// NewNotifier creates a notification-based watcher for the given log
// path. Records whose origin matches processID are suppressed.
func NewNotifier(path, processID string, deliver DeliverFunc, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		tail: tail{
			path:      filepath.Clean(path),
			processID: processID,
			deliver:   deliver,
			logger:    slog.Default(),
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Start begins watching. The remembered offset resets to the current file
// size. Starting a running notifier is a no-op; restart after Stop is
// legal.
func (n *Notifier) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("pulse/watcher: create notifier: %w", err)
	}
	if err := fsw.Add(filepath.Dir(n.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("pulse/watcher: watch %s: %w", filepath.Dir(n.path), err)
	}

	n.rewind()
	n.fsw = fsw
	n.stopCh = make(chan struct{})
	n.running = true

	n.wg.Add(1)
	go n.loop(fsw, n.stopCh)

	n.logger.Debug("watcher: notifier started", slog.String("path", n.path))
	return nil
}

// Stop cancels the watch and waits for the loop to finish: no delivery
// callback fires after Stop returns. Idempotent.
func (n *Notifier) Stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	stopCh := n.stopCh
	fsw := n.fsw
	n.fsw = nil
	n.mu.Unlock()

	close(stopCh)
	fsw.Close()
	n.wg.Wait()
	n.logger.Debug("watcher: notifier stopped", slog.String("path", n.path))
}

// Running reports whether the watch loop is active.
func (n *Notifier) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

func (n *Notifier) loop(fsw *fsnotify.Watcher, stopCh chan struct{}) {
	defer n.wg.Done()

	for {
		select {
		case <-stopCh:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != n.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := n.drain(); err != nil {
				n.logger.Debug("watcher: drain failed",
					slog.String("path", n.path),
					slog.String("error", err.Error()),
				)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			n.logger.Debug("watcher: notify error",
				slog.String("path", n.path),
				slog.String("error", err.Error()),
			)
		}
	}
}

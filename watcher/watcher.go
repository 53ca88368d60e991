// Package watcher turns growth of the shared log file into event
// deliveries for sibling processes, without redelivering the local
// process's own writes.
//
// Two implementations honor the same offset-tracking and loop-suppression
// contract: Poller (periodic stat-and-read, the portable default) and
// Notifier (fsnotify-driven, for callers that prefer OS file-change
// notification over polling).
package watcher

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/domulab/pulse/backoff"
	"github.com/domulab/pulse/event"
)

// DeliverFunc receives each record observed in the newly-grown file
// region, already filtered for blanks, corruption, and local origin.
type DeliverFunc func(rec event.Record)

// tail holds the offset-tracking and decode logic shared by both watcher
// kinds. The offset is touched only before the watch goroutine starts and
// from inside it, so it needs no lock of its own.
type tail struct {
	path      string
	processID string
	deliver   DeliverFunc
	logger    *slog.Logger

	offset int64
}

// rewind sets the remembered offset to the current file size so that
// pre-existing history is never replayed through the watcher path.
func (t *tail) rewind() {
	t.offset = 0
	if info, err := os.Stat(t.path); err == nil {
		t.offset = info.Size()
	}
}

// drain reads everything past the remembered offset and delivers the
// parsable, foreign-origin records. Corrupt lines are skipped with the
// same tolerance as the log reader. I/O faults are returned so the caller
// can back off; they never kill the watch loop.
func (t *tail) drain() error {
	info, err := os.Stat(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() < t.offset {
		// The file shrank: a sibling cleared or compacted it. Resume from
		// the new end so later appends are not skipped behind a stale
		// offset; records written between the shrink and this stat are
		// missed, the same best-effort window as any rewrite.
		t.offset = info.Size()
		return nil
	}
	if info.Size() == t.offset {
		return nil
	}

	f, err := os.Open(t.path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	t.offset += int64(len(data))

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var rec event.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Origin == t.processID {
			// Loop suppression: the local process already delivered
			// this event synchronously at emit time.
			continue
		}
		t.deliver(rec)
	}
	return nil
}

// Poller watches the log file by periodically comparing its size against
// the remembered offset. Deliberately simple and portable; substitute
// Notifier for OS-level change notification.
type Poller struct {
	tail
	interval time.Duration
	strategy backoff.Strategy

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the delay between poll cycles.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.interval = d }
}

// WithBackoff sets the delay strategy applied after consecutive failing
// poll cycles. The delay resets to the poll interval on the first
// successful cycle.
func WithBackoff(s backoff.Strategy) PollerOption {
	return func(p *Poller) { p.strategy = s }
}

// WithLogger sets the structured logger for the poller.
func WithLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = logger }
}

// NewPoller creates a polling watcher for the given log path. Records
// whose origin matches processID are suppressed.
func NewPoller(path, processID string, deliver DeliverFunc, opts ...PollerOption) *Poller {
	p := &Poller{
		tail: tail{
			path:      path,
			processID: processID,
			deliver:   deliver,
			logger:    slog.Default(),
		},
		interval: 100 * time.Millisecond,
		strategy: backoff.DefaultStrategy(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins watching. The remembered offset resets to the current file
// size, so only records appended after this call are delivered. Starting
// a running poller is a no-op; restart after Stop is legal.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.rewind()
	p.stopCh = make(chan struct{})
	p.running = true

	p.wg.Add(1)
	go p.loop(p.stopCh)

	p.logger.Debug("watcher: poller started",
		slog.String("path", p.path),
		slog.Duration("interval", p.interval),
	)
	return nil
}

// Stop cancels the poll loop and waits for it to finish: no delivery
// callback fires after Stop returns. Idempotent.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stopCh := p.stopCh
	p.mu.Unlock()

	close(stopCh)
	p.wg.Wait()
	p.logger.Debug("watcher: poller stopped", slog.String("path", p.path))
}

// Running reports whether the watch loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) loop(stopCh chan struct{}) {
	defer p.wg.Done()

	delay := p.interval
	failures := 0
	for {
		select {
		case <-stopCh:
			return
		case <-time.After(delay):
		}

		if err := p.drain(); err != nil {
			failures++
			delay = p.strategy.Delay(failures)
			p.logger.Debug("watcher: poll cycle failed",
				slog.String("path", p.path),
				slog.Int("failures", failures),
				slog.String("error", err.Error()),
			)
			continue
		}
		failures = 0
		delay = p.interval
	}
}

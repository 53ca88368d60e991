// Package wal provides the append-only durable log backing the bus: one
// JSON record per line, tolerant of corrupt lines on read, compactable to
// a bounded window of recent records.
//
// The file is the durable artifact; the in-process handle is transient and
// may be closed and reopened without data loss. Appends are the only
// steady-state write. I/O faults surface to the caller; corruption on
// read never does.
package wal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/domulab/pulse/event"
)

// Log is a line-oriented write-ahead log of event records.
type Log struct {
	path      string
	maxEvents int
	fsync     bool
	logger    *slog.Logger

	mu   sync.Mutex
	file *os.File
}

// Option configures a Log.
type Option func(*Log)

// WithMaxEvents bounds how many records Load returns and Compact keeps.
func WithMaxEvents(n int) Option {
	return func(l *Log) { l.maxEvents = n }
}

// WithFsync controls whether Append forces the write to stable storage
// before returning. Enabled by default; disabling trades durability on
// crash for lower append latency.
func WithFsync(enabled bool) Option {
	return func(l *Log) { l.fsync = enabled }
}

// WithLogger sets the structured logger for the log.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

// New creates a Log for the given file path. The file is not touched
// until Open or the first Append.
func New(path string, opts ...Option) *Log {
	l := &Log{
		path:      path,
		maxEvents: 10000,
		fsync:     true,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the backing file path.
func (l *Log) Path() string { return l.path }

// MaxEvents returns the bounded window size used by Load and Compact.
func (l *Log) MaxEvents() int { return l.maxEvents }

// Open opens the backing file for appending, creating it and its parent
// directories as needed.
func (l *Log) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open()
}

func (l *Log) open() error {
	if l.file != nil {
		return nil
	}
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("pulse/wal: create dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("pulse/wal: open %s: %w", l.path, err)
	}
	l.file = f
	return nil
}

// Close releases the file handle. Safe to call when already closed.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.close()
}

func (l *Log) close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("pulse/wal: close %s: %w", l.path, err)
	}
	return nil
}

// IsOpen reports whether the file handle is currently open.
func (l *Log) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file != nil
}

// Append serializes the record to one JSON line and writes it. With fsync
// enabled the call blocks until the write reaches stable storage, making
// append latency storage-bound. Opens the log if needed.
func (l *Log) Append(rec event.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		if err := l.open(); err != nil {
			return err
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("pulse/wal: marshal record %s: %w", rec.ID, err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("pulse/wal: append to %s: %w", l.path, err)
	}
	if l.fsync {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("pulse/wal: fsync %s: %w", l.path, err)
		}
	}
	return nil
}

// Load reads the log and returns the last MaxEvents records, oldest
// first. Lines that fail to parse are skipped silently: a partially
// written final line from a crash must not prevent loading the rest.
// A missing file yields an empty result, not an error.
func (l *Log) Load() ([]event.Record, error) {
	recs, err := l.readAll()
	if err != nil {
		return nil, err
	}
	if len(recs) > l.maxEvents {
		recs = recs[len(recs)-l.maxEvents:]
	}
	return recs, nil
}

// LoadAll reads every parsable record, ignoring the MaxEvents cap.
func (l *Log) LoadAll() ([]event.Record, error) {
	return l.readAll()
}

func (l *Log) readAll() ([]event.Record, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("pulse/wal: read %s: %w", l.path, err)
	}
	defer f.Close()

	var recs []event.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec event.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			l.logger.Debug("wal: skipping corrupt line", slog.String("path", l.path))
			continue
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("pulse/wal: scan %s: %w", l.path, err)
	}
	return recs, nil
}

// maxLineSize caps a single record line on read. Records beyond this are
// treated as corrupt by the scanner.
const maxLineSize = 4 * 1024 * 1024

// Compact rewrites the file keeping only the most recent MaxEvents
// records and returns how many were discarded. A no-op returning 0 when
// the log already fits. The read and the rewrite happen under the log
// lock as one step, so a concurrent Append either lands before the read
// (and is in the kept window) or after the rewrite — an acknowledged
// append is never discarded. Not crash-atomic: a crash mid-rewrite can
// truncate the log.
func (l *Log) Compact() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	recs, err := l.readAll()
	if err != nil {
		return 0, err
	}
	if len(recs) <= l.maxEvents {
		return 0, nil
	}

	removed := len(recs) - l.maxEvents
	kept := recs[removed:]

	wasOpen := l.file != nil
	if err := l.close(); err != nil {
		return 0, err
	}

	f, err := os.Create(l.path)
	if err != nil {
		return 0, fmt.Errorf("pulse/wal: rewrite %s: %w", l.path, err)
	}
	w := bufio.NewWriter(f)
	for _, rec := range kept {
		data, merr := json.Marshal(rec)
		if merr != nil {
			continue
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return 0, fmt.Errorf("pulse/wal: rewrite %s: %w", l.path, err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("pulse/wal: rewrite %s: %w", l.path, err)
	}

	if wasOpen {
		if err := l.open(); err != nil {
			return 0, err
		}
	}

	l.logger.Debug("wal: compacted",
		slog.String("path", l.path),
		slog.Int("removed", removed),
		slog.Int("kept", len(kept)),
	)
	return removed, nil
}

// Clear deletes the backing file and reinitializes it empty.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.close(); err != nil {
		return err
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pulse/wal: remove %s: %w", l.path, err)
	}
	return l.open()
}

// Count returns the number of non-blank lines without parsing them. A
// structural count, not a semantic validation pass.
func (l *Log) Count() (int, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("pulse/wal: read %s: %w", l.path, err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) > 0 {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("pulse/wal: scan %s: %w", l.path, err)
	}
	return count, nil
}

package pulse

import "errors"

var (
	// ErrNoWAL is returned by StartSync when the bus was built without a
	// durable log path; cross-process sync requires one.
	ErrNoWAL = errors.New("pulse: cross-process sync requires a wal path")
)

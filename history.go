package pulse

import "github.com/domulab/pulse/event"

// historyBuffer is a bounded FIFO of event records with ring semantics:
// capacity is fixed and the oldest record is evicted on overflow. Mutated
// only under the bus's critical section.
type historyBuffer struct {
	buf   []event.Record
	head  int
	count int
}

func newHistoryBuffer(limit int) *historyBuffer {
	return &historyBuffer{buf: make([]event.Record, limit)}
}

func (h *historyBuffer) append(rec event.Record) {
	if h.count < len(h.buf) {
		h.buf[(h.head+h.count)%len(h.buf)] = rec
		h.count++
		return
	}
	h.buf[h.head] = rec
	h.head = (h.head + 1) % len(h.buf)
}

// snapshot returns the buffered records oldest first, as a fresh slice.
func (h *historyBuffer) snapshot() []event.Record {
	out := make([]event.Record, 0, h.count)
	for i := 0; i < h.count; i++ {
		out = append(out, h.buf[(h.head+i)%len(h.buf)])
	}
	return out
}

func (h *historyBuffer) clear() {
	h.head = 0
	h.count = 0
}

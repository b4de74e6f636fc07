package mcu

import "github.com/holee9/panelsim/internal/protocol"

// Ring is the MCU layer's bounded FIFO of in-flight, fragmented frames
// awaiting transmission/consumption downstream. It replaces the "mutable
// ring buffer shared between I/O threads" spec.md §9 flags as a hazard:
// ownership of each entry transfers by value move (append/dequeue), there
// is no cross-goroutine sharing, and overflow evicts the oldest entry
// per the spec's oldest-drop policy (spec.md §5).
type Ring struct {
	capacity int
	entries  []Entry
	dropped  uint64
}

// Entry is one frame's fragmented UDP packet stream, still attached to
// its FrameID for diagnostics.
type Entry struct {
	FrameID uint32
	Packets []protocol.UdpPacket
}

// NewRing returns a Ring with the given capacity (default 4 per spec.md §5).
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 4
	}
	return &Ring{capacity: capacity}
}

// Push appends e, evicting the oldest entry first if the ring is already
// at capacity. It reports whether an eviction occurred.
func (r *Ring) Push(e Entry) (evicted bool) {
	if len(r.entries) >= r.capacity {
		r.entries = r.entries[1:]
		r.dropped++
		evicted = true
	}
	r.entries = append(r.entries, e)
	return evicted
}

// Pop removes and returns the oldest entry, if any.
func (r *Ring) Pop() (Entry, bool) {
	if len(r.entries) == 0 {
		return Entry{}, false
	}
	e := r.entries[0]
	r.entries = r.entries[1:]
	return e, true
}

// Len reports the number of entries currently queued.
func (r *Ring) Len() int { return len(r.entries) }

// Dropped reports the total number of entries evicted by overflow.
func (r *Ring) Dropped() uint64 { return r.dropped }

// Reset empties the ring and clears the drop counter, matching the
// layer-wide Reset() contract that all status counters return to zero.
func (r *Ring) Reset() {
	r.entries = nil
	r.dropped = 0
}

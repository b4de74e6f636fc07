// Package reassembly implements the shared ReassemblySlot subcomponent
// used by both McuLayer (CSI-2 line reassembly) and HostLayer (UDP packet
// reassembly): a bitmap-backed presence tracker plus pixel-copy logic,
// sized to an arbitrary unit count and byte buffer size (spec.md §3, §9).
package reassembly

import (
	"sync"
	"time"

	"github.com/holee9/panelsim/internal/bitset"
)

// Slot tracks the partial receipt of one frame's worth of units (CSI-2
// lines, or UDP fragments) into a contiguous byte buffer. A Slot is owned
// exclusively by the layer that created it and mutated only by that
// layer's processing loop (spec.md §3 ownership rules) — the embedded
// mutex exists so a single layer may still call Process concurrently for
// independent frames per spec.md §5's parallelism allowance, not to share
// a Slot across layers.
type Slot struct {
	mu sync.Mutex

	ID            uint32
	ExpectedTotal int
	Bitmap        *bitset.BitSet
	Buffer        []byte
	CreatedAt     time.Time
	Deadline      time.Time
}

// NewSlot creates a Slot expecting expectedTotal units into a buffer of
// bufferSize bytes, with a deadline timeout after now.
func NewSlot(id uint32, expectedTotal int, bufferSize int, timeout time.Duration, now time.Time) *Slot {
	return &Slot{
		ID:            id,
		ExpectedTotal: expectedTotal,
		Bitmap:        bitset.New(expectedTotal),
		Buffer:        make([]byte, bufferSize),
		CreatedAt:     now,
		Deadline:      now.Add(timeout),
	}
}

// PutUnit copies data into Buffer at offset and marks unit present. A
// duplicate (unit already marked) is a no-op — the second copy to the
// same line or packet index is dropped without changing state, exactly
// as spec.md §4.4 requires. It reports whether every expected unit is
// now present.
func (s *Slot) PutUnit(unit int, offset int, data []byte) (complete bool, duplicate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if unit < 0 || unit >= s.ExpectedTotal {
		return s.Bitmap.All(), false
	}
	if s.Bitmap.Test(unit) {
		return s.Bitmap.All(), true
	}

	end := offset + len(data)
	if end > len(s.Buffer) {
		end = len(s.Buffer)
	}
	if offset < len(s.Buffer) && offset < end {
		copy(s.Buffer[offset:end], data[:end-offset])
	}
	s.Bitmap.Set(unit)

	return s.Bitmap.All(), false
}

// Complete reports whether every expected unit has been received.
func (s *Slot) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Bitmap.All()
}

// MissingCount reports how many units are still outstanding.
func (s *Slot) MissingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ExpectedTotal - s.Bitmap.PopCount()
}

// Expired reports whether now is past the slot's deadline.
func (s *Slot) Expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.After(s.Deadline)
}

// Snapshot returns a copy of the buffer bytes, safe to hand to a caller
// that will outlive the slot.
func (s *Slot) Snapshot() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.Buffer))
	copy(out, s.Buffer)
	return out
}

// Tracker owns a set of in-flight Slots keyed by frame id, providing the
// "scan ageing slots" half of spec.md §5's timeout-detection contract.
// Tick is the only deadline check: GetOrCreate returns an expired slot
// still in the map, and PutUnit keeps filling it until the caller removes
// it after a Tick.
type Tracker struct {
	mu    sync.Mutex
	slots map[uint32]*Slot
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{slots: make(map[uint32]*Slot)}
}

// GetOrCreate returns the slot for id, creating one via newSlot if absent.
func (t *Tracker) GetOrCreate(id uint32, newSlot func() *Slot) *Slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[id]
	if !ok {
		s = newSlot()
		t.slots[id] = s
	}
	return s
}

// Get returns the slot for id, if any.
func (t *Tracker) Get(id uint32) (*Slot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[id]
	return s, ok
}

// Delete removes the slot for id (the frame completed, timed out, or was
// evicted).
func (t *Tracker) Delete(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.slots, id)
}

// Tick scans every tracked slot and returns the ids that have expired as
// of now, per spec.md §5's explicit tick(now) timeout-detection path.
func (t *Tracker) Tick(now time.Time) []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []uint32
	for id, s := range t.slots {
		if s.Expired(now) {
			expired = append(expired, id)
		}
	}
	return expired
}

// Reset drops every tracked slot, releasing all in-flight state — used by
// each layer's Reset().
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots = make(map[uint32]*Slot)
}

// Len reports the number of in-flight slots.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

package deskew

import "sync"

// InertialBuffer is a time-ordered queue of inertial samples shared between
// the ingestion path and the processing loop. All methods are safe for
// concurrent use; critical sections cover only slice mutation.
type InertialBuffer struct {
	mu      sync.Mutex
	samples []InertialSample
}

// NewInertialBuffer returns an empty buffer.
func NewInertialBuffer() *InertialBuffer {
	return &InertialBuffer{}
}

// Push appends a sample. Samples are expected in arrival order; ordering is
// verified where it matters, at window extraction.
func (b *InertialBuffer) Push(s InertialSample) {
	b.mu.Lock()
	b.samples = append(b.samples, s)
	b.mu.Unlock()
}

// Len returns the number of buffered samples.
func (b *InertialBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// FrontTime returns the earliest buffered timestamp.
func (b *InertialBuffer) FrontTime() (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.samples) == 0 {
		return 0, false
	}
	return b.samples[0].Timestamp, true
}

// BackTime returns the latest buffered timestamp.
func (b *InertialBuffer) BackTime() (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.samples) == 0 {
		return 0, false
	}
	return b.samples[len(b.samples)-1].Timestamp, true
}

// PruneBefore discards leading samples no longer needed for any window
// starting at or after t. One sample at or before t is always retained so the
// window boundary can still be interpolated.
func (b *InertialBuffer) PruneBefore(t float64) {
	b.mu.Lock()
	n := 0
	for len(b.samples)-n >= 2 && b.samples[n+1].Timestamp <= t {
		n++
	}
	if n > 0 {
		b.samples = append(b.samples[:0], b.samples[n:]...)
	}
	b.mu.Unlock()
}

// Window returns a snapshot of the samples relevant to the interval ending at
// tend: everything from the buffer front through the first sample past tend.
// The caller prunes the front beforehand so the snapshot starts at the sample
// bracketing the interval start.
func (b *InertialBuffer) Window(tend float64) []InertialSample {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]InertialSample, 0, len(b.samples))
	for _, s := range b.samples {
		out = append(out, s)
		if s.Timestamp > tend {
			break
		}
	}
	return out
}

// SweepSlot is the single-slot staging area for the most recent unpaired
// sweep. Holding at most one sweep bounds memory and enforces strict
// processing order: a newer arrival evicts an unpaired predecessor.
type SweepSlot struct {
	mu   sync.Mutex
	held *Sweep
}

// NewSweepSlot returns an empty slot.
func NewSweepSlot() *SweepSlot {
	return &SweepSlot{}
}

// Stage places a sweep in the slot and returns the evicted previous occupant,
// if any, so the caller can report the drop.
func (s *SweepSlot) Stage(sw *Sweep) (evicted *Sweep) {
	s.mu.Lock()
	evicted = s.held
	s.held = sw
	s.mu.Unlock()
	return evicted
}

// Peek returns the currently staged sweep without removing it.
func (s *SweepSlot) Peek() *Sweep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held
}

// TakeIf removes and claims the staged sweep only if it is still the given
// one. Returns false if the slot was re-staged concurrently.
func (s *SweepSlot) TakeIf(sw *Sweep) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held != sw {
		return false
	}
	s.held = nil
	return true
}

// PairQueue is a bounded FIFO of pose/sweep pairs awaiting processing. The
// readiness gate inspects the front without consuming it.
type PairQueue struct {
	mu    sync.Mutex
	items []PairedItem
	cap   int
}

// DefaultPairQueueCapacity bounds the pairing queue. With single-slot sweep
// staging the queue depth rarely exceeds one; the bound is a backstop against
// a stalled consumer.
const DefaultPairQueueCapacity = 16

// NewPairQueue returns a queue bounded at the given capacity (or the default
// when capacity <= 0).
func NewPairQueue(capacity int) *PairQueue {
	if capacity <= 0 {
		capacity = DefaultPairQueueCapacity
	}
	return &PairQueue{cap: capacity}
}

// Push appends an item. Returns false if the queue is full.
func (q *PairQueue) Push(item PairedItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.cap {
		return false
	}
	q.items = append(q.items, item)
	return true
}

// Front returns the oldest item without removing it.
func (q *PairQueue) Front() (PairedItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return PairedItem{}, false
	}
	return q.items[0], true
}

// PopFront removes and returns the oldest item.
func (q *PairQueue) PopFront() (PairedItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return PairedItem{}, false
	}
	item := q.items[0]
	q.items = append(q.items[:0], q.items[1:]...)
	return item, true
}

// Len returns the number of queued items.
func (q *PairQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

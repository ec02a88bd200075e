package deskew

import (
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/deskew/internal/monitoring"
)

// DefaultInitialSkip is the number of leading pairs discarded so the upstream
// pose estimator can settle before sweeps are processed.
const DefaultInitialSkip = 10

// Pairer matches each staged sweep to the bracketing pair of pose samples
// straddling the sweep's start time and emits (p0, sweep) into the pairing
// queue. Earliest-match policy: leading pose samples are pruned while the
// second buffered sample is still at or before the sweep start, so the pair
// always uses the most recent pose at or before the start.
type Pairer struct {
	slot  *SweepSlot
	queue *PairQueue
	stats *Stats

	mu            sync.Mutex
	poses         []PoseSample
	skipRemaining int
}

// PairerConfig configures a Pairer.
type PairerConfig struct {
	Slot        *SweepSlot
	Queue       *PairQueue
	Stats       *Stats
	InitialSkip int // pairs discarded for estimator warm-up; <0 means none
}

// NewPairer creates a Pairer. A nil Stats is replaced with a private instance.
func NewPairer(config PairerConfig) *Pairer {
	if config.Stats == nil {
		config.Stats = &Stats{}
	}
	skip := config.InitialSkip
	if skip < 0 {
		skip = 0
	}
	return &Pairer{
		slot:          config.Slot,
		queue:         config.Queue,
		stats:         config.Stats,
		skipRemaining: skip,
	}
}

// HandlePose buffers a pose sample and attempts pairing against the staged
// sweep.
func (p *Pairer) HandlePose(pose PoseSample) {
	p.mu.Lock()
	p.poses = append(p.poses, pose)
	p.mu.Unlock()
	if p.slot.Peek() != nil {
		p.tryPair()
	}
}

// HandleSweep stages a sweep and attempts pairing. A previously staged sweep
// that never paired is discarded with a warning.
func (p *Pairer) HandleSweep(sw *Sweep) {
	if sw.ID == uuid.Nil {
		sw.ID = uuid.New()
	}
	if evicted := p.slot.Stage(sw); evicted != nil {
		p.stats.addEvicted()
		monitoring.Logf("dropping unpaired sweep %s (start %.3f): newer sweep arrived", evicted.ID, evicted.StartTimestamp)
	}
	p.mu.Lock()
	havePoses := len(p.poses) > 0
	p.mu.Unlock()
	if havePoses {
		p.tryPair()
	}
}

// tryPair prunes the pose buffer around the staged sweep's start time and
// emits a pair when a straddling bracket exists.
func (p *Pairer) tryPair() {
	p.mu.Lock()
	defer p.mu.Unlock()

	sw := p.slot.Peek()
	if sw == nil {
		return
	}
	t := sw.StartTimestamp

	// Prune while the second sample is still at or before the sweep start:
	// the bracket must straddle the start, not precede it.
	n := 0
	for len(p.poses)-n >= 2 && p.poses[n+1].Timestamp <= t {
		n++
	}
	if n > 0 {
		p.poses = append(p.poses[:0], p.poses[n:]...)
	}

	if len(p.poses) < 2 || p.poses[0].Timestamp > t || t > p.poses[1].Timestamp {
		return
	}

	if !p.slot.TakeIf(sw) {
		// Re-staged concurrently; the new occupant gets its own attempt.
		return
	}

	if p.skipRemaining > 0 {
		p.skipRemaining--
		p.stats.addSkippedWarmup()
		monitoring.Logf("skipping sweep %s for estimator warm-up (%d remaining)", sw.ID, p.skipRemaining)
		return
	}

	if !p.queue.Push(PairedItem{Pose: p.poses[0], Sweep: sw}) {
		p.stats.addRejectedFull()
		monitoring.Logf("pairing queue full, dropping sweep %s (start %.3f)", sw.ID, sw.StartTimestamp)
	}
}

// PoseCount returns the number of buffered pose samples.
func (p *Pairer) PoseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.poses)
}

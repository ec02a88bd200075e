package deskew

import "sync"

// Stats tracks pipeline counters. Recoverable conditions (drops, skips,
// degraded points) are counted rather than propagated, so operators can watch
// steady-state health from the periodic report.
type Stats struct {
	mu sync.Mutex

	sweepsProcessed     int64
	sweepsEvicted       int64 // unpaired sweep replaced by a newer arrival
	pairsDroppedStale   int64 // pair older than the inertial horizon
	sweepsSkippedWarmup int64 // initial skip while the estimator settles
	sweepsSkippedSparse int64 // too few inertial samples in the window
	sweepsSkippedFaulty int64 // ordering violation or uncovered window
	pairsRejectedFull   int64 // pairing queue at capacity
	pointsDegraded      int64 // points left undeskewed (outside coverage)
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	SweepsProcessed     int64
	SweepsEvicted       int64
	PairsDroppedStale   int64
	SweepsSkippedWarmup int64
	SweepsSkippedSparse int64
	SweepsSkippedFaulty int64
	PairsRejectedFull   int64
	PointsDegraded      int64
}

func (s *Stats) addProcessed() {
	s.mu.Lock()
	s.sweepsProcessed++
	s.mu.Unlock()
}

func (s *Stats) addEvicted() {
	s.mu.Lock()
	s.sweepsEvicted++
	s.mu.Unlock()
}

func (s *Stats) addDroppedStale() {
	s.mu.Lock()
	s.pairsDroppedStale++
	s.mu.Unlock()
}

func (s *Stats) addSkippedWarmup() {
	s.mu.Lock()
	s.sweepsSkippedWarmup++
	s.mu.Unlock()
}

func (s *Stats) addSkippedSparse() {
	s.mu.Lock()
	s.sweepsSkippedSparse++
	s.mu.Unlock()
}

func (s *Stats) addSkippedFaulty() {
	s.mu.Lock()
	s.sweepsSkippedFaulty++
	s.mu.Unlock()
}

func (s *Stats) addRejectedFull() {
	s.mu.Lock()
	s.pairsRejectedFull++
	s.mu.Unlock()
}

func (s *Stats) addDegradedPoints(n int64) {
	if n == 0 {
		return
	}
	s.mu.Lock()
	s.pointsDegraded += n
	s.mu.Unlock()
}

// Snapshot returns a copy of all counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		SweepsProcessed:     s.sweepsProcessed,
		SweepsEvicted:       s.sweepsEvicted,
		PairsDroppedStale:   s.pairsDroppedStale,
		SweepsSkippedWarmup: s.sweepsSkippedWarmup,
		SweepsSkippedSparse: s.sweepsSkippedSparse,
		SweepsSkippedFaulty: s.sweepsSkippedFaulty,
		PairsRejectedFull:   s.pairsRejectedFull,
		PointsDegraded:      s.pointsDegraded,
	}
}

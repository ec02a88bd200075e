package deskew

import "github.com/banshee-data/deskew/internal/monitoring"

// DefaultReadinessMargin is how far (seconds) the inertial buffer must extend
// past a sweep's end before the sweep is processed, so propagation never runs
// on a partial window.
const DefaultReadinessMargin = 0.125

// Status is the readiness gate's typed outcome. The processing loop reacts
// per status instead of asserting.
type Status int

const (
	// NotReady means buffers are empty or inertial data has not yet covered
	// the sweep window. Recoverable by waiting.
	NotReady Status = iota
	// StaleDropped means the front pair predates the inertial horizon and
	// was discarded. The loop should re-check immediately.
	StaleDropped
	// Ready means the front pair can be processed now.
	Ready
)

// String returns the status name for logs.
func (s Status) String() string {
	switch s {
	case NotReady:
		return "not-ready"
	case StaleDropped:
		return "stale-dropped"
	case Ready:
		return "ready"
	}
	return "unknown"
}

// Gate decides whether the front of the pairing queue has sufficient inertial
// coverage to process. It owns the stale-pair drop policy.
type Gate struct {
	queue    *PairQueue
	inertial *InertialBuffer
	margin   float64
	stats    *Stats
	throttle *monitoring.Throttle
}

// GateConfig configures a Gate.
type GateConfig struct {
	Queue    *PairQueue
	Inertial *InertialBuffer
	Margin   float64 // seconds; <=0 uses DefaultReadinessMargin
	Stats    *Stats
	Throttle *monitoring.Throttle
}

// NewGate creates a Gate.
func NewGate(config GateConfig) *Gate {
	if config.Margin <= 0 {
		config.Margin = DefaultReadinessMargin
	}
	if config.Stats == nil {
		config.Stats = &Stats{}
	}
	if config.Throttle == nil {
		config.Throttle = monitoring.NewThrottle(0)
	}
	return &Gate{
		queue:    config.Queue,
		inertial: config.Inertial,
		margin:   config.Margin,
		stats:    config.Stats,
		throttle: config.Throttle,
	}
}

// Check reports whether the front pair is processable. A stale front pair is
// consumed and discarded here; the caller retries without sleeping.
func (g *Gate) Check() Status {
	front, ok := g.queue.Front()
	if !ok {
		g.throttle.Logf("gate: pairing queue empty")
		return NotReady
	}

	inertialFront, ok := g.inertial.FrontTime()
	if !ok {
		g.throttle.Logf("gate: inertial buffer empty")
		return NotReady
	}

	// Pair older than the inertial horizon: its window can no longer be
	// covered. Data loss, not a wait condition.
	if front.Pose.Timestamp < inertialFront {
		if dropped, ok := g.queue.PopFront(); ok {
			g.stats.addDroppedStale()
			monitoring.Logf("gate: dropping stale pair (pose %.3f < inertial horizon %.3f, sweep %s)",
				dropped.Pose.Timestamp, inertialFront, dropped.Sweep.ID)
		}
		return StaleDropped
	}

	// Inertial data must already extend past the sweep end plus margin.
	inertialBack, _ := g.inertial.BackTime()
	if front.Sweep.EndTime()+g.margin > inertialBack {
		g.throttle.Logf("gate: inertial buffer does not cover sweep window yet")
		return NotReady
	}

	return Ready
}

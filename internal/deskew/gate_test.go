package deskew

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(margin float64) (*Gate, *PairQueue, *InertialBuffer, *Stats) {
	stats := &Stats{}
	queue := NewPairQueue(0)
	inertial := NewInertialBuffer()
	g := NewGate(GateConfig{
		Queue:    queue,
		Inertial: inertial,
		Margin:   margin,
		Stats:    stats,
	})
	return g, queue, inertial, stats
}

// sweepSpanning returns a sweep starting at start whose last point is at
// start+duration.
func sweepSpanning(start, duration float64) *Sweep {
	return &Sweep{
		StartTimestamp: start,
		Points: []Point{
			{TimeOffsetNanos: 0},
			{TimeOffsetNanos: int64(duration * 1e9)},
		},
	}
}

func TestGateNotReadyOnEmptyBuffers(t *testing.T) {
	t.Parallel()

	g, queue, inertial, _ := newTestGate(0.125)

	// Empty pairing queue.
	assert.Equal(t, NotReady, g.Check())

	// Pair present but no inertial data.
	queue.Push(PairedItem{Pose: poseAt(1.0), Sweep: sweepSpanning(1.0, 0.1)})
	assert.Equal(t, NotReady, g.Check())

	// Inertial data present but not extending past sweep end + margin.
	inertial.Push(inertialAt(0.9))
	inertial.Push(inertialAt(1.2))
	assert.Equal(t, NotReady, g.Check())
}

func TestGateReadyWithCoverage(t *testing.T) {
	t.Parallel()

	g, queue, inertial, _ := newTestGate(0.125)
	queue.Push(PairedItem{Pose: poseAt(1.0), Sweep: sweepSpanning(1.0, 0.1)})

	for ts := 0.9; ts < 1.3; ts += 0.01 {
		inertial.Push(inertialAt(ts))
	}
	// Back is ~1.29 < 1.0+0.1+0.125 = 1.225... 1.29 > 1.225, so ready.
	assert.Equal(t, Ready, g.Check())

	// The check must not consume the pair.
	assert.Equal(t, 1, queue.Len())
}

func TestGateMarginBoundary(t *testing.T) {
	t.Parallel()

	g, queue, inertial, _ := newTestGate(0.125)
	queue.Push(PairedItem{Pose: poseAt(1.0), Sweep: sweepSpanning(1.0, 0.1)})

	// Back just past end + margin (1.225): ready.
	inertial.Push(inertialAt(0.9))
	inertial.Push(inertialAt(1.23))
	assert.Equal(t, Ready, g.Check())

	// Back just short of end + margin: not ready.
	g2, queue2, inertial2, _ := newTestGate(0.125)
	queue2.Push(PairedItem{Pose: poseAt(1.0), Sweep: sweepSpanning(1.0, 0.1)})
	inertial2.Push(inertialAt(0.9))
	inertial2.Push(inertialAt(1.22))
	assert.Equal(t, NotReady, g2.Check())
}

func TestGateDropsStalePair(t *testing.T) {
	t.Parallel()

	g, queue, inertial, stats := newTestGate(0.125)

	// Pose predates the inertial horizon: the window is no longer coverable.
	stale := PairedItem{Pose: poseAt(1.0), Sweep: sweepSpanning(1.0, 0.1)}
	fresh := PairedItem{Pose: poseAt(5.0), Sweep: sweepSpanning(5.0, 0.1)}
	queue.Push(stale)
	queue.Push(fresh)

	for ts := 4.9; ts < 5.4; ts += 0.01 {
		inertial.Push(inertialAt(ts))
	}

	assert.Equal(t, StaleDropped, g.Check())
	assert.Equal(t, int64(1), stats.Snapshot().PairsDroppedStale)

	// The stale pair is gone; the fresh one is ready.
	front, ok := queue.Front()
	require.True(t, ok)
	assert.Equal(t, 5.0, front.Pose.Timestamp)
	assert.Equal(t, Ready, g.Check())
}

func TestStatusString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "not-ready", NotReady.String())
	assert.Equal(t, "stale-dropped", StaleDropped.String())
	assert.Equal(t, "ready", Ready.String())
}

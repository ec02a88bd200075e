package deskew

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

// rampSamples generates n samples starting at t0 with the given spacing whose
// gyro X and accel Z ramp linearly with time, so interpolation results are
// easy to predict.
func rampSamples(t0, dt float64, n int) []InertialSample {
	out := make([]InertialSample, n)
	for i := range out {
		t := t0 + float64(i)*dt
		out[i] = InertialSample{
			Timestamp:          t,
			AngularVelocity:    r3.Vec{X: t},
			LinearAcceleration: r3.Vec{Z: 2 * t},
		}
	}
	return out
}

func TestExtractWindowBoundariesExact(t *testing.T) {
	t.Parallel()

	seq := rampSamples(1.0, 0.01, 20) // 1.00 .. 1.19
	tstart, tend := 1.014, 1.156

	w, err := ExtractWindow(seq, tstart, tend, 8)
	require.NoError(t, err)

	// Boundary timestamps are exact, not approximate.
	assert.Equal(t, tstart, w.TS[0])
	assert.Equal(t, tend, w.TS[len(w.TS)-1])

	// Boundary values are linear interpolations; with a linear ramp the
	// interpolated value equals the ramp at the boundary time.
	assert.InDelta(t, tstart, w.Gyro[0].X, 1e-12)
	assert.InDelta(t, 2*tstart, w.Accel[0].Z, 1e-12)
	assert.InDelta(t, tend, w.Gyro[len(w.Gyro)-1].X, 1e-12)

	// Interior samples are originals, in order, strictly inside the window.
	for i := 1; i < w.Len()-1; i++ {
		assert.Greater(t, w.TS[i], tstart)
		assert.Less(t, w.TS[i], tend)
		assert.Greater(t, w.TS[i], w.TS[i-1])
		assert.Equal(t, w.TS[i], w.Gyro[i].X, "interior sample copied unchanged")
	}
}

func TestExtractWindowBoundaryOnSample(t *testing.T) {
	t.Parallel()

	seq := rampSamples(1.0, 0.01, 20)

	// tstart exactly on a sample: fraction 0, the sample's own value.
	w, err := ExtractWindow(seq, 1.05, 1.15, 8)
	require.NoError(t, err)
	assert.Equal(t, 1.05, w.TS[0])
	assert.InDelta(t, seq[5].AngularVelocity.X, w.Gyro[0].X, 1e-12)

	// The on-boundary sample must not be duplicated as an interior entry.
	for i := 1; i < w.Len()-1; i++ {
		assert.Greater(t, w.TS[i], w.TS[i-1])
	}
}

func TestExtractWindowInsufficientSamples(t *testing.T) {
	t.Parallel()

	seq := rampSamples(1.0, 0.01, 5)
	_, err := ExtractWindow(seq, 1.01, 1.03, 8)
	assert.ErrorIs(t, err, ErrInsufficientInertial)
}

func TestExtractWindowNonMonotonic(t *testing.T) {
	t.Parallel()

	seq := rampSamples(1.0, 0.01, 10)
	seq[4].Timestamp = seq[3].Timestamp // duplicate timestamp
	_, err := ExtractWindow(seq, 1.005, 1.08, 8)
	assert.ErrorIs(t, err, ErrNonMonotonic)
}

func TestExtractWindowNotCovered(t *testing.T) {
	t.Parallel()

	seq := rampSamples(1.0, 0.01, 10) // 1.00 .. 1.09

	// Window extends past the samples.
	_, err := ExtractWindow(seq, 1.02, 1.5, 8)
	assert.ErrorIs(t, err, ErrWindowNotCovered)

	// Window starts before the samples.
	_, err = ExtractWindow(seq, 0.5, 1.05, 8)
	assert.ErrorIs(t, err, ErrWindowNotCovered)

	// Degenerate interval.
	_, err = ExtractWindow(seq, 1.05, 1.05, 8)
	assert.ErrorIs(t, err, ErrWindowNotCovered)
}

package deskew

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/deskew/internal/geom"
)

// DefaultMinInertialSamples is the minimum number of inertial samples that
// must lie in or around a sweep window for extraction to proceed.
const DefaultMinInertialSamples = 8

// InertialWindow is the resampled inertial sequence over a sweep window.
// TS[0] and TS[len-1] are exactly the window boundaries, with rates and
// specific forces linearly interpolated there; interior entries are original
// samples in original order.
type InertialWindow struct {
	TS    []float64
	Gyro  []r3.Vec
	Accel []r3.Vec
}

// Len returns the number of resampled entries.
func (w InertialWindow) Len() int { return len(w.TS) }

// ExtractWindow resamples seq over [tstart, tend]. seq must start at or
// before tstart, extend past tend, and be strictly increasing in timestamp
// (the readiness gate guarantees coverage; ordering is verified here).
// minSamples <= 0 uses DefaultMinInertialSamples.
func ExtractWindow(seq []InertialSample, tstart, tend float64, minSamples int) (InertialWindow, error) {
	if minSamples <= 0 {
		minSamples = DefaultMinInertialSamples
	}
	if len(seq) < minSamples {
		return InertialWindow{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientInertial, len(seq), minSamples)
	}
	for i := 1; i < len(seq); i++ {
		if seq[i].Timestamp <= seq[i-1].Timestamp {
			return InertialWindow{}, fmt.Errorf("%w: inertial sample %d (%.6f) after %.6f",
				ErrNonMonotonic, i, seq[i].Timestamp, seq[i-1].Timestamp)
		}
	}
	if tend <= tstart {
		return InertialWindow{}, fmt.Errorf("%w: empty interval [%.6f, %.6f]", ErrWindowNotCovered, tstart, tend)
	}
	if seq[0].Timestamp > tstart || seq[len(seq)-1].Timestamp < tend {
		return InertialWindow{}, fmt.Errorf("%w: samples span [%.6f, %.6f], interval [%.6f, %.6f]",
			ErrWindowNotCovered, seq[0].Timestamp, seq[len(seq)-1].Timestamp, tstart, tend)
	}

	w := InertialWindow{
		TS:    make([]float64, 0, len(seq)),
		Gyro:  make([]r3.Vec, 0, len(seq)),
		Accel: make([]r3.Vec, 0, len(seq)),
	}

	// Boundary at tstart, interpolated within its bracket.
	lo := bracketIndex(seq, tstart)
	gyro, accel := interpolateAt(seq[lo], seq[lo+1], tstart)
	w.append(tstart, gyro, accel)

	// Interior samples strictly inside the interval, copied unchanged.
	for i := lo + 1; i < len(seq); i++ {
		if seq[i].Timestamp >= tend {
			break
		}
		if seq[i].Timestamp <= tstart {
			continue
		}
		w.append(seq[i].Timestamp, seq[i].AngularVelocity, seq[i].LinearAcceleration)
	}

	// Boundary at tend.
	hi := bracketIndex(seq, tend)
	gyro, accel = interpolateAt(seq[hi], seq[hi+1], tend)
	w.append(tend, gyro, accel)

	return w, nil
}

func (w *InertialWindow) append(t float64, gyro, accel r3.Vec) {
	w.TS = append(w.TS, t)
	w.Gyro = append(w.Gyro, gyro)
	w.Accel = append(w.Accel, accel)
}

// bracketIndex returns i such that seq[i].Timestamp <= t < seq[i+1].Timestamp,
// clamped so i+1 stays in range. The caller has verified coverage.
func bracketIndex(seq []InertialSample, t float64) int {
	lo, hi := 0, len(seq)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if seq[mid].Timestamp <= t {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

// interpolateAt linearly interpolates the rates between two samples at time t
// using fraction s = (t - tB)/(tE - tB). At an exact sample timestamp the
// fraction degenerates to 0 or 1 and the sample's own values come through.
func interpolateAt(b, e InertialSample, t float64) (gyro, accel r3.Vec) {
	s := (t - b.Timestamp) / (e.Timestamp - b.Timestamp)
	gyro = geom.Lerp(b.AngularVelocity, e.AngularVelocity, s)
	accel = geom.Lerp(b.LinearAcceleration, e.LinearAcceleration, s)
	return gyro, accel
}

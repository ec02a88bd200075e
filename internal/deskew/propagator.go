package deskew

import (
	"fmt"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/deskew/internal/geom"
)

// Propagator integrates orientation, velocity and position forward through an
// inertial window from a paired pose sample (strap-down propagation).
//
// Integration is first-order Euler: over each interval (t[n-1], t[n]] the
// angular rate and specific force are held constant at their values from the
// interval-start sample, and position advances with the interval-start
// velocity.
type Propagator struct {
	gravity   r3.Vec // world frame, added to the rotated specific force
	gyroBias  r3.Vec // subtracted from measured angular rate
	accelBias r3.Vec // subtracted from measured specific force
}

// NewPropagator creates a Propagator with fixed calibration constants.
func NewPropagator(gravity, gyroBias, accelBias r3.Vec) *Propagator {
	return &Propagator{gravity: gravity, gyroBias: gyroBias, accelBias: accelBias}
}

// Propagate integrates the window forward from the paired pose. The initial
// state takes orientation and position from the pose directly; the initial
// velocity is the pose's body-frame velocity rotated into the world frame.
// The returned trajectory has one node per window entry.
func (p *Propagator) Propagate(start PoseSample, w InertialWindow) (Trajectory, error) {
	if w.Len() < 2 {
		return nil, fmt.Errorf("%w: window has %d entries", ErrInsufficientInertial, w.Len())
	}
	for i := 1; i < w.Len(); i++ {
		if w.TS[i] <= w.TS[i-1] {
			return nil, fmt.Errorf("%w: window entry %d (%.6f) after %.6f",
				ErrNonMonotonic, i, w.TS[i], w.TS[i-1])
		}
	}

	q0 := geom.Normalize(start.Orientation)
	traj := make(Trajectory, 0, w.Len())
	traj = append(traj, TrajectoryNode{
		Timestamp:   w.TS[0],
		Orientation: q0,
		Position:    start.Position,
		Velocity:    geom.RotateVec(q0, start.BodyVelocity),
	})

	for i := 1; i < w.Len(); i++ {
		prev := traj[i-1]
		dt := w.TS[i] - w.TS[i-1]

		omega := r3.Sub(w.Gyro[i-1], p.gyroBias)
		force := r3.Sub(w.Accel[i-1], p.accelBias)

		dq := geom.DeltaQuat(r3.Scale(dt, omega))
		orientation := geom.Normalize(quat.Mul(prev.Orientation, dq))

		accelWorld := r3.Add(geom.RotateVec(prev.Orientation, force), p.gravity)
		velocity := r3.Add(prev.Velocity, r3.Scale(dt, accelWorld))
		position := r3.Add(prev.Position, r3.Scale(dt, prev.Velocity))

		traj = append(traj, TrajectoryNode{
			Timestamp:   w.TS[i],
			Orientation: orientation,
			Position:    position,
			Velocity:    velocity,
		})
	}

	return traj, nil
}

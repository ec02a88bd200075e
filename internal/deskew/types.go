// Package deskew implements motion compensation for ranging sweeps: it pairs
// each incoming sweep with a bracketing pose estimate, propagates a rigid-body
// trajectory through the sweep's acquisition window from buffered inertial
// samples, and re-expresses every point in the world frame at its true
// acquisition time.
package deskew

import (
	"errors"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Sentinel errors surfaced by the pipeline stages. All of them are recoverable
// at the processing loop: the affected sweep is skipped, never the process.
var (
	// ErrInsufficientInertial means too few inertial samples covered the
	// sweep window for a usable propagation.
	ErrInsufficientInertial = errors.New("insufficient inertial samples for window")

	// ErrNonMonotonic means a timestamp sequence that must be strictly
	// increasing was not.
	ErrNonMonotonic = errors.New("timestamps not strictly increasing")

	// ErrWindowNotCovered means the extracted inertial window does not span
	// the requested interval.
	ErrWindowNotCovered = errors.New("inertial window does not cover interval")
)

// Timestamped is satisfied by every input record type. Buffer pruning and
// pairing only need the acquisition time.
type Timestamped interface {
	// Time returns the record's acquisition timestamp in seconds.
	Time() float64
}

// InertialSample is one reading from the inertial sensor. Immutable once
// created.
type InertialSample struct {
	Timestamp          float64 // seconds
	AngularVelocity    r3.Vec  // rad/s, body frame
	LinearAcceleration r3.Vec  // m/s², body frame (specific force)
}

// Time implements Timestamped.
func (s InertialSample) Time() float64 { return s.Timestamp }

// PoseSample is an externally estimated rigid-body state at one instant.
type PoseSample struct {
	Timestamp    float64
	Orientation  quat.Number // unit quaternion, body-to-world
	Position     r3.Vec      // meters, world frame
	BodyVelocity r3.Vec      // m/s, body frame
}

// Time implements Timestamped.
func (s PoseSample) Time() float64 { return s.Timestamp }

// Point is a single ranging return within a sweep, in the ranging sensor's
// frame at its own acquisition instant.
type Point struct {
	X, Y, Z         float64
	TimeOffsetNanos int64 // offset from the sweep start, in [0, sweep duration]
	Intensity       float32
	Reflectivity    uint16
}

// Sweep is one full acquisition cycle of the ranging sensor. Points are not
// necessarily ordered by TimeOffsetNanos (sensor-dependent).
type Sweep struct {
	ID             uuid.UUID
	StartTimestamp float64
	Points         []Point
}

// Time implements Timestamped.
func (s *Sweep) Time() float64 { return s.StartTimestamp }

// EndTime returns the absolute acquisition time of the latest point. Sweeps
// with no points end when they start.
func (s *Sweep) EndTime() float64 {
	var maxOffset int64
	for i := range s.Points {
		if s.Points[i].TimeOffsetNanos > maxOffset {
			maxOffset = s.Points[i].TimeOffsetNanos
		}
	}
	return s.StartTimestamp + float64(maxOffset)/1e9
}

// PairedItem is a sweep matched with the most recent pose sample at or before
// its start. Invariant: Pose.Timestamp <= Sweep.StartTimestamp.
type PairedItem struct {
	Pose  PoseSample
	Sweep *Sweep
}

// TrajectoryNode is the propagated rigid-body state at one instant.
type TrajectoryNode struct {
	Timestamp   float64
	Orientation quat.Number
	Position    r3.Vec
	Velocity    r3.Vec
}

// Trajectory is a propagated state sequence with strictly increasing
// timestamps covering at least the originating sweep's window.
type Trajectory []TrajectoryNode

// Bracket returns the index j such that traj[j].Timestamp <= t <=
// traj[j+1].Timestamp, using binary search. ok is false when t lies outside
// the trajectory's coverage.
func (traj Trajectory) Bracket(t float64) (j int, ok bool) {
	n := len(traj)
	if n < 2 || t < traj[0].Timestamp || t > traj[n-1].Timestamp {
		return 0, false
	}
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if traj[mid].Timestamp <= t {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo, true
}

// CloudKind distinguishes the two output streams.
type CloudKind string

const (
	// CloudDistorted is the sweep transformed to world frame using only the
	// paired start pose (no per-point compensation).
	CloudDistorted CloudKind = "distorted"
	// CloudDeskewed is the motion-compensated sweep.
	CloudDeskewed CloudKind = "deskewed"
)

// WorldPoint is an output point in the world frame with its source metadata
// preserved.
type WorldPoint struct {
	X, Y, Z         float64
	TimeOffsetNanos int64
	Intensity       float32
	Reflectivity    uint16
}

// CloudResult is one output cloud, tagged with the sweep's identity and start
// time and the frame it is expressed in.
type CloudResult struct {
	SweepID   uuid.UUID
	Timestamp float64
	FrameID   string
	Kind      CloudKind
	Points    []WorldPoint
}

// Publisher receives result clouds. Transport and encoding live behind this
// interface; the pipeline only hands over finished clouds.
type Publisher interface {
	Publish(CloudResult)
}

package deskew

import (
	"runtime"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/deskew/internal/geom"
)

// vecOf returns the point's coordinates in the ranging sensor frame.
func vecOf(p Point) r3.Vec {
	return r3.Vec{X: p.X, Y: p.Y, Z: p.Z}
}

// Deskewer transforms sweep points into the world frame, either undistorted
// (start pose only) or motion-compensated (trajectory interpolated at each
// point's acquisition time). Points first map through the fixed extrinsic
// from the ranging sensor frame to the body frame.
type Deskewer struct {
	extrinsic geom.Rigid
	workers   int
}

// NewDeskewer creates a Deskewer. workers <= 0 sizes the per-point worker
// pool to GOMAXPROCS.
func NewDeskewer(extrinsic geom.Rigid, workers int) *Deskewer {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Deskewer{extrinsic: extrinsic, workers: workers}
}

// DistortedCloud maps every point through the extrinsic and the single start
// pose. This is the uncompensated world-frame cloud.
func (d *Deskewer) DistortedCloud(sw *Sweep, pose PoseSample) []WorldPoint {
	q := geom.Normalize(pose.Orientation)
	body := geom.RigidFromQuat(q, pose.Position)
	out := make([]WorldPoint, len(sw.Points))
	d.parallel(len(sw.Points), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			pt := sw.Points[i]
			w := body.Apply(d.extrinsic.Apply(vecOf(pt)))
			out[i] = WorldPoint{
				X: w.X, Y: w.Y, Z: w.Z,
				TimeOffsetNanos: pt.TimeOffsetNanos,
				Intensity:       pt.Intensity,
				Reflectivity:    pt.Reflectivity,
			}
		}
	})
	return out
}

// Deskew interpolates the trajectory at each point's acquisition time and
// transforms the point into the world frame. Points whose time falls outside
// the trajectory's coverage keep their undistorted (start pose) world
// position; degraded reports how many fell back. Output order, count and
// metadata match the input.
func (d *Deskewer) Deskew(sw *Sweep, pose PoseSample, traj Trajectory) (out []WorldPoint, degraded int64) {
	startQ := geom.Normalize(pose.Orientation)
	startTF := geom.RigidFromQuat(startQ, pose.Position)
	out = make([]WorldPoint, len(sw.Points))
	degradedPerRange := make([]int64, d.workers)

	var rangeIdx int
	var rangeMu sync.Mutex
	d.parallel(len(sw.Points), func(lo, hi int) {
		rangeMu.Lock()
		slot := rangeIdx
		rangeIdx++
		rangeMu.Unlock()

		for i := lo; i < hi; i++ {
			pt := sw.Points[i]
			body := d.extrinsic.Apply(vecOf(pt))

			ti := sw.StartTimestamp + float64(pt.TimeOffsetNanos)/1e9
			w := startTF.Apply(body)
			if j, ok := traj.Bracket(ti); ok {
				a, b := traj[j], traj[j+1]
				s := (ti - a.Timestamp) / (b.Timestamp - a.Timestamp)
				q := geom.Slerp(a.Orientation, b.Orientation, s)
				p := geom.Lerp(a.Position, b.Position, s)
				w = geom.RigidFromQuat(q, p).Apply(body)
			} else {
				degradedPerRange[slot]++
			}

			out[i] = WorldPoint{
				X: w.X, Y: w.Y, Z: w.Z,
				TimeOffsetNanos: pt.TimeOffsetNanos,
				Intensity:       pt.Intensity,
				Reflectivity:    pt.Reflectivity,
			}
		}
	})

	for _, n := range degradedPerRange {
		degraded += n
	}
	return out, degraded
}

// parallel runs fn over disjoint index ranges of [0, n) across the worker
// pool. Each range writes its own output slots; the trajectory and extrinsic
// are read-only, so no point-level synchronization is needed.
func (d *Deskewer) parallel(n int, fn func(lo, hi int)) {
	if n == 0 {
		return
	}
	workers := d.workers
	if workers > n {
		workers = n
	}
	if workers == 1 {
		fn(0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}

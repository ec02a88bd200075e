package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// quatAboutZ builds a rotation of the given angle about the +Z axis.
func quatAboutZ(angle float64) quat.Number {
	return quat.Number{Real: math.Cos(angle / 2), Kmag: math.Sin(angle / 2)}
}

func vecNear(t *testing.T, want, got r3.Vec, tol float64) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, tol)
	assert.InDelta(t, want.Y, got.Y, tol)
	assert.InDelta(t, want.Z, got.Z, tol)
}

func TestRotateVec(t *testing.T) {
	t.Parallel()

	// 90° about Z maps +X to +Y.
	q := quatAboutZ(math.Pi / 2)
	got := RotateVec(q, r3.Vec{X: 1})
	vecNear(t, r3.Vec{Y: 1}, got, 1e-12)

	// Identity leaves vectors alone.
	got = RotateVec(QuatIdentity(), r3.Vec{X: 1, Y: 2, Z: 3})
	vecNear(t, r3.Vec{X: 1, Y: 2, Z: 3}, got, 1e-12)
}

func TestDeltaQuat(t *testing.T) {
	t.Parallel()

	// A finite rotation vector about Z matches the closed-form quaternion.
	theta := 0.3
	dq := DeltaQuat(r3.Vec{Z: theta})
	want := quatAboutZ(theta)
	assert.InDelta(t, want.Real, dq.Real, 1e-12)
	assert.InDelta(t, want.Kmag, dq.Kmag, 1e-12)

	// Tiny rotations stay unit-norm through the first-order branch.
	dq = DeltaQuat(r3.Vec{X: 1e-12, Y: -1e-12})
	assert.InDelta(t, 1.0, quat.Abs(dq), 1e-9)

	// Zero rotation is identity.
	dq = DeltaQuat(r3.Vec{})
	assert.InDelta(t, 1.0, dq.Real, 1e-15)
}

func TestSlerp(t *testing.T) {
	t.Parallel()

	q0 := QuatIdentity()
	q1 := quatAboutZ(math.Pi / 2)

	// Endpoints are exact.
	s0 := Slerp(q0, q1, 0)
	s1 := Slerp(q0, q1, 1)
	assert.InDelta(t, q0.Real, s0.Real, 1e-12)
	assert.InDelta(t, q1.Kmag, s1.Kmag, 1e-12)

	// Midpoint of a 90° rotation is a 45° rotation.
	mid := Slerp(q0, q1, 0.5)
	want := quatAboutZ(math.Pi / 4)
	assert.InDelta(t, want.Real, mid.Real, 1e-12)
	assert.InDelta(t, want.Kmag, mid.Kmag, 1e-12)

	// Antipodal representation of the same rotation still takes the short arc.
	mid = Slerp(q0, quat.Scale(-1, q1), 0.5)
	got := RotateVec(mid, r3.Vec{X: 1})
	vecNear(t, RotateVec(want, r3.Vec{X: 1}), got, 1e-9)

	// Nearly parallel quaternions go through the nlerp fallback and stay unit.
	close := quatAboutZ(1e-4)
	mid = Slerp(q0, close, 0.5)
	assert.InDelta(t, 1.0, quat.Abs(mid), 1e-12)
}

func TestRigidFromMatrixRoundTrip(t *testing.T) {
	t.Parallel()

	// The default ranging-sensor-to-body extrinsic: 180° about Z plus a small
	// translation.
	m := [16]float64{
		-1, 0, 0, -0.006253,
		0, -1, 0, 0.011775,
		0, 0, 1, 0.028535,
		0, 0, 0, 1,
	}
	tf, err := RigidFromMatrix(m)
	require.NoError(t, err)

	p := r3.Vec{X: 1.5, Y: -2.25, Z: 0.75}
	back := tf.Inverse().Apply(tf.Apply(p))
	vecNear(t, p, back, 1e-12)

	// Matrix application agrees with quaternion application.
	want := r3.Vec{X: -p.X - 0.006253, Y: -p.Y + 0.011775, Z: p.Z + 0.028535}
	vecNear(t, want, tf.Apply(p), 1e-12)
}

func TestRigidFromMatrixRejectsMalformed(t *testing.T) {
	t.Parallel()

	// Reflection (det = -1).
	reflection := [16]float64{
		-1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
	_, err := RigidFromMatrix(reflection)
	assert.Error(t, err)

	// Scaled rotation block.
	scaled := [16]float64{
		2, 0, 0, 0,
		0, 2, 0, 0,
		0, 0, 2, 0,
		0, 0, 0, 1,
	}
	_, err = RigidFromMatrix(scaled)
	assert.Error(t, err)

	// Bad bottom row.
	badRow := [16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 1, 0, 1,
	}
	_, err = RigidFromMatrix(badRow)
	assert.Error(t, err)
}

func TestQuatFromRotationMatrixBranches(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		m    [16]float64
	}{
		{"identity", [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}},
		{"180 about x", [16]float64{1, 0, 0, 0, 0, -1, 0, 0, 0, 0, -1, 0, 0, 0, 0, 1}},
		{"180 about y", [16]float64{-1, 0, 0, 0, 0, 1, 0, 0, 0, 0, -1, 0, 0, 0, 0, 1}},
		{"180 about z", [16]float64{-1, 0, 0, 0, 0, -1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}},
	}
	probe := r3.Vec{X: 0.3, Y: -0.7, Z: 1.1}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tf, err := RigidFromMatrix(tc.m)
			require.NoError(t, err)
			assert.InDelta(t, 1.0, quat.Abs(tf.R), 1e-12)

			// Quaternion rotation must agree with direct matrix application.
			want := r3.Vec{
				X: tc.m[0]*probe.X + tc.m[1]*probe.Y + tc.m[2]*probe.Z,
				Y: tc.m[4]*probe.X + tc.m[5]*probe.Y + tc.m[6]*probe.Z,
				Z: tc.m[8]*probe.X + tc.m[9]*probe.Y + tc.m[10]*probe.Z,
			}
			vecNear(t, want, RotateVec(tf.R, probe), 1e-12)
		})
	}
}

func TestLerp(t *testing.T) {
	t.Parallel()

	a := r3.Vec{X: 1, Y: 2, Z: 3}
	b := r3.Vec{X: 3, Y: 6, Z: 9}
	vecNear(t, a, Lerp(a, b, 0), 1e-15)
	vecNear(t, b, Lerp(a, b, 1), 1e-15)
	vecNear(t, r3.Vec{X: 2, Y: 4, Z: 6}, Lerp(a, b, 0.5), 1e-15)
}

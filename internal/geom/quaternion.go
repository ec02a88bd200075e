// Package geom provides the small amount of rigid-body math the deskew
// pipeline needs: unit-quaternion rotation, small-angle increments, spherical
// interpolation and rigid sensor-to-sensor transforms. Quaternions use
// gonum's quat.Number (Real=w, Imag=x, Jmag=y, Kmag=z); vectors use
// gonum's spatial/r3.
package geom

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// QuatIdentity is the no-rotation quaternion.
func QuatIdentity() quat.Number {
	return quat.Number{Real: 1}
}

// Normalize returns q scaled to unit norm. A degenerate (near-zero) quaternion
// normalizes to identity rather than NaN.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n < 1e-12 {
		return QuatIdentity()
	}
	return quat.Scale(1/n, q)
}

// RotateVec rotates v by the unit quaternion q (computes q * v * q⁻¹).
func RotateVec(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vec{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// DeltaQuat converts a rotation vector (axis scaled by angle, radians) into
// the corresponding unit quaternion increment. For very small angles the
// first-order expansion (1, θ/2) is used to avoid dividing by a vanishing
// norm.
func DeltaQuat(theta r3.Vec) quat.Number {
	angle := r3.Norm(theta)
	if angle < 1e-9 {
		return Normalize(quat.Number{
			Real: 1,
			Imag: theta.X / 2,
			Jmag: theta.Y / 2,
			Kmag: theta.Z / 2,
		})
	}
	half := angle / 2
	s := math.Sin(half) / angle
	return quat.Number{
		Real: math.Cos(half),
		Imag: theta.X * s,
		Jmag: theta.Y * s,
		Kmag: theta.Z * s,
	}
}

// Slerp spherically interpolates between unit quaternions q0 and q1 with
// fraction s in [0,1], always along the shorter arc. Nearly parallel inputs
// fall back to normalized linear interpolation.
func Slerp(q0, q1 quat.Number, s float64) quat.Number {
	dot := q0.Real*q1.Real + q0.Imag*q1.Imag + q0.Jmag*q1.Jmag + q0.Kmag*q1.Kmag
	if dot < 0 {
		q1 = quat.Scale(-1, q1)
		dot = -dot
	}
	if dot > 0.9995 {
		return Normalize(quat.Add(quat.Scale(1-s, q0), quat.Scale(s, q1)))
	}
	omega := math.Acos(dot)
	sinOmega := math.Sin(omega)
	a := math.Sin((1-s)*omega) / sinOmega
	b := math.Sin(s*omega) / sinOmega
	return quat.Add(quat.Scale(a, q0), quat.Scale(b, q1))
}

// Lerp linearly interpolates between vectors a and b with fraction s.
func Lerp(a, b r3.Vec, s float64) r3.Vec {
	return r3.Add(r3.Scale(1-s, a), r3.Scale(s, b))
}

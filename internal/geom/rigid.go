package geom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// MatrixValidationTolerance is the tolerance for checking that a 4x4 matrix
// encodes a proper rigid transform.
const MatrixValidationTolerance = 0.01

// Rigid is a rigid transform (rotation followed by translation), typically
// the fixed extrinsic mapping from the ranging sensor frame to the
// inertial/body frame.
type Rigid struct {
	R quat.Number
	T r3.Vec
}

// RigidIdentity returns the identity transform.
func RigidIdentity() Rigid {
	return Rigid{R: QuatIdentity()}
}

// RigidFromQuat builds a transform from a unit quaternion and translation.
func RigidFromQuat(q quat.Number, t r3.Vec) Rigid {
	return Rigid{R: Normalize(q), T: t}
}

// RigidFromMatrix builds a transform from a 4x4 row-major matrix
// (m00,m01,...,m33). The matrix must be a proper rigid transform: orthonormal
// rotation block with determinant ≈ 1 and affine bottom row [0 0 0 1].
func RigidFromMatrix(m [16]float64) (Rigid, error) {
	if err := validateTransformMatrix(m); err != nil {
		return Rigid{}, err
	}
	return Rigid{
		R: quatFromRotationMatrix(m),
		T: r3.Vec{X: m[3], Y: m[7], Z: m[11]},
	}, nil
}

// Apply maps a point through the transform: R*v + T.
func (rt Rigid) Apply(v r3.Vec) r3.Vec {
	return r3.Add(RotateVec(rt.R, v), rt.T)
}

// Inverse returns the transform mapping the other way.
func (rt Rigid) Inverse() Rigid {
	inv := quat.Conj(rt.R)
	return Rigid{R: inv, T: r3.Scale(-1, RotateVec(inv, rt.T))}
}

// validateTransformMatrix checks that a 4x4 row-major matrix is a valid rigid
// transform:
// 1. Orthonormal rotation submatrix (det ≈ 1, unit rows, orthogonal rows)
// 2. Last row is [0 0 0 1]
func validateTransformMatrix(m [16]float64) error {
	r00, r01, r02 := m[0], m[1], m[2]
	r10, r11, r12 := m[4], m[5], m[6]
	r20, r21, r22 := m[8], m[9], m[10]

	// Determinant ≈ 1 (proper rotation, not reflection)
	det := r00*(r11*r22-r12*r21) - r01*(r10*r22-r12*r20) + r02*(r10*r21-r11*r20)
	if math.Abs(det-1.0) > MatrixValidationTolerance {
		return fmt.Errorf("rotation block determinant %.4f is not 1", det)
	}

	rows := [3][3]float64{
		{r00, r01, r02},
		{r10, r11, r12},
		{r20, r21, r22},
	}
	for i, row := range rows {
		n := math.Sqrt(row[0]*row[0] + row[1]*row[1] + row[2]*row[2])
		if math.Abs(n-1.0) > MatrixValidationTolerance {
			return fmt.Errorf("rotation row %d has norm %.4f, want 1", i, n)
		}
	}
	for i := 0; i < 3; i++ {
		for j := i + 1; j < 3; j++ {
			dot := rows[i][0]*rows[j][0] + rows[i][1]*rows[j][1] + rows[i][2]*rows[j][2]
			if math.Abs(dot) > MatrixValidationTolerance {
				return fmt.Errorf("rotation rows %d and %d are not orthogonal (dot %.4f)", i, j, dot)
			}
		}
	}

	if m[12] != 0 || m[13] != 0 || m[14] != 0 || math.Abs(m[15]-1.0) > MatrixValidationTolerance {
		return fmt.Errorf("bottom row is not [0 0 0 1]")
	}
	return nil
}

// quatFromRotationMatrix converts the rotation block of a validated row-major
// 4x4 matrix to a unit quaternion (Shepperd's method: branch on the largest
// diagonal term for numerical stability).
func quatFromRotationMatrix(m [16]float64) quat.Number {
	r00, r01, r02 := m[0], m[1], m[2]
	r10, r11, r12 := m[4], m[5], m[6]
	r20, r21, r22 := m[8], m[9], m[10]

	trace := r00 + r11 + r22
	var q quat.Number
	switch {
	case trace > 0:
		s := math.Sqrt(trace+1.0) * 2
		q = quat.Number{
			Real: s / 4,
			Imag: (r21 - r12) / s,
			Jmag: (r02 - r20) / s,
			Kmag: (r10 - r01) / s,
		}
	case r00 > r11 && r00 > r22:
		s := math.Sqrt(1.0+r00-r11-r22) * 2
		q = quat.Number{
			Real: (r21 - r12) / s,
			Imag: s / 4,
			Jmag: (r01 + r10) / s,
			Kmag: (r02 + r20) / s,
		}
	case r11 > r22:
		s := math.Sqrt(1.0+r11-r00-r22) * 2
		q = quat.Number{
			Real: (r02 - r20) / s,
			Imag: (r01 + r10) / s,
			Jmag: s / 4,
			Kmag: (r12 + r21) / s,
		}
	default:
		s := math.Sqrt(1.0+r22-r00-r11) * 2
		q = quat.Number{
			Real: (r10 - r01) / s,
			Imag: (r02 + r20) / s,
			Jmag: (r12 + r21) / s,
			Kmag: s / 4,
		}
	}
	return Normalize(q)
}

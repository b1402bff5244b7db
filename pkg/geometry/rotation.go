package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Rotation is a 3x3 rotation matrix stored row-major.
type Rotation [9]float64

// IdentityRotation returns the identity rotation.
func IdentityRotation() Rotation {
	return Rotation{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// RotationFromAxisAngle returns the rotation of |v| radians about v.
func RotationFromAxisAngle(v Point3D) Rotation {
	theta := v.Norm()
	if theta < 1e-12 {
		return Rotation{
			1, -v.Z, v.Y,
			v.Z, 1, -v.X,
			-v.Y, v.X, 1,
		}
	}
	k := v.Mul(1 / theta)
	s, c := math.Sin(theta), math.Cos(theta)
	t := 1 - c
	return Rotation{
		c + t*k.X*k.X, t*k.X*k.Y - s*k.Z, t*k.X*k.Z + s*k.Y,
		t*k.X*k.Y + s*k.Z, c + t*k.Y*k.Y, t*k.Y*k.Z - s*k.X,
		t*k.X*k.Z - s*k.Y, t*k.Y*k.Z + s*k.X, c + t*k.Z*k.Z,
	}
}

// RotationFromMatrix returns the rotation closest to the 3x3 matrix m in
// the Frobenius sense. It reports false when m is rank deficient.
func RotationFromMatrix(m mat.Matrix) (Rotation, bool) {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return Rotation{}, false
	}
	vals := svd.Values(nil)
	if vals[2] <= 1e-12*vals[0] {
		return Rotation{}, false
	}
	var u, v, r mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		// Flip the axis of the smallest singular value.
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[3*i+j] = r.At(i, j)
		}
	}
	return out, true
}

// At returns the element at row i, column j.
func (r Rotation) At(i, j int) float64 {
	return r[3*i+j]
}

// Matrix returns r as a gonum matrix.
func (r Rotation) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, r[:])
}

// Apply rotates v.
func (r Rotation) Apply(v Point3D) Point3D {
	return Point3D{
		X: r[0]*v.X + r[1]*v.Y + r[2]*v.Z,
		Y: r[3]*v.X + r[4]*v.Y + r[5]*v.Z,
		Z: r[6]*v.X + r[7]*v.Y + r[8]*v.Z,
	}
}

// Mul returns r * o.
func (r Rotation) Mul(o Rotation) Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[3*i+j] = r[3*i]*o[j] + r[3*i+1]*o[3+j] + r[3*i+2]*o[6+j]
		}
	}
	return out
}

// Transpose returns the inverse rotation.
func (r Rotation) Transpose() Rotation {
	return Rotation{
		r[0], r[3], r[6],
		r[1], r[4], r[7],
		r[2], r[5], r[8],
	}
}

// AxisAngle returns the rotation vector of r: its direction is the
// rotation axis and its length the angle in [0, π].
func (r Rotation) AxisAngle() Point3D {
	cos := (r[0] + r[4] + r[8] - 1) / 2
	cos = math.Max(-1, math.Min(1, cos))
	theta := math.Acos(cos)
	w := Point3D{X: r[7] - r[5], Y: r[2] - r[6], Z: r[3] - r[1]}
	switch {
	case theta < 1e-9:
		return w.Mul(0.5)
	case math.Pi-theta < 1e-6:
		// Near π the antisymmetric part vanishes; read the axis from R+I.
		cols := [3]Point3D{
			{X: r[0] + 1, Y: r[3], Z: r[6]},
			{X: r[1], Y: r[4] + 1, Z: r[7]},
			{X: r[2], Y: r[5], Z: r[8] + 1},
		}
		best := cols[0]
		for _, c := range cols[1:] {
			if c.Norm2() > best.Norm2() {
				best = c
			}
		}
		return best.Normalize().Mul(theta)
	default:
		return w.Mul(theta / (2 * math.Sin(theta)))
	}
}

// Angle returns the rotation angle of r.
func (r Rotation) Angle() float64 {
	return r.AxisAngle().Norm()
}

// AngleTo returns the angle of the relative rotation between r and o.
func (r Rotation) AngleTo(o Rotation) float64 {
	return r.Transpose().Mul(o).Angle()
}

package geometry

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ProjectiveTransform is a 2D homography stored row-major as a 3x3 matrix.
// It is defined up to scale.
type ProjectiveTransform [9]float64

// IdentityProjective returns the identity homography.
func IdentityProjective() ProjectiveTransform {
	return ProjectiveTransform{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// ProjectiveFromAffine lifts an affine transform to a homography.
func ProjectiveFromAffine(t AffineTransform) ProjectiveTransform {
	return ProjectiveTransform{t.A, t.B, t.TX, t.C, t.D, t.TY, 0, 0, 1}
}

// ProjectiveFromMatrix copies a 3x3 matrix.
func ProjectiveFromMatrix(m mat.Matrix) ProjectiveTransform {
	var h ProjectiveTransform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h[3*i+j] = m.At(i, j)
		}
	}
	return h
}

// Matrix returns h as a gonum matrix.
func (h ProjectiveTransform) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, h[:])
}

// Params returns the nine coefficients.
func (h ProjectiveTransform) Params() []float64 {
	out := make([]float64, 9)
	copy(out, h[:])
	return out
}

// Apply maps p. Points sent to infinity report false.
func (h ProjectiveTransform) Apply(p Point2D) (Point2D, bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if math.Abs(w) < 1e-15 {
		return Point2D{}, false
	}
	return Point2D{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

// Normalize scales h to unit Frobenius norm with a non-negative last
// non-zero coefficient, giving each homography a single representative.
func (h ProjectiveTransform) Normalize() (ProjectiveTransform, bool) {
	n := floats.Norm(h[:], 2)
	if n == 0 || !finite(n) {
		return ProjectiveTransform{}, false
	}
	s := 1 / n
	for i := 8; i >= 0; i-- {
		if h[i] != 0 {
			if h[i] < 0 {
				s = -s
			}
			break
		}
	}
	var out ProjectiveTransform
	for i, v := range h {
		out[i] = v * s
	}
	return out, true
}

// Compose returns h * o.
func (h ProjectiveTransform) Compose(o ProjectiveTransform) ProjectiveTransform {
	var m mat.Dense
	m.Mul(h.Matrix(), o.Matrix())
	return ProjectiveFromMatrix(&m)
}

// Inverse returns the inverse homography, if it exists.
func (h ProjectiveTransform) Inverse() (ProjectiveTransform, bool) {
	var inv mat.Dense
	if err := inv.Inverse(h.Matrix()); err != nil {
		return ProjectiveTransform{}, false
	}
	return ProjectiveFromMatrix(&inv), true
}

// Det returns the determinant of the homography matrix.
func (h ProjectiveTransform) Det() float64 {
	return mat.Det(h.Matrix())
}

// IsFinite reports whether every coefficient is finite.
func (h ProjectiveTransform) IsFinite() bool {
	for _, v := range h {
		if !finite(v) {
			return false
		}
	}
	return true
}

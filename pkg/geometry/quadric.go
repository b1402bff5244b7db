package geometry

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Quadric is the locus
//
//	A*x² + B*y² + C*z² + D*x*y + E*x*z + F*y*z + G*x + H*y + I*z + J = 0.
type Quadric struct {
	A, B, C, D, E, F, G, H, I, J float64
}

// QuadricFromParams builds a quadric from [A B C D E F G H I J].
func QuadricFromParams(p []float64) Quadric {
	return Quadric{
		A: p[0], B: p[1], C: p[2], D: p[3], E: p[4],
		F: p[5], G: p[6], H: p[7], I: p[8], J: p[9],
	}
}

// Sphere returns the quadric of the sphere with the given center and radius.
func Sphere(center Point3D, radius float64) Quadric {
	return Quadric{
		A: 1, B: 1, C: 1,
		G: -2 * center.X,
		H: -2 * center.Y,
		I: -2 * center.Z,
		J: center.Norm2() - radius*radius,
	}
}

// Params returns [A B C D E F G H I J].
func (q Quadric) Params() []float64 {
	return []float64{q.A, q.B, q.C, q.D, q.E, q.F, q.G, q.H, q.I, q.J}
}

// Normalize scales the coefficients to unit Euclidean norm.
func (q Quadric) Normalize() (Quadric, bool) {
	p := q.Params()
	n := floats.Norm(p, 2)
	if n == 0 || !finite(n) {
		return Quadric{}, false
	}
	floats.Scale(1/n, p)
	return QuadricFromParams(p), true
}

// Matrix returns the symmetric 4x4 matrix Q with xᵀQx equal to Evaluate.
func (q Quadric) Matrix() *mat.SymDense {
	return mat.NewSymDense(4, []float64{
		q.A, q.D / 2, q.E / 2, q.G / 2,
		q.D / 2, q.B, q.F / 2, q.H / 2,
		q.E / 2, q.F / 2, q.C, q.I / 2,
		q.G / 2, q.H / 2, q.I / 2, q.J,
	})
}

// QuadricFromMatrix is the inverse of Matrix.
func QuadricFromMatrix(m mat.Matrix) Quadric {
	return Quadric{
		A: m.At(0, 0),
		B: m.At(1, 1),
		C: m.At(2, 2),
		D: m.At(0, 1) + m.At(1, 0),
		E: m.At(0, 2) + m.At(2, 0),
		F: m.At(1, 2) + m.At(2, 1),
		G: m.At(0, 3) + m.At(3, 0),
		H: m.At(1, 3) + m.At(3, 1),
		I: m.At(2, 3) + m.At(3, 2),
		J: m.At(3, 3),
	}
}

// Evaluate returns the algebraic value of the quadric at p.
func (q Quadric) Evaluate(p Point3D) float64 {
	x, y, z := p.X, p.Y, p.Z
	return q.A*x*x + q.B*y*y + q.C*z*z +
		q.D*x*y + q.E*x*z + q.F*y*z +
		q.G*x + q.H*y + q.I*z + q.J
}

// Gradient returns the gradient of Evaluate at p.
func (q Quadric) Gradient(p Point3D) Point3D {
	x, y, z := p.X, p.Y, p.Z
	return Point3D{
		X: 2*q.A*x + q.D*y + q.E*z + q.G,
		Y: 2*q.B*y + q.D*x + q.F*z + q.H,
		Z: 2*q.C*z + q.E*x + q.F*y + q.I,
	}
}

// SampsonDistance is the first-order geometric distance from p to the
// quadric. Where the gradient vanishes the algebraic value is returned.
func (q Quadric) SampsonDistance(p Point3D) float64 {
	f := q.Evaluate(p)
	g := q.Gradient(p).Norm()
	if g < 1e-12 {
		return math.Abs(f)
	}
	return math.Abs(f) / g
}

// IsLocus reports whether p lies on the quadric within tol.
func (q Quadric) IsLocus(p Point3D, tol float64) bool {
	return q.SampsonDistance(p) <= tol
}

// IsFinite reports whether every coefficient is finite.
func (q Quadric) IsFinite() bool {
	return !floats.HasNaN(q.Params()) && finite(floats.Norm(q.Params(), 2))
}

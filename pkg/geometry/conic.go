package geometry

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Conic is the locus A*x² + B*x*y + C*y² + D*x + E*y + F = 0.
type Conic struct {
	A, B, C, D, E, F float64
}

// ConicFromParams builds a conic from [A B C D E F].
func ConicFromParams(p []float64) Conic {
	return Conic{A: p[0], B: p[1], C: p[2], D: p[3], E: p[4], F: p[5]}
}

// Circle returns the conic of the circle with the given center and radius.
func Circle(center Point2D, radius float64) Conic {
	return Conic{
		A: 1, C: 1,
		D: -2 * center.X,
		E: -2 * center.Y,
		F: center.X*center.X + center.Y*center.Y - radius*radius,
	}
}

// Params returns [A B C D E F].
func (c Conic) Params() []float64 {
	return []float64{c.A, c.B, c.C, c.D, c.E, c.F}
}

// Normalize scales the coefficients to unit Euclidean norm.
func (c Conic) Normalize() (Conic, bool) {
	p := c.Params()
	n := floats.Norm(p, 2)
	if n == 0 || !finite(n) {
		return Conic{}, false
	}
	floats.Scale(1/n, p)
	return ConicFromParams(p), true
}

// Matrix returns the symmetric 3x3 matrix Q with xᵀQx equal to Evaluate.
func (c Conic) Matrix() *mat.SymDense {
	return mat.NewSymDense(3, []float64{
		c.A, c.B / 2, c.D / 2,
		c.B / 2, c.C, c.E / 2,
		c.D / 2, c.E / 2, c.F,
	})
}

// ConicFromMatrix is the inverse of Matrix.
func ConicFromMatrix(q mat.Matrix) Conic {
	return Conic{
		A: q.At(0, 0),
		B: q.At(0, 1) + q.At(1, 0),
		C: q.At(1, 1),
		D: q.At(0, 2) + q.At(2, 0),
		E: q.At(1, 2) + q.At(2, 1),
		F: q.At(2, 2),
	}
}

// Evaluate returns the algebraic value of the conic at p.
func (c Conic) Evaluate(p Point2D) float64 {
	x, y := p.X, p.Y
	return c.A*x*x + c.B*x*y + c.C*y*y + c.D*x + c.E*y + c.F
}

// Gradient returns the gradient of Evaluate at p.
func (c Conic) Gradient(p Point2D) Point2D {
	return Point2D{
		X: 2*c.A*p.X + c.B*p.Y + c.D,
		Y: c.B*p.X + 2*c.C*p.Y + c.E,
	}
}

// SampsonDistance is the first-order geometric distance from p to the
// conic. Where the gradient vanishes the algebraic value is returned.
func (c Conic) SampsonDistance(p Point2D) float64 {
	f := c.Evaluate(p)
	g := c.Gradient(p).Norm()
	if g < 1e-12 {
		return math.Abs(f)
	}
	return math.Abs(f) / g
}

// IsLocus reports whether p lies on the conic within tol.
func (c Conic) IsLocus(p Point2D, tol float64) bool {
	return c.SampsonDistance(p) <= tol
}

// IsFinite reports whether every coefficient is finite.
func (c Conic) IsFinite() bool {
	return !floats.HasNaN(c.Params()) && finite(floats.Norm(c.Params(), 2))
}

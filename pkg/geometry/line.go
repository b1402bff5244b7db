package geometry

import "math"

// Line2D is the line A*x + B*y + C = 0. Lines built by this package keep
// (A, B) at unit length so Distance is a true Euclidean distance.
type Line2D struct {
	A, B, C float64
}

// NewLine2D returns the normalized line a*x + b*y + c = 0. It reports false
// when a and b are both zero.
func NewLine2D(a, b, c float64) (Line2D, bool) {
	return Line2D{A: a, B: b, C: c}.Normalize()
}

// LineThrough returns the line through p and q.
func LineThrough(p, q Point2D) (Line2D, bool) {
	d := q.Sub(p)
	return NewLine2D(-d.Y, d.X, d.Y*p.X-d.X*p.Y)
}

// LineFromPolar returns the line at distance rho from the origin whose
// normal makes angle theta with the x axis.
func LineFromPolar(theta, rho float64) Line2D {
	return Line2D{A: math.Cos(theta), B: math.Sin(theta), C: -rho}
}

// Polar returns the normal angle and the signed origin distance of l.
func (l Line2D) Polar() (theta, rho float64) {
	return math.Atan2(l.B, l.A), -l.C
}

// Normalize scales the line so that its normal has unit length.
func (l Line2D) Normalize() (Line2D, bool) {
	n := math.Hypot(l.A, l.B)
	if n == 0 || !finite(n) || !finite(l.C) {
		return Line2D{}, false
	}
	return Line2D{A: l.A / n, B: l.B / n, C: l.C / n}, true
}

// Normal returns the unit normal of the line.
func (l Line2D) Normal() Point2D {
	return Point2D{X: l.A, Y: l.B}
}

// Direction returns a unit vector along the line.
func (l Line2D) Direction() Point2D {
	return Point2D{X: -l.B, Y: l.A}
}

// SignedDistance returns the signed distance from p to the line.
func (l Line2D) SignedDistance(p Point2D) float64 {
	return l.A*p.X + l.B*p.Y + l.C
}

// Distance returns the distance from p to the line.
func (l Line2D) Distance(p Point2D) float64 {
	return math.Abs(l.SignedDistance(p))
}

// IsLocus reports whether p lies on the line within tol.
func (l Line2D) IsLocus(p Point2D, tol float64) bool {
	return l.Distance(p) <= tol
}

// Intersect returns the intersection of two lines. Parallel lines report false.
func (l Line2D) Intersect(o Line2D) (Point2D, bool) {
	det := l.A*o.B - l.B*o.A
	if math.Abs(det) < 1e-12 {
		return Point2D{}, false
	}
	return Point2D{
		X: (l.B*o.C - o.B*l.C) / det,
		Y: (o.A*l.C - l.A*o.C) / det,
	}, true
}

// Equal reports whether two lines describe the same locus up to tol. The
// orientation of the normal is ignored.
func (l Line2D) Equal(o Line2D, tol float64) bool {
	same := math.Abs(l.A-o.A) <= tol && math.Abs(l.B-o.B) <= tol && math.Abs(l.C-o.C) <= tol
	flip := math.Abs(l.A+o.A) <= tol && math.Abs(l.B+o.B) <= tol && math.Abs(l.C+o.C) <= tol
	return same || flip
}

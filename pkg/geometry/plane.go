package geometry

import "math"

// Plane is the plane A*x + B*y + C*z + D = 0 with a unit normal.
type Plane struct {
	A, B, C, D float64
}

// NewPlane returns the normalized plane a*x + b*y + c*z + d = 0.
func NewPlane(a, b, c, d float64) (Plane, bool) {
	return Plane{A: a, B: b, C: c, D: d}.Normalize()
}

// PlaneFromPointNormal returns the plane through p with the given normal.
func PlaneFromPointNormal(p, normal Point3D) (Plane, bool) {
	return NewPlane(normal.X, normal.Y, normal.Z, -normal.Dot(p))
}

// PlaneThrough returns the plane through three points. Collinear points
// report false.
func PlaneThrough(p1, p2, p3 Point3D) (Plane, bool) {
	if Collinear3D(p1, p2, p3, 1e-12) {
		return Plane{}, false
	}
	n := p2.Sub(p1).Cross(p3.Sub(p1))
	return PlaneFromPointNormal(p1, n)
}

// Normalize scales the plane so that its normal has unit length.
func (p Plane) Normalize() (Plane, bool) {
	n := p.Normal().Norm()
	if n == 0 || !finite(n) || !finite(p.D) {
		return Plane{}, false
	}
	return Plane{A: p.A / n, B: p.B / n, C: p.C / n, D: p.D / n}, true
}

// Normal returns the plane normal (A, B, C).
func (p Plane) Normal() Point3D {
	return Point3D{X: p.A, Y: p.B, Z: p.C}
}

// SignedDistance returns the signed distance from x to the plane.
func (p Plane) SignedDistance(x Point3D) float64 {
	return p.A*x.X + p.B*x.Y + p.C*x.Z + p.D
}

// Distance returns the distance from x to the plane.
func (p Plane) Distance(x Point3D) float64 {
	return math.Abs(p.SignedDistance(x))
}

// IsLocus reports whether x lies on the plane within tol.
func (p Plane) IsLocus(x Point3D, tol float64) bool {
	return p.Distance(x) <= tol
}

// IntersectPlanes returns the single point common to three planes. Planes
// whose normals do not span space report false.
func IntersectPlanes(p1, p2, p3 Plane) (Point3D, bool) {
	n1, n2, n3 := p1.Normal(), p2.Normal(), p3.Normal()
	det := n1.Dot(n2.Cross(n3))
	if math.Abs(det) < 1e-12 {
		return Point3D{}, false
	}
	x := n2.Cross(n3).Mul(-p1.D).
		Add(n3.Cross(n1).Mul(-p2.D)).
		Add(n1.Cross(n2).Mul(-p3.D)).
		Mul(1 / det)
	return x, IsFinite3D(x)
}

// Equal reports whether two planes describe the same locus up to tol.
func (p Plane) Equal(o Plane, tol float64) bool {
	same := math.Abs(p.A-o.A) <= tol && math.Abs(p.B-o.B) <= tol &&
		math.Abs(p.C-o.C) <= tol && math.Abs(p.D-o.D) <= tol
	flip := math.Abs(p.A+o.A) <= tol && math.Abs(p.B+o.B) <= tol &&
		math.Abs(p.C+o.C) <= tol && math.Abs(p.D+o.D) <= tol
	return same || flip
}

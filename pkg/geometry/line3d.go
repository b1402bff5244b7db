package geometry

import "math"

// Line3D is the line through Point along the unit Direction. Lines built
// by this package keep Point at the foot of the perpendicular from the
// origin, so equal lines have equal points.
type Line3D struct {
	Point     Point3D
	Direction Point3D
}

// NewLine3D returns the line through p along dir. A zero or non finite
// direction reports false.
func NewLine3D(p, dir Point3D) (Line3D, bool) {
	n := dir.Norm()
	if n == 0 || !finite(n) || !IsFinite3D(p) {
		return Line3D{}, false
	}
	d := dir.Mul(1 / n)
	foot := p.Sub(d.Mul(p.Dot(d)))
	return Line3D{Point: foot, Direction: d}, true
}

// Line3DThrough returns the line through two points. Coincident points
// report false.
func Line3DThrough(p, q Point3D) (Line3D, bool) {
	return NewLine3D(p, q.Sub(p))
}

// At returns Point + t*Direction.
func (l Line3D) At(t float64) Point3D {
	return l.Point.Add(l.Direction.Mul(t))
}

// ClosestPoint returns the point of l nearest to x.
func (l Line3D) ClosestPoint(x Point3D) Point3D {
	return l.At(x.Sub(l.Point).Dot(l.Direction))
}

// Offset returns the perpendicular vector from l to x.
func (l Line3D) Offset(x Point3D) Point3D {
	return x.Sub(l.ClosestPoint(x))
}

// Distance returns the distance from x to the line.
func (l Line3D) Distance(x Point3D) float64 {
	return l.Offset(x).Norm()
}

// IsLocus reports whether x lies on the line within tol.
func (l Line3D) IsLocus(x Point3D, tol float64) bool {
	return l.Distance(x) <= tol
}

// IsFinite reports whether the line has finite coordinates and a usable
// direction.
func (l Line3D) IsFinite() bool {
	return IsFinite3D(l.Point) && IsFinite3D(l.Direction) && l.Direction.Norm() > 0
}

// Equal reports whether two lines describe the same locus up to tol. The
// direction sign is ignored.
func (l Line3D) Equal(o Line3D, tol float64) bool {
	a, ok := NewLine3D(l.Point, l.Direction)
	if !ok {
		return false
	}
	b, ok := NewLine3D(o.Point, o.Direction)
	if !ok {
		return false
	}
	if a.Point.Sub(b.Point).Norm() > tol {
		return false
	}
	return a.Direction.Sub(b.Direction).Norm() <= tol || a.Direction.Add(b.Direction).Norm() <= tol
}

// Angle returns the angle between the two lines in [0, π/2].
func (l Line3D) Angle(o Line3D) float64 {
	c := math.Abs(l.Direction.Normalize().Dot(o.Direction.Normalize()))
	return math.Acos(math.Min(c, 1))
}

// Package geometry provides the geometric value types fitted by the robust estimators.
package geometry

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Point2D is a point in the plane.
type Point2D = r2.Point

// Point3D is a point in space.
type Point3D = r3.Vector

// NewPoint2D creates a new Point2D.
func NewPoint2D(x, y float64) Point2D {
	return Point2D{X: x, Y: y}
}

// NewPoint3D creates a new Point3D.
func NewPoint3D(x, y, z float64) Point3D {
	return Point3D{X: x, Y: y, Z: z}
}

// Distance2D returns the Euclidean distance between two points.
func Distance2D(a, b Point2D) float64 {
	return a.Sub(b).Norm()
}

// IsFinite2D reports whether both coordinates are finite.
func IsFinite2D(p Point2D) bool {
	return finite(p.X) && finite(p.Y)
}

// IsFinite3D reports whether all coordinates are finite.
func IsFinite3D(p Point3D) bool {
	return finite(p.X) && finite(p.Y) && finite(p.Z)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// AffineTransform represents a 2x3 affine transformation matrix.
// [a b tx]
// [c d ty]
type AffineTransform struct {
	A, B, TX float64
	C, D, TY float64
}

// Identity returns the identity transform.
func Identity() AffineTransform {
	return AffineTransform{A: 1, D: 1}
}

// Translation returns a translation transform.
func Translation(tx, ty float64) AffineTransform {
	return AffineTransform{A: 1, D: 1, TX: tx, TY: ty}
}

// Rotation2D returns a rotation transform around the origin.
func Rotation2D(radians float64) AffineTransform {
	cos := math.Cos(radians)
	sin := math.Sin(radians)
	return AffineTransform{A: cos, B: -sin, C: sin, D: cos}
}

// Scale returns a scaling transform.
func Scale(sx, sy float64) AffineTransform {
	return AffineTransform{A: sx, D: sy}
}

// Apply applies the transform to a point.
func (t AffineTransform) Apply(p Point2D) Point2D {
	return Point2D{
		X: t.A*p.X + t.B*p.Y + t.TX,
		Y: t.C*p.X + t.D*p.Y + t.TY,
	}
}

// Compose returns this transform composed with another (this * other).
func (t AffineTransform) Compose(other AffineTransform) AffineTransform {
	return AffineTransform{
		A:  t.A*other.A + t.B*other.C,
		B:  t.A*other.B + t.B*other.D,
		TX: t.A*other.TX + t.B*other.TY + t.TX,
		C:  t.C*other.A + t.D*other.C,
		D:  t.C*other.B + t.D*other.D,
		TY: t.C*other.TX + t.D*other.TY + t.TY,
	}
}

// Det returns the determinant of the linear part.
func (t AffineTransform) Det() float64 {
	return t.A*t.D - t.B*t.C
}

// Inverse returns the inverse transform, if it exists.
func (t AffineTransform) Inverse() (AffineTransform, bool) {
	det := t.Det()
	if math.Abs(det) < 1e-10 {
		return AffineTransform{}, false
	}

	invDet := 1.0 / det
	return AffineTransform{
		A:  t.D * invDet,
		B:  -t.B * invDet,
		TX: (t.B*t.TY - t.D*t.TX) * invDet,
		C:  -t.C * invDet,
		D:  t.A * invDet,
		TY: (t.C*t.TX - t.A*t.TY) * invDet,
	}, true
}

// Params returns the transform as [a b tx c d ty].
func (t AffineTransform) Params() []float64 {
	return []float64{t.A, t.B, t.TX, t.C, t.D, t.TY}
}

// AffineFromParams is the inverse of Params.
func AffineFromParams(p []float64) AffineTransform {
	return AffineTransform{
		A: p[0], B: p[1], TX: p[2],
		C: p[3], D: p[4], TY: p[5],
	}
}

// IsFinite reports whether every coefficient is finite.
func (t AffineTransform) IsFinite() bool {
	for _, v := range t.Params() {
		if !finite(v) {
			return false
		}
	}
	return true
}

// Centroid computes the centroid (average position) of a set of points.
func Centroid(points []Point2D) Point2D {
	if len(points) == 0 {
		return Point2D{}
	}
	var sumX, sumY float64
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
	}
	n := float64(len(points))
	return Point2D{X: sumX / n, Y: sumY / n}
}

// Centroid3D computes the centroid of a set of points in space.
func Centroid3D(points []Point3D) Point3D {
	if len(points) == 0 {
		return Point3D{}
	}
	var sum Point3D
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(points)))
}

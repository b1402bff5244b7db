package geometry

import "math"

// Orientation returns twice the signed area of the triangle o, a, b.
// Positive for a counter-clockwise turn.
func Orientation(o, a, b Point2D) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// Collinear reports whether a, b and c lie on a common line. The test is
// relative to the lengths of ab and ac so it does not depend on scale.
func Collinear(a, b, c Point2D, tol float64) bool {
	ab := distSq(a, b)
	ac := distSq(a, c)
	if ab == 0 || ac == 0 {
		return true
	}
	return math.Abs(Orientation(a, b, c)) <= tol*math.Sqrt(ab*ac)
}

// AnyCollinear reports whether any three of the points are collinear.
func AnyCollinear(points []Point2D, tol float64) bool {
	n := len(points)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				if Collinear(points[i], points[j], points[k], tol) {
					return true
				}
			}
		}
	}
	return false
}

// ConsistentOrientation reports whether the triangles formed from src
// either all keep or all flip their turning direction in dst. A projective
// map that is valid over the region spanned by the points cannot mix the
// two.
func ConsistentOrientation(src, dst []Point2D) bool {
	if len(src) != len(dst) {
		return false
	}
	n := len(src)
	var sign float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				p := Orientation(src[i], src[j], src[k]) * Orientation(dst[i], dst[j], dst[k])
				if p == 0 {
					continue
				}
				if sign == 0 {
					sign = p
					continue
				}
				if sign*p < 0 {
					return false
				}
			}
		}
	}
	return true
}

// Collinear3D reports whether a, b and c lie on a common line in space.
func Collinear3D(a, b, c Point3D, tol float64) bool {
	ab := b.Sub(a)
	ac := c.Sub(a)
	na, nc := ab.Norm(), ac.Norm()
	if na == 0 || nc == 0 {
		return true
	}
	return ab.Cross(ac).Norm() <= tol*na*nc
}

// distSq computes the squared distance between two points.
func distSq(a, b Point2D) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	return dx*dx + dy*dy
}

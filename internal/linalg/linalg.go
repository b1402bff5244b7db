// Package linalg holds the numeric helpers shared by the minimal solvers.
package linalg

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// RankTolerance is the relative singular value below which a direction is
// treated as part of the null space.
const RankTolerance = 1e-10

// NullVector returns the unit right singular vector of a for its smallest
// singular value. It reports false when the null space has more than one
// dimension, which is how degenerate samples show up in DLT systems.
func NullVector(a mat.Matrix) ([]float64, bool) {
	r, c := a.Dims()
	if r < c-1 {
		return nil, false
	}
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return nil, false
	}
	vals := svd.Values(nil)
	if len(vals) < c-1 || vals[0] == 0 {
		return nil, false
	}
	if vals[c-2] <= RankTolerance*vals[0] {
		return nil, false
	}
	var v mat.Dense
	svd.VTo(&v)
	out := mat.Col(nil, c-1, &v)
	if floats.HasNaN(out) {
		return nil, false
	}
	return out, true
}

// Normalize2D applies Hartley normalization: translate the centroid to the
// origin and scale so the mean distance is √2. It returns the 3x3
// similarity T and the transformed points.
func Normalize2D(points []r2.Point) (*mat.Dense, []r2.Point) {
	n := float64(len(points))
	var cx, cy float64
	for _, p := range points {
		cx += p.X
		cy += p.Y
	}
	cx /= n
	cy /= n
	var mean float64
	for _, p := range points {
		mean += math.Hypot(p.X-cx, p.Y-cy)
	}
	mean /= n
	s := 1.0
	if mean > 0 {
		s = math.Sqrt2 / mean
	}
	out := make([]r2.Point, len(points))
	for i, p := range points {
		out[i] = r2.Point{X: s * (p.X - cx), Y: s * (p.Y - cy)}
	}
	t := mat.NewDense(3, 3, []float64{
		s, 0, -s * cx,
		0, s, -s * cy,
		0, 0, 1,
	})
	return t, out
}

// Normalize3D is the 3D counterpart of Normalize2D with mean distance √3.
// T is 4x4.
func Normalize3D(points []r3.Vector) (*mat.Dense, []r3.Vector) {
	var c r3.Vector
	for _, p := range points {
		c = c.Add(p)
	}
	c = c.Mul(1 / float64(len(points)))
	var mean float64
	for _, p := range points {
		mean += p.Sub(c).Norm()
	}
	mean /= float64(len(points))
	s := 1.0
	if mean > 0 {
		s = math.Sqrt(3) / mean
	}
	out := make([]r3.Vector, len(points))
	for i, p := range points {
		out[i] = p.Sub(c).Mul(s)
	}
	t := mat.NewDense(4, 4, []float64{
		s, 0, 0, -s * c.X,
		0, s, 0, -s * c.Y,
		0, 0, s, -s * c.Z,
		0, 0, 0, 1,
	})
	return t, out
}

// Median returns the median of values using scratch as sort space. For an
// even count the lower middle element is returned. values is not modified.
func Median(values, scratch []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	scratch = append(scratch[:0], values...)
	sort.Float64s(scratch)
	return stat.Quantile(0.5, stat.Empirical, scratch, nil)
}

// UnitNorm scales v in place to unit Euclidean norm. It reports false for
// zero or non-finite vectors.
func UnitNorm(v []float64) bool {
	n := floats.Norm(v, 2)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return false
	}
	floats.Scale(1/n, v)
	return true
}

// Finite reports whether every value is finite.
func Finite(v ...float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

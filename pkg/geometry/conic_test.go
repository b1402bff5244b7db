package geometry

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestCircle(t *testing.T) {
	center := NewPoint2D(1, 2)
	c := Circle(center, 3)

	for _, a := range []float64{0, 0.5, 2, 4} {
		p := center.Add(NewPoint2D(math.Cos(a), math.Sin(a)).Mul(3))
		assert.InDelta(t, 0, c.Evaluate(p), 1e-12)
		assert.True(t, c.IsLocus(p, 1e-12))
	}

	// f = 16 - 9 and |∇f| = 8 one unit outside the circle.
	assert.InDelta(t, 7.0/8, c.SampsonDistance(center.Add(NewPoint2D(4, 0))), 1e-12)
	// At the center the gradient vanishes and the algebraic value is used.
	assert.InDelta(t, 9, c.SampsonDistance(center), 1e-12)
}

func TestConicMatrixRoundTrip(t *testing.T) {
	c := Conic{A: 1, B: -2, C: 3, D: 0.5, E: -4, F: 7}
	if diff := cmp.Diff(c, ConicFromMatrix(c.Matrix()), approx); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	p := NewPoint2D(0.3, -1.7)
	q := c.Matrix()
	x := []float64{p.X, p.Y, 1}
	var quad float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			quad += x[i] * q.At(i, j) * x[j]
		}
	}
	assert.InDelta(t, c.Evaluate(p), quad, 1e-12)
}

func TestConicNormalize(t *testing.T) {
	c, ok := Circle(NewPoint2D(3, 4), 2).Normalize()
	require.True(t, ok)
	assert.InDelta(t, 1, floats.Norm(c.Params(), 2), 1e-12)
	assert.True(t, c.IsFinite())

	_, ok = Conic{}.Normalize()
	assert.False(t, ok)
	assert.False(t, Conic{A: math.Inf(1)}.IsFinite())
}

func TestSphere(t *testing.T) {
	center := NewPoint3D(1, -1, 2)
	q := Sphere(center, 2)

	for _, d := range []Point3D{{X: 1}, {Y: -1}, {Z: 1}, NewPoint3D(1, 1, 1).Normalize()} {
		p := center.Add(d.Mul(2))
		assert.InDelta(t, 0, q.Evaluate(p), 1e-12)
	}
	// f = 9 - 4 and |∇f| = 6 one unit outside the sphere.
	assert.InDelta(t, 5.0/6, q.SampsonDistance(center.Add(Point3D{Z: 3})), 1e-12)
}

func TestQuadricMatrixRoundTrip(t *testing.T) {
	q := QuadricFromParams([]float64{1, 2, 3, -1, 0.5, 4, -2, 0, 1, -6})
	if diff := cmp.Diff(q, QuadricFromMatrix(q.Matrix()), approx); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	p := NewPoint3D(0.2, -0.4, 1.1)
	m := q.Matrix()
	x := []float64{p.X, p.Y, p.Z, 1}
	var quad float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			quad += x[i] * m.At(i, j) * x[j]
		}
	}
	assert.InDelta(t, q.Evaluate(p), quad, 1e-12)
}

func TestQuadricGradient(t *testing.T) {
	q := QuadricFromParams([]float64{1, 2, 3, -1, 0.5, 4, -2, 0, 1, -6})
	p := NewPoint3D(0.3, 0.7, -0.2)
	g := q.Gradient(p)
	const h = 1e-6
	numeric := NewPoint3D(
		(q.Evaluate(p.Add(Point3D{X: h}))-q.Evaluate(p.Sub(Point3D{X: h})))/(2*h),
		(q.Evaluate(p.Add(Point3D{Y: h}))-q.Evaluate(p.Sub(Point3D{Y: h})))/(2*h),
		(q.Evaluate(p.Add(Point3D{Z: h}))-q.Evaluate(p.Sub(Point3D{Z: h})))/(2*h),
	)
	assert.InDelta(t, 0, g.Sub(numeric).Norm(), 1e-6)

	_, ok := Quadric{}.Normalize()
	assert.False(t, ok)
}

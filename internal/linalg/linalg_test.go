package linalg

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestNullVector(t *testing.T) {
	t.Run("rank deficient by one", func(t *testing.T) {
		// Rows are orthogonal to (1, 1, -1).
		a := mat.NewDense(2, 3, []float64{
			1, 0, 1,
			0, 1, 1,
		})
		v, ok := NullVector(a)
		require.True(t, ok)
		var out mat.VecDense
		out.MulVec(a, mat.NewVecDense(3, v))
		assert.InDelta(t, 0, out.AtVec(0), 1e-12)
		assert.InDelta(t, 0, out.AtVec(1), 1e-12)
		assert.InDelta(t, 1, floats.Norm(v, 2), 1e-12)
	})
	t.Run("two dimensional null space", func(t *testing.T) {
		a := mat.NewDense(2, 3, []float64{
			1, 0, 0,
			2, 0, 0,
		})
		_, ok := NullVector(a)
		assert.False(t, ok)
	})
	t.Run("too few rows", func(t *testing.T) {
		_, ok := NullVector(mat.NewDense(1, 4, []float64{1, 2, 3, 4}))
		assert.False(t, ok)
	})
}

func TestNormalize2D(t *testing.T) {
	points := []r2.Point{{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 20, Y: 30}, {X: 10, Y: 30}}
	tr, out := Normalize2D(points)

	var cx, cy, mean float64
	for _, p := range out {
		cx += p.X
		cy += p.Y
		mean += p.Norm()
	}
	assert.InDelta(t, 0, cx, 1e-12)
	assert.InDelta(t, 0, cy, 1e-12)
	assert.InDelta(t, math.Sqrt2, mean/4, 1e-12)

	for i, p := range points {
		x := tr.At(0, 0)*p.X + tr.At(0, 1)*p.Y + tr.At(0, 2)
		y := tr.At(1, 0)*p.X + tr.At(1, 1)*p.Y + tr.At(1, 2)
		assert.InDelta(t, out[i].X, x, 1e-12)
		assert.InDelta(t, out[i].Y, y, 1e-12)
	}
}

func TestNormalize3D(t *testing.T) {
	points := []r3.Vector{{X: 1, Y: 2, Z: 3}, {X: -4, Y: 0, Z: 1}, {X: 2, Y: 2, Z: 2}}
	_, out := Normalize3D(points)
	var c r3.Vector
	var mean float64
	for _, p := range out {
		c = c.Add(p)
		mean += p.Norm()
	}
	assert.InDelta(t, 0, c.Norm(), 1e-12)
	assert.InDelta(t, math.Sqrt(3), mean/3, 1e-12)
}

func TestMedian(t *testing.T) {
	cases := map[string]struct {
		values []float64
		want   float64
	}{
		"odd":    {values: []float64{5, 1, 3}, want: 3},
		"even":   {values: []float64{4, 1, 3, 2}, want: 2},
		"single": {values: []float64{7}, want: 7},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			before := append([]float64(nil), tc.values...)
			assert.Equal(t, tc.want, Median(tc.values, nil))
			assert.Equal(t, before, tc.values)
		})
	}
	assert.True(t, math.IsNaN(Median(nil, nil)))
}

func TestUnitNorm(t *testing.T) {
	v := []float64{3, 4}
	require.True(t, UnitNorm(v))
	assert.InDeltaSlice(t, []float64{0.6, 0.8}, v, 1e-12)
	assert.False(t, UnitNorm([]float64{0, 0}))
}

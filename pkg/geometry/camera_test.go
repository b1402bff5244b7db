package geometry

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestRotationAxisAngle(t *testing.T) {
	cases := map[string]Point3D{
		"small":   NewPoint3D(1e-14, 0, -2e-14),
		"general": NewPoint3D(0.1, -0.4, 0.3),
		"large":   NewPoint3D(0, 2, 1),
		"near pi": NewPoint3D(1, 1, 0).Normalize().Mul(math.Pi - 1e-9),
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			r := RotationFromAxisAngle(v)

			var rrt mat.Dense
			rrt.Mul(r.Matrix(), r.Matrix().T())
			assert.True(t, mat.EqualApprox(&rrt, IdentityRotation().Matrix(), 1e-12), "not orthogonal")
			assert.InDelta(t, 1, mat.Det(r.Matrix()), 1e-12)

			// The axis may flip at π, so compare the rotations themselves.
			// Near π the angle is ill conditioned in the trace.
			back := RotationFromAxisAngle(r.AxisAngle())
			if diff := cmp.Diff(r, back, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
				t.Errorf("axis angle round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}

	v := NewPoint3D(0.1, -0.4, 0.3)
	got := RotationFromAxisAngle(v).AxisAngle()
	assert.InDelta(t, 0, got.Sub(v).Norm(), 1e-12)
}

func TestRotationCompose(t *testing.T) {
	a := RotationFromAxisAngle(NewPoint3D(0, 0, 0.3))
	b := RotationFromAxisAngle(NewPoint3D(0, 0, 0.5))
	assert.InDelta(t, 0.8, a.Mul(b).Angle(), 1e-12)
	assert.InDelta(t, 0.2, a.AngleTo(b), 1e-12)
	assert.InDelta(t, 0, a.Mul(a.Transpose()).Angle(), 1e-12)

	x := NewPoint3D(1, 0, 0)
	y := a.Mul(b).Apply(x)
	assert.InDelta(t, 0, y.Sub(a.Apply(b.Apply(x))).Norm(), 1e-12)
}

func TestRotationFromMatrix(t *testing.T) {
	r := RotationFromAxisAngle(NewPoint3D(0.2, 0.1, -0.7))

	var scaled mat.Dense
	scaled.Scale(2.5, r.Matrix())
	got, ok := RotationFromMatrix(&scaled)
	require.True(t, ok)
	if diff := cmp.Diff(r, got, approx); diff != "" {
		t.Errorf("RotationFromMatrix mismatch (-want +got):\n%s", diff)
	}

	// A reflection maps to the nearest proper rotation.
	var reflected mat.Dense
	reflected.Scale(-1, r.Matrix())
	got, ok = RotationFromMatrix(&reflected)
	require.True(t, ok)
	assert.InDelta(t, 1, mat.Det(got.Matrix()), 1e-12)

	_, ok = RotationFromMatrix(mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 0}))
	assert.False(t, ok, "rank deficient")
}

func testCamera() PinholeCamera {
	return PinholeCamera{
		Intrinsics: Intrinsics{FocalX: 800, FocalY: 780, Skew: 0.5, PrincipalX: 320, PrincipalY: 240},
		Rotation:   RotationFromAxisAngle(NewPoint3D(0.1, 0.2, -0.3)),
		Center:     NewPoint3D(1, -2, -10),
	}
}

func TestCameraProjectMatchesMatrix(t *testing.T) {
	c := testCamera()
	p := c.Matrix()
	for _, x := range []Point3D{{}, NewPoint3D(1, 2, 3), NewPoint3D(-2, 0.5, 1)} {
		u, ok := c.Project(x)
		require.True(t, ok)

		var h mat.VecDense
		h.MulVec(p, mat.NewVecDense(4, []float64{x.X, x.Y, x.Z, 1}))
		assert.InDelta(t, h.AtVec(0)/h.AtVec(2), u.X, 1e-9)
		assert.InDelta(t, h.AtVec(1)/h.AtVec(2), u.Y, 1e-9)
		assert.Greater(t, c.Depth(x), 0.0)
	}
}

func TestCameraFromMatrix(t *testing.T) {
	want := testCamera()

	for _, scale := range []float64{1, 1e-3, -3} {
		var p mat.Dense
		p.Scale(scale, want.Matrix())
		got, ok := CameraFromMatrix(&p)
		require.True(t, ok, "scale %v", scale)
		if diff := cmp.Diff(want, got, approx); diff != "" {
			t.Errorf("scale %v: decomposition mismatch (-want +got):\n%s", scale, diff)
		}
	}

	_, ok := CameraFromMatrix(mat.NewDense(3, 4, nil))
	assert.False(t, ok, "singular left block")
}

func TestIntrinsicsNormalize(t *testing.T) {
	k := testCamera().Intrinsics
	p := NewPoint2D(100, -50)
	back := k.Denormalize(k.Normalize(p))
	if diff := cmp.Diff(p, back, approx); diff != "" {
		t.Errorf("normalize round trip mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 780.0/800, k.AspectRatio(), 1e-15)
	assert.Equal(t, NewPoint2D(320, 240), k.PrincipalPoint())
}
